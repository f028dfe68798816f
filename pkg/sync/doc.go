/*
The sync package turns local filesystem events into remote file operations.

Events flow through three stages:
1) The Translator decides whether an event is relevant. It drops events while
   syncing is paused, as well as events for paths excluded by the configured
   glob and regex patterns. Relevant events become Tasks.
2) The Dispatcher hands every Task to the Queue of each enabled destination.
3) Each Queue has a single worker that executes its Tasks in order. Queues
   are independent, so a slow or unreachable server doesn't hold up the
   others.

Deletions are never mirrored. Removing a file locally leaves the remote copy
in place.

All paths handled by this package are relative to the watched root and use
forward slashes, regardless of the local platform.
*/
package sync
