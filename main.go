package main

import (
	"github.com/sidkik/labsync/cmd"
	"github.com/sidkik/labsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
