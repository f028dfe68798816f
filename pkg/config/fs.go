package config

import "github.com/spf13/afero"

// Config files are read and written through fs so that tests can swap in an
// afero.NewMemMapFs().
var fs = afero.NewOsFs()
