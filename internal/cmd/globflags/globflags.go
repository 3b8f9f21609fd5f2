package globflags

import "time"

// ConfigPath is set by the --config flag of the run command.
var ConfigPath string

// Addr and Timeout are used by the client commands.
var (
	Addr    string
	Timeout time.Duration
)
