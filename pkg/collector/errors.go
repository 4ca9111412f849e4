package collector

import (
	"errors"
	"fmt"
)

// ErrMalformed indicates an instrumentation console call whose arguments
// could not be decoded.
var ErrMalformed = errors.New("collector: malformed instrumentation event")

// ScriptError is a failure the instrumentation script reported about itself.
type ScriptError struct {
	Location string
	Message  string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("collector: instrumentation error at %s: %s", e.Location, e.Message)
}
