package exitcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, Success},
		{"cancelled", context.Canceled, Interrupted},
		{"wrapped cancel", fmt.Errorf("runner: %w", context.Canceled), Interrupted},
		{"usage", &UsageError{Err: errors.New("bad flag")}, Usage},
		{"wrapped usage", fmt.Errorf("config: %w", &UsageError{Err: errors.New("x")}), Usage},
		{"deadline is fatal", context.DeadlineExceeded, Fatal},
		{"other", errors.New("browser unreachable"), Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromError(tt.err))
		})
	}
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "scan_interrupted", Interrupted.String())
	assert.Equal(t, "unknown", Code(42).String())
	assert.Equal(t, 130, int(Interrupted))
}
