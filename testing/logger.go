package testing

import (
	"testing"

	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/arloliu/sourcecoord/types"
)

// NewTestLogger creates a logger that writes to the testing.T log.
// This is useful for seeing coordinator and scheduler output during test runs.
func NewTestLogger(t *testing.T) types.Logger {
	return logging.NewTest(t)
}
