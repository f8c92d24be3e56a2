package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger suitable for use in tests.
func TestLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(os.Stdout, "[studyhall-test] ", log.LstdFlags)
}
