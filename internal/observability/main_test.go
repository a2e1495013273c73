package observability

import (
	"testing"

	"go.uber.org/goleak"
)

// Server goroutines must not outlive Stop.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
