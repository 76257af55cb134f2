package server_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks for goroutine leaks after every test in this package
// completes, since the admin API is served by an http.Server.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
