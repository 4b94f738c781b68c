package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv is set by the testing package so entry points skip dialing
// Postgres, Redis and SMTP.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	enabled, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(err == nil && enabled)
}

// InTestMode reports whether side effects such as network listeners and
// request logging should be skipped.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
