// Package testing puts test binaries into test mode. Importing it for side
// effects makes the cmd entry points and router skip network work.
package testing

import "os"

// testModeEnv mirrors app.TestModeEnv; importing app here would create a
// cycle with app's own tests.
const testModeEnv = "ODYSSEY_TEST_MODE"

func init() {
	if os.Getenv(testModeEnv) == "" {
		_ = os.Setenv(testModeEnv, "1")
	}
}
