package app

import (
	"os"
	"sync"
)

// testModeEnv turns the binaries into no-ops so `go test ./...` can build
// and run their packages without live dependencies.
const testModeEnv = "FIELDBASE_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	return testMode()
}
