// Package guard forces test mode on import so binaries whose main guards on
// app.InTestMode never start servers or workers from inside a test run. Blank
// import it from any test binary that compiles a main package.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("HELMSMAN_TEST_MODE") == "" {
			_ = os.Setenv("HELMSMAN_TEST_MODE", "1")
		}
		if os.Getenv("TOKEN_SECRET") == "" {
			_ = os.Setenv("TOKEN_SECRET", "test-secret")
		}
	})
}
