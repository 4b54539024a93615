package testing

import (
	"os"
	stdtesting "testing"

	_ "github.com/helmsman-hq/helmsman/internal/testing/guard"
)

func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
