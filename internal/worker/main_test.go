package worker

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/objones25/fuzzgroup/test/testutil"
)

func TestMain(m *testing.M) {
	testutil.InitTestLogger(zerolog.WarnLevel)
	os.Exit(m.Run())
}
