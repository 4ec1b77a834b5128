package testutil

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logs are discarded in tests unless they run with -v. Test flags are not
// registered yet when packages initialize, so the raw arguments are checked.
func init() {
	logrus.SetLevel(logrus.TraceLevel)

	if !verbose(os.Args[1:]) {
		logrus.StandardLogger().Out = io.Discard
	}
}

func verbose(args []string) bool {
	for _, arg := range args {
		if arg == "-test.v" || (strings.HasPrefix(arg, "-test.v=") && arg != "-test.v=false") {
			return true
		}
	}
	return false
}

// DisableLogging discards log output until reset is called.
func DisableLogging() (reset func()) {
	logger := logrus.StandardLogger()
	original := logger.Out
	logger.SetOutput(io.Discard)

	return func() {
		logger.SetOutput(original)
	}
}
