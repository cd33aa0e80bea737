package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	Version   = "dev"                           // ex: v0.1.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()               // go version
)

// UserAgent is sent with every directory request.
func UserAgent() string {
	return "mlvd/" + Version
}

func String() string {
	return fmt.Sprintf("mlvd %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildDate, GoVersion, runtime.GOOS, runtime.GOARCH)
}
