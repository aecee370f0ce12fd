package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set at build time with -ldflags "-X github.com/MrSnakeDoc/pagewatch/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = time.Now().Format(time.RFC3339)
	GoVersion = runtime.Version()
)

// String renders the build info on one line.
func String() string {
	return fmt.Sprintf("pagewatch %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
