// Package version centralizes build version information for the application.
package version

import (
	"fmt"
	"io"
	"runtime"
)

// Build variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Info holds the resolved version information.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
	Platform  string
}

// SetBuildVars overrides the build variables. Used by build systems that set
// version info on the cmd package instead of this one.
func SetBuildVars(v, c, bt string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
	if bt != "" {
		buildTime = bt
	}
}

// GetVersion returns the current version information.
func GetVersion() Info {
	return Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Write renders the version information. With short set, only the version
// number is printed.
func (i Info) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, i.Version)
		return err
	}

	_, err := fmt.Fprintf(w, "newsbias %s\n  commit:     %s\n  built:      %s\n  go version: %s\n  platform:   %s\n",
		i.Version, i.Commit, i.BuildTime, i.GoVersion, i.Platform)
	return err
}
