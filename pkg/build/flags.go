// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for beatsketch. The application name, build timestamp, Git commit hash, and
// semantic version are embedded into the binary at compile time using linker
// flags, for example:
//
//	go build -ldflags "-X beatsketch/pkg/build.buildName=beatsketch -X beatsketch/pkg/build.buildVersion=0.3.0 ..."
package build

import "fmt"

// Description is the one-line summary shown by the CLI.
const Description = "Detect and classify drum hits in WAV recordings"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the build information on a single line for the version command.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Development builds keep the "dev"/"unknown" defaults.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "beatsketch",
		Description: Description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. It returns an error if any required build flag
// is missing; the defaults stay in place in that case so development builds
// remain usable.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
