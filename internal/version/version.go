// Package version provides the released and development version strings.
package version

// Version is the current released version.
var Version = "0.1.0"

// DevVersion is the current development version.
var DevVersion = "0.1.0"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}
