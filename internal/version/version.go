// Package version holds the build version, set at link time.
package version

// Version is the application version, overridden via ldflags at build time.
var Version = "dev"
