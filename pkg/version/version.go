// Package version provides version information for oracle-resolver.
package version

// Version is the current version of oracle-resolver.
const Version = "0.4.0"

// AgentString returns the full agent string with versioning.
// Format: oracle-resolver/v{version}
func AgentString() string {
	return "oracle-resolver/v" + Version
}
