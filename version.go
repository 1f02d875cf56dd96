package gomtl

// Version information for gomtl.
const (
	// Name is the client name sent in the User-Agent header.
	Name = "gomtl"

	// Description is a short description of the library.
	Description = "Go Mistral Translation Layer - LLM-backed translation and summarization"

	// Version is the semantic version of the library.
	Version = "0.3.0"

	// Repository is the source code repository URL.
	Repository = "https://github.com/ZaguanLabs/gomtl"

	// License is the software license.
	License = "MIT"
)

// BuildInfo contains build-time information.
// These are typically set via ldflags during build:
//
//	go build -ldflags "-X github.com/ZaguanLabs/gomtl.GitCommit=$(git rev-parse HEAD)"
var (
	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// FullVersion returns the version string with optional build info.
func FullVersion() string {
	v := Version
	if GitCommit != "unknown" && GitCommit != "" {
		short := GitCommit
		if len(short) > 7 {
			short = short[:7]
		}
		v += "+" + short
	}
	return v
}

// UserAgent returns a user agent string for HTTP requests.
func UserAgent() string {
	return Name + "/" + Version
}
