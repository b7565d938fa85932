package storage

import "fmt"

// Server version constants.
const (
	// VersionMajor is the major server version.
	VersionMajor = 2

	// VersionMinor is the minor server version.
	VersionMinor = 0

	// VersionPatch is the patch server version.
	VersionPatch = 9
)

// Build metadata, set with -ldflags "-X github.com/sispop-dev/storage.GitCommit=...".
var (
	GitCommit = "?"
	BuildTime = "?"
)

// ServerVersion is a storage server release version. The daemon compares it
// against the minimum version it accepts from its storage server.
type ServerVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// CurrentVersion returns the version of this build.
func CurrentVersion() ServerVersion {
	return ServerVersion{
		Major: VersionMajor,
		Minor: VersionMinor,
		Patch: VersionPatch,
	}
}

// String returns the version as a semantic version string (e.g., "2.0.9").
func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is the same as or newer than min.
func (v ServerVersion) AtLeast(min ServerVersion) bool {
	return v.Equal(min) || v.IsNewer(min)
}

// IsNewer returns true if this version is newer than the other.
func (v ServerVersion) IsNewer(other ServerVersion) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch > other.Patch
}

// Equal returns true if the versions are exactly equal.
func (v ServerVersion) Equal(other ServerVersion) bool {
	return v == other
}

// ParseVersion parses a version string in the format "major.minor.patch".
func ParseVersion(s string) (ServerVersion, error) {
	var v ServerVersion
	n, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil {
		return v, fmt.Errorf("invalid version format %q: %w", s, err)
	}
	if n != 3 {
		return v, fmt.Errorf("invalid version format %q: expected major.minor.patch", s)
	}
	return v, nil
}

// VersionString is the banner printed by --version and at startup.
func VersionString() string {
	return fmt.Sprintf("Sispop Storage Server v%s\n git commit hash: %s\n build time: %s",
		CurrentVersion(), GitCommit, BuildTime)
}
