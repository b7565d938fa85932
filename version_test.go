package storage

import (
	"strings"
	"testing"
)

func TestCurrentVersion(t *testing.T) {
	if got := CurrentVersion().String(); got != "2.0.9" {
		t.Errorf("CurrentVersion() = %q, want 2.0.9", got)
	}
}

func TestServerVersion_Ordering(t *testing.T) {
	tests := []struct {
		name    string
		v       ServerVersion
		other   ServerVersion
		newer   bool
		atLeast bool
	}{
		{"equal", ServerVersion{2, 0, 9}, ServerVersion{2, 0, 9}, false, true},
		{"newer patch", ServerVersion{2, 0, 10}, ServerVersion{2, 0, 9}, true, true},
		{"older patch", ServerVersion{2, 0, 8}, ServerVersion{2, 0, 9}, false, false},
		{"newer minor beats patch", ServerVersion{2, 1, 0}, ServerVersion{2, 0, 9}, true, true},
		{"older major", ServerVersion{1, 9, 9}, ServerVersion{2, 0, 0}, false, false},
		{"newer major", ServerVersion{3, 0, 0}, ServerVersion{2, 9, 9}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsNewer(tt.other); got != tt.newer {
				t.Errorf("%v.IsNewer(%v) = %v, want %v", tt.v, tt.other, got, tt.newer)
			}
			if got := tt.v.AtLeast(tt.other); got != tt.atLeast {
				t.Errorf("%v.AtLeast(%v) = %v, want %v", tt.v, tt.other, got, tt.atLeast)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("2.0.9")
	if err != nil {
		t.Fatalf("ParseVersion() error = %v", err)
	}
	if !v.Equal(CurrentVersion()) {
		t.Errorf("ParseVersion() = %v", v)
	}

	for _, bad := range []string{"", "2", "2.0", "a.b.c", "2.0.x"} {
		if _, err := ParseVersion(bad); err == nil {
			t.Errorf("ParseVersion(%q) should fail", bad)
		}
	}
}

func TestVersionString(t *testing.T) {
	s := VersionString()
	for _, want := range []string{"v2.0.9", "git commit hash: " + GitCommit, "build time: " + BuildTime} {
		if !strings.Contains(s, want) {
			t.Errorf("VersionString() = %q, missing %q", s, want)
		}
	}
}
