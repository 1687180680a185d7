// SPDX-License-Identifier: MIT
package build

import "testing"

// withLinkerVars sets the ldflags variables for one test and restores them,
// along with buildFlags, afterwards.
func withLinkerVars(t *testing.T, name, time, commit, version string) {
	t.Helper()
	saved := *buildFlags
	n, tm, c, v := buildName, buildTime, buildCommit, buildVersion
	t.Cleanup(func() {
		*buildFlags = saved
		buildName, buildTime, buildCommit, buildVersion = n, tm, c, v
	})
	buildName, buildTime, buildCommit, buildVersion = name, time, commit, version
}

func TestDevelopmentDefaults(t *testing.T) {
	f := GetBuildFlags()
	if f.Name != "lightshow" || f.Description != Description {
		t.Errorf("defaults = %+v", *f)
	}
	if f.Version != "unknown" || f.Commit != "unknown" {
		t.Errorf("development build should report unknown version, got %+v", *f)
	}
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name, binary, time, commit, version string
		wantErr                             string
	}{
		{"Development build", "", "", "", "", "BuildName is required"},
		{"Missing time", "lightshow", "", "4f2c9d1", "v0.3.0", "BuildTime is required"},
		{"Missing commit", "lightshow", "2026-10-19T18:00:00Z", "", "v0.3.0", "BuildCommit is required"},
		{"Missing version", "lightshow", "2026-10-19T18:00:00Z", "4f2c9d1", "", "BuildVersion is required"},
		{"Release build", "lightshow", "2026-10-19T18:00:00Z", "4f2c9d1", "v0.3.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withLinkerVars(t, tt.binary, tt.time, tt.commit, tt.version)

			err := Initialize()
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("Initialize() = %v, want %q", err, tt.wantErr)
				}
				if GetBuildFlags().Name != "lightshow" {
					t.Error("failed Initialize changed the build info")
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize(): %v", err)
			}

			want := "lightshow v0.3.0 (commit 4f2c9d1, built 2026-10-19T18:00:00Z)"
			if got := GetBuildFlags().String(); got != want {
				t.Errorf("version line = %q, want %q", got, want)
			}
			if GetBuildFlags().Description != Description {
				t.Error("Initialize dropped the description")
			}
		})
	}
}
