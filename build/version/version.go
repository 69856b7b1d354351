// Copyright 2024 The pgfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package version provides information about pgfetch version and build configuration.
//
// # Extra files
//
// The following generated text files may be present in this (`build/version`) directory during building:
//   - version.txt (required) contains information about the pgfetch version in a format
//     similar to `git describe` output: `v<major>.<minor>.<patch>`.
//   - commit.txt (optional) contains information about the source git commit.
//   - branch.txt (optional) contains information about the source git branch.
//   - package.txt (optional) contains package type (e.g. "deb", "rpm", "docker", etc).
//
// # Go build tags
//
// The following Go build tags (also known as build constraints) affect builds of pgfetch:
//
//	pgfetch_debug - enables debug build (see below; implied by builds with race detector)
//
// # Debug builds
//
// Debug builds of pgfetch behave differently in a few aspects:
//   - they are significantly slower;
//   - resource leaks (abandoned sessions, unclosed row sets) cause crashes instead of being
//     handled more gracefully;
//   - metrics are written to stderr on exit;
//   - the default logging level is set to debug.
package version

import (
	"embed"
	"runtime"
	runtimedebug "runtime/debug"
	"strconv"
	"strings"

	"github.com/pgfetch/pgfetch/internal/util/debugbuild"
	"github.com/pgfetch/pgfetch/internal/util/must"
)

// Each pattern in a //go:embed line must match at least one file or non-empty directory,
// but most files are generated and may be absent (for example, when the library is used
// as a module dependency). As a workaround, version.txt is always present and stored
// in the repository / Go module.

//go:generate go run ./generate.go

//go:embed *.txt
var gen embed.FS

// Info provides details about the current build.
//
//nolint:vet // for readability
type Info struct {
	Version          string
	Commit           string
	Branch           string
	Dirty            bool
	Package          string
	DebugBuild       bool
	BuildEnvironment map[string]string
}

// info singleton instance set by init().
var info *Info

// unknown is a placeholder for unknown version, commit, and branch values.
const unknown = "unknown"

// pgfetch module path from go.mod.
const pgfetchModule = "github.com/pgfetch/pgfetch"

// Get returns current build's info.
//
// It returns a shared instance without any synchronization.
// If the caller needs to modify the instance, it should make sure there are no concurrent accesses.
func Get() *Info {
	return info
}

// initFromFiles initializes info from txt files (that might be absent).
// All info fields are set to non-empty values, but some of them may be unknown.
func initFromFiles() {
	info = &Info{
		Version:    unknown,
		Commit:     unknown,
		Branch:     unknown,
		Dirty:      false,
		Package:    unknown,
		DebugBuild: debugbuild.Enabled,
		BuildEnvironment: map[string]string{
			"go.runtime": runtime.Version(),
		},
	}

	for f, sp := range map[string]*string{
		"version.txt": &info.Version,
		"commit.txt":  &info.Commit,
		"branch.txt":  &info.Branch,
		"package.txt": &info.Package,
	} {
		b, _ := gen.ReadFile(f)
		if s := strings.TrimSpace(string(b)); s != "" {
			*sp = s
		}
	}
}

// readBuildInfo returns pgfetch version and commit from the build info.
// It also updates info.BuildEnvironment and info.Dirty when it is sure we are building pgfetch itself,
// and not something that uses pgfetch.
func readBuildInfo() (version, commit string) {
	buildInfo, ok := runtimedebug.ReadBuildInfo()
	if !ok {
		return
	}

	info.BuildEnvironment["go.version"] = buildInfo.GoVersion

	// Builds in this repo have Main.Path set to the module path;
	// builds that depend on pgfetch carry it in Deps instead.
	if buildInfo.Main.Path == pgfetchModule {
		version = buildInfo.Main.Version
		if version == "(devel)" {
			version = ""
		}

		for _, s := range buildInfo.Settings {
			if v := s.Value; v != "" {
				info.BuildEnvironment[s.Key] = v
			}

			switch s.Key {
			case "vcs.revision":
				commit = s.Value
			case "vcs.modified":
				info.Dirty = must.NotFail(strconv.ParseBool(s.Value))
			}
		}

		return
	}

	for _, dep := range buildInfo.Deps {
		if dep.Path == pgfetchModule {
			if dep.Replace == nil {
				version = dep.Version
				return
			}

			version = dep.Replace.Version
			if version == "(devel)" {
				version = ""
			}

			return
		}
	}

	return
}

func init() {
	initFromFiles()

	version, commit := readBuildInfo()

	if version != "" {
		info.Version = version
	}

	if commit != "" {
		if info.Commit != unknown && !strings.HasPrefix(info.Commit, commit) && !strings.HasPrefix(commit, info.Commit) {
			panic("version.txt commit and build info commit mismatch")
		}

		info.Commit = commit
	}
}
