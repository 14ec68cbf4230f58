// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfoIncludesDirtyMarker(t *testing.T) {
	saved := [3]string{Version, GitCommit, GitDirty}
	t.Cleanup(func() { Version, GitCommit, GitDirty = saved[0], saved[1], saved[2] })

	Version, GitCommit, GitDirty = "1.2.3", "abc1234", "true"
	if got := Info(); !strings.HasPrefix(got, "1.2.3 (abc1234-dirty, ") {
		t.Fatalf("Info() = %q", got)
	}
	GitDirty = "false"
	if got := Info(); strings.Contains(got, "dirty") {
		t.Fatalf("Info() = %q, want no dirty marker", got)
	}
}

func TestCurrent(t *testing.T) {
	saved := [2]string{Version, GitDirty}
	t.Cleanup(func() { Version, GitDirty = saved[0], saved[1] })

	Version, GitDirty = "2.0.0", "true"
	build := Current()
	if build.Version != "2.0.0" || !build.Dirty || build.GoVersion != runtime.Version() {
		t.Fatalf("Current() = %+v", build)
	}
	if Short() != "2.0.0" {
		t.Fatalf("Short() = %q", Short())
	}
	if !strings.Contains(Full(), runtime.GOOS+"/"+runtime.GOARCH) {
		t.Fatalf("Full() = %q, want platform", Full())
	}
}
