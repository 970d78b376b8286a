package store

import (
	"slices"
	"testing"
)

func TestPathHelpers(t *testing.T) {
	if got := Clean("apps//foo/"); got != "/apps/foo" {
		t.Fatalf("Clean = %q", got)
	}
	if got := Parent("/apps/foo"); got != "/apps" {
		t.Fatalf("Parent = %q", got)
	}
	if got := Parent("/"); got != "/" {
		t.Fatalf("Parent(/) = %q", got)
	}
	if got := Base("/apps/foo.cfg.json"); got != "foo.cfg.json" {
		t.Fatalf("Base = %q", got)
	}
	if got := Ancestors("/apps/sling/install/foo"); !slices.Equal(got, []string{"/apps/sling/install", "/apps/sling", "/apps"}) {
		t.Fatalf("Ancestors = %v", got)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		path, dir string
		deep      bool
		want      bool
	}{
		{"/apps/install/a", "/apps/install", false, true},
		{"/apps/install", "/apps/install", false, true},
		{"/apps/install/sub/a", "/apps/install", false, false},
		{"/apps/install/sub/a", "/apps/install", true, true},
		{"/apps/installer/a", "/apps/install", true, false},
		{"/apps", "/", false, true},
		{"/apps/x", "/", false, false},
	}
	for _, tt := range tests {
		if got := Matches(tt.path, tt.dir, tt.deep); got != tt.want {
			t.Errorf("Matches(%q, %q, %v) = %v", tt.path, tt.dir, tt.deep, got)
		}
	}
}
