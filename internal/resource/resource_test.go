package resource

import (
	"testing"
	"time"
)

func TestSplitURL(t *testing.T) {
	scheme, path, ok := SplitURL("installwatch:/apps/a:b.cfg.json")
	if !ok || scheme != "installwatch" || path != "/apps/a:b.cfg.json" {
		t.Fatalf("SplitURL = %q, %q, %v", scheme, path, ok)
	}
	if _, _, ok := SplitURL("no-scheme"); ok {
		t.Fatalf("expected no scheme")
	}
	if !IsOwnURL(URL("/apps/x")) || IsOwnURL("other:/apps/x") {
		t.Fatalf("IsOwnURL mismatch")
	}
}

func TestDigestChangesWithContentAndTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := Digest([]byte("a"), ts)
	if base != Digest([]byte("a"), ts) {
		t.Fatalf("digest must be deterministic")
	}
	if base == Digest([]byte("b"), ts) {
		t.Fatalf("digest must change with content")
	}
	if base == Digest([]byte("a"), ts.Add(time.Second)) {
		t.Fatalf("digest must change with modification time")
	}
}

func TestPropertiesDigestIgnoresKeyOrder(t *testing.T) {
	a, err := PropertiesDigest(map[string]any{"x": 1, "y": "two"})
	if err != nil {
		t.Fatalf("PropertiesDigest: %v", err)
	}
	b, _ := PropertiesDigest(map[string]any{"y": "two", "x": 1})
	if a != b {
		t.Fatalf("expected equal digests, got %s and %s", a, b)
	}
	c, _ := PropertiesDigest(map[string]any{"x": 2, "y": "two"})
	if a == c {
		t.Fatalf("expected digest change for changed value")
	}
}

func TestEncodeConfigNil(t *testing.T) {
	data, err := EncodeConfig(nil)
	if err != nil {
		t.Fatalf("EncodeConfig: %v", err)
	}
	if string(data) != "{}\n" {
		t.Fatalf("unexpected encoding %q", data)
	}
}
