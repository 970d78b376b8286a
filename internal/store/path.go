package store

import (
	"path"
	"strings"
)

// Clean normalizes p to an absolute slash-separated path.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Parent returns the parent folder of p. The parent of "/" is "/".
func Parent(p string) string {
	return path.Dir(Clean(p))
}

// Base returns the last element of p.
func Base(p string) string {
	return path.Base(Clean(p))
}

// Join joins a folder and a child name.
func Join(dir, name string) string {
	return path.Join(Clean(dir), name)
}

// Ancestors returns the proper ancestors of p, nearest first, excluding "/".
func Ancestors(p string) []string {
	var out []string
	for cur := Parent(p); cur != "/"; cur = Parent(cur) {
		out = append(out, cur)
	}
	return out
}

// Within reports whether p is dir itself or a descendant of it.
func Within(p, dir string) bool {
	p, dir = Clean(p), Clean(dir)
	if dir == "/" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// Matches reports whether a change at p should reach a subscription on dir.
func Matches(p, dir string, deep bool) bool {
	if deep {
		return Within(p, dir)
	}
	p = Clean(p)
	return p == Clean(dir) || Parent(p) == Clean(dir)
}
