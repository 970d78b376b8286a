//go:build !(linux || darwin || freebsd)

package fsstore

import "github.com/twiced-technology-gmbh/installwatch/internal/store"

func getAttr(string, string) string { return "" }

func writeMeta(string, store.FileMeta) error { return nil }
