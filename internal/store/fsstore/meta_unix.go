//go:build linux || darwin || freebsd

package fsstore

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/twiced-technology-gmbh/installwatch/internal/store"
)

const maxAttrSize = 256

func getAttr(path, name string) string {
	buf := make([]byte, maxAttrSize)
	n, err := unix.Getxattr(path, name, buf)
	if err != nil || n <= 0 {
		return ""
	}
	return string(buf[:n])
}

func writeMeta(path string, meta store.FileMeta) error {
	var errs []error
	if meta.Encoding != "" {
		errs = append(errs, unix.Setxattr(path, attrEncoding, []byte(meta.Encoding), 0))
	}
	if meta.MimeType != "" {
		errs = append(errs, unix.Setxattr(path, attrMimeType, []byte(meta.MimeType), 0))
	}
	return errors.Join(errs...)
}
