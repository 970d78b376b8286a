package fsstore

import (
	"mime"
	"path/filepath"
)

// Extended attribute names holding file metadata.
const (
	attrEncoding = "user.installwatch.encoding"
	attrMimeType = "user.installwatch.mimetype"
)

// readMeta returns the stored encoding and MIME type of a file. The MIME
// type falls back to the extension table when no attribute is present.
func readMeta(path, name string) (encoding, mimeType string) {
	encoding = getAttr(path, attrEncoding)
	mimeType = getAttr(path, attrMimeType)
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	return encoding, mimeType
}
