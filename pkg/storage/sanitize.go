package storage

import (
	"path"
	"strings"
)

// SanitizeFolderPath normalizes a virtual folder path into a relative key
// prefix safe to resolve against a family root. It strips leading and
// trailing slashes and removes every ".." segment. This guard is applied
// unconditionally in the adapters, independent of request validation.
func SanitizeFolderPath(folderPath string) string {
	cleaned := path.Clean("/" + folderPath)

	parts := strings.Split(cleaned, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}

// ObjectKey builds the object key (or file-relative path) for a stored file.
func ObjectKey(folderPath, fileID, ext string) string {
	leaf := fileID
	if ext != "" {
		leaf += "." + ext
	}
	if prefix := SanitizeFolderPath(folderPath); prefix != "" {
		return prefix + "/" + leaf
	}
	return leaf
}
