package metadata

import (
	"path/filepath"
	"strings"
)

// Category groups files for per-family statistics.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryArchive  Category = "archive"
	CategoryOther    Category = "other"
)

// categoryByExtension maps lowercased extensions (without dot) to categories.
// The classifier is shared between the validator and the statistics engine so
// both always agree on a file's category.
var categoryByExtension = map[string]Category{
	"jpg": CategoryImage, "jpeg": CategoryImage, "png": CategoryImage, "gif": CategoryImage,

	"pdf": CategoryDocument, "doc": CategoryDocument, "docx": CategoryDocument, "txt": CategoryDocument,

	"mp4": CategoryVideo, "avi": CategoryVideo,

	"mp3": CategoryAudio, "wav": CategoryAudio,

	"zip": CategoryArchive, "rar": CategoryArchive,
}

// Classify returns the category for a file name, falling back to the MIME
// type prefix when the extension is unknown.
func Classify(name, contentType string) Category {
	if c, ok := categoryByExtension[ExtensionOf(name)]; ok {
		return c
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return CategoryImage
	case strings.HasPrefix(contentType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(contentType, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(contentType, "text/"):
		return CategoryDocument
	}
	return CategoryOther
}

// UnderFolder reports whether path equals folder or lies strictly below it.
// "/picstore" is not under "/pics".
func UnderFolder(path, folder string) bool {
	if path == folder {
		return true
	}
	if folder == "/" {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, folder+"/")
}

// ExtensionOf returns the lowercased extension of name without the leading
// dot, or "" when name has no extension.
func ExtensionOf(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
