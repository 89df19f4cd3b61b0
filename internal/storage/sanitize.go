package storage

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	unsafeChars     = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	repeatedUnderscore = regexp.MustCompile(`_+`)
)

const maxFilenameLen = 255

// SanitizeFilename makes a client-supplied filename safe for filesystem
// and object-store use: path separators and null bytes are stripped,
// spaces become underscores, anything outside a conservative allow-list
// is replaced, and the length is capped preserving the extension.
func SanitizeFilename(filename string) string {
	if filename == "" {
		return "unnamed_file"
	}

	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.Trim(filename, ". ")
	filename = strings.ReplaceAll(filename, " ", "_")
	filename = unsafeChars.ReplaceAllString(filename, "_")
	filename = repeatedUnderscore.ReplaceAllString(filename, "_")

	if len(filename) > maxFilenameLen {
		ext := filepath.Ext(filename)
		stem := strings.TrimSuffix(filename, ext)
		if len(ext) < maxFilenameLen {
			filename = stem[:maxFilenameLen-len(ext)] + ext
		} else {
			filename = filename[:maxFilenameLen]
		}
	}

	if filename == "" {
		return "unnamed_file"
	}
	return filename
}
