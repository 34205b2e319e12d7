package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileKind says which import path a file takes.
type FileKind string

const (
	FileKindCSV      FileKind = "csv"
	FileKindDocument FileKind = "document"
)

var (
	// ErrUnsupportedFileType is returned for files that are neither CSV nor
	// a document the extraction service accepts.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrEmptyUpload is returned for zero-byte uploads.
	ErrEmptyUpload = errors.New("empty file")
)

// documentTypes are forwarded to the extraction service.
var documentTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"image/tiff",
	"image/heic",
}

// DetectFileKind sniffs data and returns its kind and content type.
// Files named .csv are accepted when they sniff as any text, since CSV
// detection needs consistent columns in the sniffed prefix.
func DetectFileKind(filename string, data []byte) (FileKind, string, error) {
	if len(data) == 0 {
		return "", "", ErrEmptyUpload
	}

	m := mimetype.Detect(data)

	for _, t := range documentTypes {
		if m.Is(t) {
			return FileKindDocument, t, nil
		}
	}

	if m.Is("text/csv") {
		return FileKindCSV, "text/csv", nil
	}

	if strings.EqualFold(filepath.Ext(filename), ".csv") && (isText(m) || m.Is("application/octet-stream")) {
		return FileKindCSV, "text/csv", nil
	}

	return "", m.String(), fmt.Errorf("%w: %s", ErrUnsupportedFileType, m.String())
}

func isText(m *mimetype.MIME) bool {
	for p := m; p != nil; p = p.Parent() {
		if p.Is("text/plain") {
			return true
		}
	}
	return false
}
