package ingest

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// MaxFileSize is the §4.2 fatal-error boundary (B1): a File source
// larger than this is rejected before any bytes are read.
const MaxFileSize = 100 * 1024 * 1024 // 100 MiB

// binaryMediaTypePrefixes are media types §4.2 says to base64-encode
// rather than try to decode as UTF-8 text.
var binaryMediaTypePrefixes = []string{
	"image/", "application/pdf", "application/msword",
	"application/vnd.openxmlformats", "application/zip",
	"application/octet-stream",
}

// extensionMediaTypes is the lowercase-extension fallback table used
// when mimetype's content sniff is inconclusive (empty files, unusual
// encodings of recognized text formats).
var extensionMediaTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".md":   "text/markdown",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".txt":  "text/plain",
}

// detectMediaType implements §4.2's "MIME guess then lowercase
// extension" detection order.
func detectMediaType(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	detected := mt.String()
	if semi := strings.IndexByte(detected, ';'); semi >= 0 {
		detected = detected[:semi]
	}
	if detected != "" && detected != "application/octet-stream" && detected != "text/plain" {
		return detected, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if mapped, ok := extensionMediaTypes[ext]; ok {
		return mapped, nil
	}
	return detected, nil
}

func isBinaryMediaType(mediaType string) bool {
	for _, prefix := range binaryMediaTypePrefixes {
		if strings.HasPrefix(mediaType, prefix) {
			return true
		}
	}
	return false
}

// readDocument loads path's content per §4.2: binary media types are
// always base64-encoded; text media types are emitted as UTF-8 and
// only fall back to base64 (with a warning) when the bytes are not
// valid UTF-8.
func readDocument(path, mediaType string) (domain.Document, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, "", err
	}

	doc := domain.Document{
		ID:        path,
		MediaType: mediaType,
		AdditionalProps: map[string]string{
			"path": path,
			"size": strconv.Itoa(len(raw)),
		},
	}

	if isBinaryMediaType(mediaType) {
		doc.Format = domain.FormatBase64
		doc.Data = base64.StdEncoding.EncodeToString(raw)
		return doc, "", nil
	}

	if utf8.Valid(raw) {
		doc.Format = domain.FormatText
		doc.Data = string(raw)
		return doc, "", nil
	}

	doc.Format = domain.FormatBase64
	doc.Data = base64.StdEncoding.EncodeToString(raw)
	return doc, "invalid utf-8, fell back to base64 for " + path, nil
}
