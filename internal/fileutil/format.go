// Package fileutil classifies office document formats and derives the
// identifiers the editor needs.
package fileutil

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Document type names understood by the editor widget.
const (
	TypeWord  = "word"
	TypeCell  = "cell"
	TypeSlide = "slide"
)

// MaxNameLength is the longest base name (without extension) the gateway
// accepts; longer names are truncated before building editor URLs.
const MaxNameLength = 190

var documentExts = []string{
	"doc", "docx", "docm", "dot", "dotx", "dotm", "odt", "fodt", "ott",
	"rtf", "txt", "html", "htm", "mht", "xml", "pdf", "djvu", "fb2",
	"epub", "xps", "oxps",
}

var spreadsheetExts = []string{
	"xls", "xlsx", "xlsm", "xlt", "xltx", "xltm", "ods", "fods", "ots", "csv",
}

var presentationExts = []string{
	"pps", "ppsx", "ppsm", "ppt", "pptx", "pptm", "pot", "potx", "potm",
	"odp", "fodp", "otp",
}

var editableExts = []string{"docx", "pptx", "xlsx"}

// Ext returns the lower-cased extension of filename without the dot.
func Ext(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// Parts splits filename into base name and extension.
func Parts(filename string) (name, ext string) {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return filename, ""
	}
	return filename[:idx], strings.ToLower(filename[idx+1:])
}

func contains(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

// IsEditable reports whether the file opens in full editing mode.
func IsEditable(filename string) bool {
	return contains(editableExts, Ext(filename))
}

// IsSupported reports whether the file can be opened in the editor at all.
func IsSupported(filename string) bool {
	ext := Ext(filename)
	return contains(documentExts, ext) ||
		contains(spreadsheetExts, ext) ||
		contains(presentationExts, ext)
}

// DocumentType returns the editor document type for filename, or "" when the
// format is unsupported.
func DocumentType(filename string) string {
	ext := Ext(filename)
	switch {
	case contains(documentExts, ext):
		return TypeWord
	case contains(spreadsheetExts, ext):
		return TypeCell
	case contains(presentationExts, ext):
		return TypeSlide
	default:
		return ""
	}
}

// MimeType returns the MIME type for the editable formats and a generic
// octet-stream otherwise.
func MimeType(filename string) string {
	switch Ext(filename) {
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// DocumentKey derives the editor's content-fingerprint key from the file
// identifier and its last-update timestamp. Same input, same key: the editor
// uses it to join collaborators on the same document version.
func DocumentKey(fileID, updateTime string) string {
	sum := md5.Sum([]byte(fileID + updateTime))
	return hex.EncodeToString(sum[:])
}

// TruncateName shortens the base name to MaxNameLength runes, preserving the
// extension.
func TruncateName(filename string) string {
	name, ext := Parts(filename)
	runes := []rune(name)
	if len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// Name validation errors, surfaced before any request is issued.
var (
	ErrEmptyName   = errors.New("file name must not be empty")
	ErrNameTooLong = fmt.Errorf("file name must not exceed %d characters", MaxNameLength)
)

// ValidateName checks a user-supplied file name.
func ValidateName(filename string) error {
	name, _ := Parts(filename)
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// FormatBytes renders a byte count for humans, e.g. "1.5 MB".
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	sizes := []string{"Bytes", "KB", "MB", "GB", "TB", "PB", "EB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%s %s", trimZeros(value), sizes[i])
}

// trimZeros trims trailing zeros from a two-decimal rendering.
func trimZeros(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
