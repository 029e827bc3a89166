// Package media classifies and validates media content types.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Class is the kind of media an operation works on.
type Class string

const (
	ClassImage Class = "image"
	ClassVideo Class = "video"
	ClassAudio Class = "audio"
)

// supportedTypes is the allow-list for downloaded content. It covers raster
// image types and video container types. Audio downloads pass validation
// through the class prefix check instead; there is deliberately no audio/*
// entry here.
var supportedTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/webp":      {},
	"video/mp4":       {},
	"video/mpeg":      {},
	"video/quicktime": {},
	"video/x-msvideo": {},
	"video/webm":      {},
}

// extensionsByClass is the allow-list for local-path requests.
var extensionsByClass = map[Class][]string{
	ClassImage: {".jpg", ".jpeg", ".png", ".webp"},
	ClassVideo: {".mp4", ".mpeg", ".mov", ".avi", ".webm"},
	ClassAudio: {".mp3", ".wav", ".ogg"},
}

// ValidationError reports unsupported or mismatched media input. It is always
// surfaced to the caller as a text result, never as a transport failure.
type ValidationError struct {
	MIMEType  string // offending MIME type, if the failure is type-related
	Extension string // offending extension, for local-path failures
	Reason    string // human-readable explanation
}

func (e *ValidationError) Error() string {
	if e.MIMEType != "" {
		return fmt.Sprintf("unsupported media type %q: %s", e.MIMEType, e.Reason)
	}

	if e.Extension != "" {
		return fmt.Sprintf("unsupported file extension %q: %s", e.Extension, e.Reason)
	}

	return e.Reason
}

// Normalize strips any MIME parameter suffix (e.g. ";charset=utf-8") and
// lowercases the type.
func Normalize(mimeType string) string {
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = mimeType[:idx]
	}

	return strings.ToLower(strings.TrimSpace(mimeType))
}

// IsSupported reports whether the MIME type is on the download allow-list.
func IsSupported(mimeType string) bool {
	_, ok := supportedTypes[Normalize(mimeType)]

	return ok
}

// MatchesClass checks that the MIME type's top-level class matches the
// requested operation. Audio operations also accept video/* because many
// audio-only platforms serve audio inside a video container.
func MatchesClass(mimeType string, class Class) error {
	normalized := Normalize(mimeType)

	var ok bool

	switch class {
	case ClassImage:
		ok = strings.HasPrefix(normalized, "image/")
	case ClassVideo:
		ok = strings.HasPrefix(normalized, "video/")
	case ClassAudio:
		ok = strings.HasPrefix(normalized, "audio/") || strings.HasPrefix(normalized, "video/")
	}

	if !ok {
		return &ValidationError{
			MIMEType: normalized,
			Reason:   fmt.Sprintf("expected %s content", class),
		}
	}

	return nil
}

// CheckExtension validates a local file path against the extension allow-list
// for the given class.
func CheckExtension(path string, class Class) error {
	ext := strings.ToLower(filepath.Ext(path))

	for _, allowed := range extensionsByClass[class] {
		if ext == allowed {
			return nil
		}
	}

	return &ValidationError{
		Extension: ext,
		Reason:    fmt.Sprintf("expected one of %s for %s content", strings.Join(extensionsByClass[class], " "), class),
	}
}

// TypeForExtension returns the MIME type implied by a local file's extension,
// or application/octet-stream if unknown.
func TypeForExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mpeg":
		return "video/mpeg"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
