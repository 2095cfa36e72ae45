// Package validation checks user input against size limits before any
// external service is called.
package validation

import "unicode/utf8"

// Default limits applied when a Limits field is zero.
const (
	DefaultMaxFileBytes int64 = 20 << 20
	DefaultMaxTextChars       = 10000
)

// Limits holds the configured input bounds.
type Limits struct {
	MaxFileBytes int64
	MaxTextChars int
}

// NewLimits returns Limits with zero values replaced by the defaults.
func NewLimits(maxFileBytes int64, maxTextChars int) Limits {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	if maxTextChars <= 0 {
		maxTextChars = DefaultMaxTextChars
	}
	return Limits{MaxFileBytes: maxFileBytes, MaxTextChars: maxTextChars}
}

// CheckMediaSize reports whether a media payload may be processed.
// An unknown size (nil) is accepted; the transport enforces its own cap.
func (l Limits) CheckMediaSize(size *int64) bool {
	if size == nil {
		return true
	}
	return *size >= 0 && *size <= l.MaxFileBytes
}

// CheckTextLength reports whether text is non-empty and at most
// MaxTextChars characters long. Length is counted in runes.
func (l Limits) CheckTextLength(text string) bool {
	if text == "" {
		return false
	}
	return utf8.RuneCountInString(text) <= l.MaxTextChars
}

// MaxFileMegabytes is the file limit rounded down to whole MiB, for messages.
func (l Limits) MaxFileMegabytes() int64 {
	return l.MaxFileBytes >> 20
}
