package utils

import (
	"regexp"
	"strings"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`) // Characters invalid on Windows/macOS/Unix filesystems
var controlChars = regexp.MustCompile(`[\x00-\x1F]`)           // ASCII control characters 0-31
var whitespaceRuns = regexp.MustCompile(`\s+`)                 // Collapsed to a single space

// reservedDeviceNames are names Windows refuses regardless of extension
var reservedDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// DefaultFilename is used when nothing survives sanitization
const DefaultFilename = "untitled"

// SanitizeFilename cleans a string to be safe for use as a file or folder name.
// Sanitizing an already sanitized name returns it unchanged.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_") // Replace illegal chars with underscore
	sanitized = controlChars.ReplaceAllString(sanitized, "")      // Drop control characters
	sanitized = whitespaceRuns.ReplaceAllString(sanitized, " ")   // Collapse whitespace runs
	sanitized = strings.Trim(sanitized, ". ")                     // Trim leading/trailing dots and spaces

	if IsReservedName(sanitized) {
		sanitized = "_" + sanitized + "_"
	}

	if sanitized == "" {
		sanitized = DefaultFilename
	}
	return sanitized
}

// IsReservedName reports whether name is exactly a reserved device name (case-insensitive)
func IsReservedName(name string) bool {
	return reservedDeviceNames[strings.ToUpper(name)]
}

// TruncateRunes caps s at max runes without splitting a multi-byte character
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
