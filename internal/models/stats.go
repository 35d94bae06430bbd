package models

import "github.com/dustin/go-humanize"

// SizeUnknown marks a byte size the backend cannot measure.
const SizeUnknown int64 = -1

// KindStats describes one collection.
type KindStats struct {
	Name          Kind   `json:"name"`
	ItemCount     int    `json:"itemCount"`
	Size          int64  `json:"size"`
	FormattedSize string `json:"formattedSize"`
}

// Stats summarises the active backend.
type Stats struct {
	Backend       string      `json:"backend"`
	TotalItems    int         `json:"totalItems"`
	TotalSize     int64       `json:"totalSize"`
	FormattedSize string      `json:"formattedSize"`
	Sections      []KindStats `json:"sections"`
	LastUpdated   string      `json:"lastUpdated"`
	Version       string      `json:"version"`
}

// FormatSize renders n bytes for display; unknown sizes render as "N/A".
func FormatSize(n int64) string {
	if n < 0 {
		return "N/A"
	}
	return humanize.IBytes(uint64(n))
}
