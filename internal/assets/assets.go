// Package assets bundles static data shipped with the binary.
package assets

import "embed"

// SchedulePath is the bundled weekly schedule inside FS.
const SchedulePath = "data/schedule.json"

// FS holds the bundled files.
//
//go:embed data
var FS embed.FS
