package assets

import "embed"

// Templates holds the scaffolding files written by the init command.
//
//go:embed templates
var Templates embed.FS
