package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates/*/*.html
var Templates embed.FS

// Static embeds stylesheets and images served under /static/.
//
//go:embed static/*/*
var Static embed.FS
