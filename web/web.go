// Package web holds the HTML templates rendered by the HTTP layer.
package web

import "embed"

//go:embed templates/*.html
var Templates embed.FS
