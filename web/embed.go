// Package web holds the dashboard's HTML templates and browser assets.
package web

import "embed"

// TemplatesFS holds the page, dashboard, calculator, entry table and chart
// templates, parsed together by the HTTP server.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS is served under /static/.
//
//go:embed static/*.css static/*.js
var StaticFS embed.FS
