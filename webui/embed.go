// Package webui exposes the embedded dashboard files.
// It lives at the module root so it can embed the sibling directories;
// internal/server imports it to serve the UI and render views.
package webui

import "embed"

// FS holds web/ (the static dashboard, served as-is) and templates/
// (html/template views rendered by the dashboard when render_views is on).
//
//go:embed web templates
var FS embed.FS
