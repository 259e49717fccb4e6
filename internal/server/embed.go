package server

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/gatewatch/webui"
)

const sysinfoTemplate = "sysinfo.tmpl"

// RegisterStaticFiles mounts the embedded dashboard UI on r.
// Unmatched GET requests get the named file if it exists, otherwise
// index.html.
func RegisterStaticFiles(r *gin.Engine) error {
	webRoot, err := fs.Sub(webui.FS, "web")
	if err != nil {
		return fmt.Errorf("embed: web sub-fs: %w", err)
	}
	staticFS := http.FS(webRoot)

	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		name := strings.TrimPrefix(c.Request.URL.Path, "/")
		if name != "" && name != "index.html" {
			if _, err := fs.Stat(webRoot, name); err == nil {
				c.FileFromFS(name, staticFS)
				return
			}
		}

		data, err := fs.ReadFile(webRoot, "index.html")
		if err != nil {
			c.String(http.StatusNotFound, "UI not found")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
	})
	return nil
}

func loadTemplates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"gb": func(b uint64) string {
			return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
		},
	}).ParseFS(webui.FS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing view templates: %w", err)
	}
	return tmpl, nil
}
