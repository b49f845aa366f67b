package workspace

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Classify maps a file to the kind tag the engine's priority rule
// understands. A plain extension map covers the common cases; extensionless
// and ambiguously named files fall back to a markup sniff and to enry's
// content-based detection.
func Classify(relPath string, content []byte) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(relPath)), ".")
	switch ext {
	case "html", "htm", "xhtml":
		return "html"
	case "css", "scss", "sass", "less":
		return "css"
	case "js", "jsx", "mjs", "cjs", "ts", "tsx":
		return "javascript"
	case "png", "jpg", "jpeg", "gif", "svg", "webp", "ico", "bmp", "avif":
		return "image"
	}

	if looksLikeHTML(content) {
		return "html"
	}

	lang := enry.GetLanguage(filepath.Base(relPath), content)
	switch lang {
	case "HTML", "HTML+ERB", "HTML+PHP", "XHTML":
		return "html"
	case "CSS", "SCSS", "Sass", "Less":
		return "css"
	case "JavaScript", "TypeScript", "JSX", "TSX":
		return "javascript"
	case "SVG":
		return "image"
	}
	return "other"
}

// looksLikeHTML reports whether content opens with an HTML doctype or root
// tag, which extensionless templates commonly do.
func looksLikeHTML(content []byte) bool {
	head := bytes.TrimSpace(content)
	if len(head) > 64 {
		head = head[:64]
	}
	prefix := strings.ToLower(string(head))
	return strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html")
}
