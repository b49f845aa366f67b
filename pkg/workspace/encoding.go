package workspace

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// binarySniffLen bounds how many leading bytes are inspected for binary
// detection, matching http.DetectContentType's own sniff window.
const binarySniffLen = 512

// textualMIMEs are non-"text/" content types that still carry text.
var textualMIMEs = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/ecmascript": true,
	"image/svg+xml":          true,
}

// IsBinary reports whether content looks like a non-text file. Detection
// combines MIME sniffing with a null-byte check on the sniff window; text
// formats never legitimately contain NUL.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) != -1 {
		return true
	}
	contentType := http.DetectContentType(sniff)
	if i := strings.Index(contentType, ";"); i != -1 {
		contentType = contentType[:i]
	}
	switch {
	case strings.HasPrefix(contentType, "text/"):
		return false
	case textualMIMEs[contentType] || strings.HasSuffix(contentType, "+xml") || strings.HasSuffix(contentType, "+json"):
		return false
	case contentType == "application/octet-stream":
		// Sniffing gave up; fall back to a UTF-8 validity check.
		return !utf8.Valid(sniff)
	default:
		return true
	}
}

// DecodeToUTF8 converts raw file content to UTF-8, detecting the source
// encoding from the content itself (BOM, meta tags, statistical heuristics).
// Content already valid as UTF-8 is returned unchanged.
func DecodeToUTF8(content []byte) ([]byte, error) {
	if utf8.Valid(content) {
		return content, nil
	}
	enc, name, _ := charset.DetermineEncoding(content, "")
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("decoding from %s: %w", name, err)
	}
	return decoded, nil
}
