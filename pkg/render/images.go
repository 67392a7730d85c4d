package render

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// The renderer only accepts embedded images: remote sources must be rewritten
// to data: URIs first (pkg/assets.ResolveImages does that for a schema).

// EncodeDataURI builds a data: URI from a mime type and raw bytes.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI splits a base64 data: URI into mime type and decoded bytes.
func ParseDataURI(uri string) (mime string, data []byte, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}
	rest := uri[len("data:"):]
	sep := strings.IndexByte(rest, ',')
	if sep < 0 {
		return "", nil, fmt.Errorf("malformed data URI: missing comma")
	}
	meta, payload := rest[:sep], rest[sep+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data URI must be base64 encoded")
	}
	mime = strings.TrimSuffix(meta, ";base64")
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data URI payload: %w", err)
	}
	return mime, data, nil
}

// imageTypeFromMime maps a mime type to the PDF backend's image type tag.
func imageTypeFromMime(mime string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return "PNG", nil
	case "image/jpeg", "image/jpg":
		return "JPG", nil
	case "image/gif":
		return "GIF", nil
	default:
		return "", fmt.Errorf("unsupported image mime type: %q", mime)
	}
}
