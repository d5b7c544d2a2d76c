package attachment

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
)

var mimeToExt = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// DecodeDataURL parses data:<mime>;base64,<payload>.
func DecodeDataURL(raw string) (mimeType string, data []byte, err error) {
	if !strings.HasPrefix(raw, "data:") {
		return "", nil, ErrMalformedDataURL
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok || payload == "" {
		return "", nil, ErrMalformedDataURL
	}
	mimeType, ok = strings.CutSuffix(header, ";base64")
	if !ok || mimeType == "" {
		return "", nil, ErrMalformedDataURL
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformedDataURL, err)
		}
	}
	return mimeType, data, nil
}

// ExtForMIME returns a file extension for a MIME type, or "" when unknown.
func ExtForMIME(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if ext, ok := mimeToExt[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
