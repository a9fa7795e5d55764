package assets

import (
	"encoding/base64"
	"strings"

	"videoproc/internal/pkg/errors"
)

// DecodeDataURI parses data:<mime>[;params];base64,<payload>.
// Only base64 payloads are accepted.
func DecodeDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New(errors.CodeAsset, "not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New(errors.CodeAsset, "malformed data URI: missing payload separator")
	}

	parts := strings.Split(header, ";")
	mime = strings.ToLower(strings.TrimSpace(parts[0]))
	isBase64 := false
	for _, p := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, errors.New(errors.CodeAsset, "malformed data URI: payload is not base64")
	}

	data, err = decodeBase64(payload)
	if err != nil {
		return "", nil, err
	}
	return mime, data, nil
}

// ExtForMime picks the file extension for a data URI mime type.
func ExtForMime(mime string) string {
	m := strings.ToLower(mime)
	switch {
	case strings.Contains(m, "jpeg"), strings.Contains(m, "jpg"):
		return ".jpg"
	case strings.Contains(m, "webp"):
		return ".webp"
	case strings.Contains(m, "mp4"):
		return ".mp4"
	case strings.Contains(m, "gif"):
		return ".gif"
	default:
		return ".png"
	}
}

func decodeBase64(payload string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if clean == "" {
		return nil, errors.New(errors.CodeAsset, "empty base64 payload")
	}

	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeAsset, "assets.decode", "invalid base64 payload")
	}
	return data, nil
}
