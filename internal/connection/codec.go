package connection

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const dataURLPrefix = "data:"

var (
	errEmptyPayload   = errors.New("empty payload")
	errPayloadTooBig  = errors.New("payload exceeds size limit")
	errInvalidDataURL = errors.New("invalid data URL")
)

// EncodeDataURL reads r to completion and returns it as a base64 data URL.
// The MIME type is sniffed from the content. A limit of 0 disables the size check.
func EncodeDataURL(r io.Reader, limit int64) (string, error) {
	if r == nil {
		return "", errEmptyPayload
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	if len(data) == 0 {
		return "", errEmptyPayload
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", fmt.Errorf("%w (%d bytes)", errPayloadTooBig, limit)
	}

	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	var b strings.Builder
	b.Grow(len(dataURLPrefix) + len(mime) + 8 + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(dataURLPrefix)
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String(), nil
}

// DecodeDataURL splits a base64 data URL into its MIME type and bytes.
// A bare base64 string without the data: header is accepted too.
func DecodeDataURL(s string) (string, []byte, error) {
	mime := ""
	payload := s

	if strings.HasPrefix(s, dataURLPrefix) {
		header, body, ok := strings.Cut(s[len(dataURLPrefix):], ",")
		if !ok {
			return "", nil, errInvalidDataURL
		}
		if !strings.HasSuffix(header, ";base64") {
			return "", nil, fmt.Errorf("%w: not base64", errInvalidDataURL)
		}
		mime = strings.TrimSuffix(header, ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errInvalidDataURL, err)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = mime[:i]
		}
	}
	return mime, data, nil
}

// EncodeBytes is EncodeDataURL for an in-memory payload.
func EncodeBytes(data []byte, limit int64) (string, error) {
	return EncodeDataURL(bytes.NewReader(data), limit)
}
