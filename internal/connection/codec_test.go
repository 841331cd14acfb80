package connection

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeDataURL(t *testing.T) {
	got, err := EncodeDataURL(bytes.NewReader(pngHeader), 0)
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("EncodeDataURL = %q, want image/png data URL", got[:32])
	}

	mime, data, err := DecodeDataURL(got)
	if err != nil {
		t.Fatalf("DecodeDataURL failed: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}
	if !bytes.Equal(data, pngHeader) {
		t.Error("decoded bytes do not match input")
	}
}

func TestEncodeDataURL_Errors(t *testing.T) {
	if _, err := EncodeDataURL(nil, 0); !errors.Is(err, errEmptyPayload) {
		t.Errorf("nil reader: error = %v, want errEmptyPayload", err)
	}
	if _, err := EncodeBytes(nil, 0); !errors.Is(err, errEmptyPayload) {
		t.Errorf("empty payload: error = %v, want errEmptyPayload", err)
	}
	if _, err := EncodeBytes(pngHeader, int64(len(pngHeader))); err != nil {
		t.Errorf("payload at limit: unexpected error %v", err)
	}
	if _, err := EncodeBytes(pngHeader, int64(len(pngHeader)-1)); !errors.Is(err, errPayloadTooBig) {
		t.Errorf("payload over limit: error = %v, want errPayloadTooBig", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantMime string
		wantErr  bool
	}{
		{name: "jpeg data URL", in: "data:image/jpeg;base64,/9j/4AAQ", wantMime: "image/jpeg"},
		{name: "bare base64", in: "iVBORw0KGgoAAAANSUhEUg==", wantMime: "image/png"},
		{name: "missing comma", in: "data:image/png;base64", wantErr: true},
		{name: "not base64", in: "data:text/plain,hello", wantErr: true},
		{name: "bad payload", in: "data:image/png;base64,!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, _, err := DecodeDataURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errInvalidDataURL) {
					t.Errorf("error = %v, want errInvalidDataURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mime != tt.wantMime {
				t.Errorf("mime = %q, want %q", mime, tt.wantMime)
			}
		})
	}
}
