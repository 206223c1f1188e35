package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name      string
		data      func(t *testing.T) []byte
		maxBytes  int
		maxDim    int
		wantType  string
		wantW     int
		wantError string
	}{
		{name: "png", data: func(t *testing.T) []byte { return encodePNG(t, 10, 5) }, wantType: "image/png", wantW: 10},
		{name: "jpeg", data: encodeJPEG, wantType: "image/jpeg", wantW: 4},
		{name: "too wide", data: func(t *testing.T) []byte { return encodePNG(t, 30, 5) }, maxDim: 20, wantError: "larger than 20px"},
		{name: "too many bytes", data: func(t *testing.T) []byte { return encodePNG(t, 10, 10) }, maxBytes: 10, wantError: "larger than"},
		{name: "not an image", data: func(*testing.T) []byte { return []byte("%PDF-1.4 fake") }, wantError: "not a supported image type"},
		{name: "empty", data: func(*testing.T) []byte { return nil }, wantError: "is empty"},
		{name: "truncated png", data: func(t *testing.T) []byte { return encodePNG(t, 10, 10)[:20] }, wantError: "could not be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(tt.maxBytes, tt.maxDim)
			out, err := p.Process(context.Background(), "design", tt.data(t))
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("err = %v, want %q", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if out.ContentType != tt.wantType || out.Width != tt.wantW {
				t.Errorf("got %s %dpx, want %s %dpx", out.ContentType, out.Width, tt.wantType, tt.wantW)
			}
			if _, _, err := image.Decode(bytes.NewReader(out.Data)); err != nil {
				t.Errorf("output not decodable: %v", err)
			}
		})
	}
}
