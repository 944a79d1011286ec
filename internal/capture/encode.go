package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"
)

// JPEGQuality matches what browsers use for canvas JPEG export.
const JPEGQuality = 92

// MaxImageBytes caps uploaded and decoded images.
const MaxImageBytes = 50 << 20

var (
	ErrNotImage   = errors.New("file is not an image")
	ErrBadDataURL = errors.New("malformed data URL")
	ErrTooLarge   = errors.New("image too large")
	ErrEmptyImage = errors.New("image is empty")
)

// EncodeFrame renders img as a JPEG data URL.
func EncodeFrame(img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", ErrEmptyImage
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return DataURL("image/jpeg", buf.Bytes()), nil
}

// EncodeFile turns raw uploaded bytes into a data URL, sniffing the MIME type.
func EncodeFile(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return "", ErrTooLarge
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	return DataURL(mime, data), nil
}

func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data URL into MIME type and bytes. A bare
// base64 string is accepted too, with an empty MIME type.
func DecodeDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, ErrEmptyImage
	}

	mime, payload := "", s
	if strings.HasPrefix(s, "data:") {
		header, rest, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return "", nil, ErrBadDataURL
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = rest
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes {
		return "", nil, ErrTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	if len(data) == 0 {
		return "", nil, ErrEmptyImage
	}
	return mime, data, nil
}

// NormalizeDataURL validates an incoming data URL and returns it in
// canonical form with a sniffed image MIME type.
func NormalizeDataURL(s string) (string, error) {
	_, data, err := DecodeDataURL(s)
	if err != nil {
		return "", err
	}
	return EncodeFile(data)
}
