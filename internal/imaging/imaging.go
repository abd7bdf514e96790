// Package imaging converts between the transport encoding (base64 text,
// optionally wrapped in a browser data URL) and in-memory raster images.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/jpeg"
)

// ErrEmptyPayload indicates the transport payload carried no data.
var ErrEmptyPayload = errors.New("empty image payload")

// DecodeBase64 returns the raw bytes carried by a base64 payload. Browser
// captures arrive as data URLs ("data:image/png;base64,...."); the prefix is
// stripped before decoding.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	if strings.HasPrefix(payload, "data:") {
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, errors.New("malformed data URL")
		}
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}

// DecodeImage decodes raw bytes into a raster image. PNG and JPEG are the
// registered formats.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("image decode: %w", err)
	}
	return img, format, nil
}

// DecodeBase64Image combines DecodeBase64 and DecodeImage and also returns
// the raw bytes, which callers need for hashing and storage.
func DecodeBase64Image(payload string) (image.Image, []byte, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return nil, nil, err
	}
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, nil, err
	}
	return img, data, nil
}

// EncodeBase64PNG serializes a raster image to the transport encoding. PNG is
// lossless, so decoding the result reproduces the pixel grid exactly.
func EncodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("png encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBase64PNG is the inverse of EncodeBase64PNG.
func DecodeBase64PNG(payload string) (image.Image, error) {
	img, _, err := DecodeBase64Image(payload)
	if err != nil {
		return nil, err
	}
	return img, nil
}
