// Package qrcode turns gateway pairing materials into a PNG image.
package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the side of rendered images, in pixels.
const DefaultSize = 256

// ErrNoMaterial is returned when neither an image nor a raw code is available.
var ErrNoMaterial = errors.New("no qr code available")

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

// PNG returns PNG bytes for a pairing attempt. The gateway base64 image is
// preferred; when it is absent or unreadable the raw code is rendered.
func PNG(base64Image, code string, size int) ([]byte, error) {
	if base64Image != "" {
		if img, err := DecodeDataURI(base64Image); err == nil {
			return img, nil
		}
	}
	if code == "" {
		return nil, ErrNoMaterial
	}
	if size <= 0 {
		size = DefaultSize
	}
	img, err := goqrcode.Encode(code, goqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return img, nil
}

// DataURI renders a raw code as a data:image/png;base64 URI.
func DataURI(code string) (string, error) {
	img, err := goqrcode.Encode(code, goqrcode.Medium, DefaultSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(img), nil
}

// DecodeDataURI accepts "data:image/png;base64,...." or bare base64 and
// returns the PNG bytes.
func DecodeDataURI(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode qr image: %w", err)
	}
	if len(img) < len(pngMagic) || string(img[:len(pngMagic)]) != string(pngMagic) {
		return nil, errors.New("qr image is not a png")
	}
	return img, nil
}
