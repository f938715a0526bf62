// Package imaging converts user-supplied image payloads (file upload or
// camera frame, sent as base64 or a data URL) into a transport-ready
// EncodedImage.
package imaging

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

var allowedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Decode normalizes an incoming image payload. It accepts a bare base64
// string or a data URL, verifies the bytes decode, sniffs the real media
// type and rejects non-image content. The returned EncodedImage carries
// clean base64 without any data-URL prefix.
func Decode(payload, name string) (*listing.EncodedImage, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("empty image payload")
	}

	// Strip a data URL wrapper if present: data:<mediatype>;base64,<data>
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx == -1 {
			return nil, fmt.Errorf("malformed data URL")
		}
		payload = payload[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders omit padding
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image data: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	mediaType := http.DetectContentType(data)
	if !allowedMediaTypes[mediaType] {
		return nil, fmt.Errorf("unsupported media type %q (expected an image)", mediaType)
	}

	if name == "" {
		name = "photo" + extensionFor(mediaType)
	}

	return &listing.EncodedImage{
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
		Name:      name,
	}, nil
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
