package report

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// imageInfo describes a photo payload that can be embedded in the document.
type imageInfo struct {
	format string
	width  int
	height int
}

// IsDecodableImage reports whether data is an image the formatter can embed.
func IsDecodableImage(data []byte) bool {
	_, ok := inspectImage(data)
	return ok
}

func inspectImage(data []byte) (imageInfo, bool) {
	if len(data) == 0 {
		return imageInfo{}, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return imageInfo{}, false
	}
	return imageInfo{format: format, width: cfg.Width, height: cfg.Height}, true
}
