package blob

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const MaxImageBytes = 5 << 20

var (
	ErrImageTooLarge   = errors.New("image exceeds 5 MiB")
	ErrImageType       = errors.New("unsupported image type")
	ErrImageDimensions = errors.New("image dimensions out of range")
)

// Image is a validated image upload.
type Image struct {
	ContentType string
	Ext         string
	Width       int
	Height      int
}

var imageFormats = map[string]Image{
	"jpeg": {ContentType: "image/jpeg", Ext: "jpg"},
	"png":  {ContentType: "image/png", Ext: "png"},
	"gif":  {ContentType: "image/gif", Ext: "gif"},
	"webp": {ContentType: "image/webp", Ext: "webp"},
}

// InspectImage sniffs data by decoding its header, so the declared content
// type of an upload is never trusted.
func InspectImage(data []byte) (Image, error) {
	if len(data) > MaxImageBytes {
		return Image{}, ErrImageTooLarge
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, ErrImageType
	}
	img, ok := imageFormats[format]
	if !ok {
		return Image{}, ErrImageType
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > 4096 || cfg.Height > 4096 {
		return Image{}, ErrImageDimensions
	}
	img.Width, img.Height = cfg.Width, cfg.Height
	return img, nil
}
