package images

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents the on-disk formats the codec understands.
type ImageFormat string

// ImageFormat constants
const (
	// FormatPPM is the binary portable pixmap (P6) format.
	FormatPPM ImageFormat = "ppm"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatBMP is the Windows bitmap format.
	FormatBMP ImageFormat = "bmp"
	// FormatTIFF is the TIFF image format.
	FormatTIFF ImageFormat = "tiff"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// FormatFromPath derives the image format from a file extension. Unknown
// extensions are returned lower-cased without the dot so that optional
// backends can register them.
func FormatFromPath(path string) ImageFormat {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "ppm", "pnm":
		return FormatPPM
	case "jpg", "jpeg":
		return FormatJPEG
	case "tif", "tiff":
		return FormatTIFF
	default:
		return ImageFormat(ext)
	}
}
