package codec

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// JPEGQuality is the quality used when writing JPEG files.
const JPEGQuality = 95

// WebPQuality is the quality used when writing lossy WebP files.
const WebPQuality = 90

func init() {
	Register(Format{Name: images.FormatPNG, Decode: decodeWith(png.Decode), Encode: encodeWith(png.Encode)})
	Register(Format{Name: images.FormatJPEG, Decode: decodeWith(jpeg.Decode), Encode: encodeJPEG})
	Register(Format{Name: images.FormatBMP, Decode: decodeWith(bmp.Decode), Encode: encodeWith(bmp.Encode)})
	Register(Format{Name: images.FormatTIFF, Decode: decodeWith(tiff.Decode), Encode: encodeTIFF})
	Register(Format{Name: images.FormatWebP, Decode: decodeWith(webp.Decode), Encode: encodeWebP})
}

// decodeWith adapts an image.Image decoder to a DecodeFunc.
func decodeWith(decode func(io.Reader) (image.Image, error)) DecodeFunc {
	return func(r io.Reader) (*images.PixelBuffer, error) {
		img, err := decode(r)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "%v", err)
		}
		buf, err := images.FromImage(img)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "%v", err)
		}
		return buf, nil
	}
}

// encodeWith adapts an image.Image encoder to an EncodeFunc.
func encodeWith(encode func(io.Writer, image.Image) error) EncodeFunc {
	return func(w io.Writer, buf *images.PixelBuffer) error {
		if err := encode(w, buf.ToImage()); err != nil {
			return errors.Wrapf(ErrIO, "%v", err)
		}
		return nil
	}
}

func encodeJPEG(w io.Writer, buf *images.PixelBuffer) error {
	if err := jpeg.Encode(w, buf.ToImage(), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return errors.Wrapf(ErrIO, "jpeg: %v", err)
	}
	return nil
}

func encodeTIFF(w io.Writer, buf *images.PixelBuffer) error {
	if err := tiff.Encode(w, buf.ToImage(), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return errors.Wrapf(ErrIO, "tiff: %v", err)
	}
	return nil
}

func encodeWebP(w io.Writer, buf *images.PixelBuffer) error {
	if err := webp.Encode(w, buf.ToImage(), &webp.Options{Quality: WebPQuality}); err != nil {
		return errors.Wrapf(ErrIO, "webp: %v", err)
	}
	return nil
}
