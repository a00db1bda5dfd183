// Package codec reads and writes images.PixelBuffer values from and to disk.
//
// The format is chosen by file extension. PPM (P6), PNG, JPEG, BMP, TIFF and
// WebP are always available; building with -tags gocv adds the OpenCV
// backend for JPEG 2000, OpenEXR and Radiance HDR.
package codec

import (
	"bufio"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/pkg/errors"
)

var (
	// ErrDecode is returned for malformed headers, truncated sample data and
	// unknown extensions on read.
	ErrDecode = errors.New("codec: decode failed")
	// ErrIO is returned when a file cannot be opened, created or written.
	ErrIO = errors.New("codec: i/o failed")
)

// DecodeFunc decodes one image from r.
type DecodeFunc func(r io.Reader) (*images.PixelBuffer, error)

// EncodeFunc encodes buf to w.
type EncodeFunc func(w io.Writer, buf *images.PixelBuffer) error

// Format is a registered codec.
type Format struct {
	// Name is the canonical format identifier.
	Name images.ImageFormat
	// Decode reads the format from a stream.
	Decode DecodeFunc
	// Encode writes the format to a stream.
	Encode EncodeFunc
	// ReadFile, when set, replaces Decode for backends that only work on paths.
	ReadFile func(path string) (*images.PixelBuffer, error)
	// WriteFile, when set, replaces Encode for backends that only work on paths.
	WriteFile func(path string, buf *images.PixelBuffer) error
}

var (
	mu      sync.RWMutex
	formats = map[images.ImageFormat]Format{}
)

// Register installs f, replacing any codec already registered under f.Name.
func Register(f Format) {
	mu.Lock()
	defer mu.Unlock()
	formats[f.Name] = f
}

// Lookup returns the codec registered for format.
func Lookup(format images.ImageFormat) (Format, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := formats[format]
	return f, ok
}

// Formats lists the registered format names in sorted order.
func Formats() []images.ImageFormat {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]images.ImageFormat, 0, len(formats))
	for name := range formats {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Read loads the image at path.
//
// Arguments:
//   - path: The file to read. Its extension selects the codec.
//
// Returns:
//   - *images.PixelBuffer: The decoded 3-channel image.
//   - error: ErrIO when the file cannot be opened, ErrDecode otherwise.
func Read(path string) (*images.PixelBuffer, error) {
	f, ok := Lookup(images.FormatFromPath(path))
	if !ok {
		return nil, errors.Wrapf(ErrDecode, "%s: unsupported format", path)
	}
	if f.ReadFile != nil {
		return f.ReadFile(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "%s: %v", path, err)
	}
	defer file.Close()

	buf, err := f.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return buf, nil
}

// Write stores buf at path, replacing any existing file.
//
// Arguments:
//   - path: The destination file. Its extension selects the codec.
//   - buf: The image to write.
//
// Returns:
//   - error: ErrIO when the file cannot be created or written, ErrDecode for
//     an unknown extension, images.ErrInvalidGeometry for a malformed buffer.
func Write(path string, buf *images.PixelBuffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	f, ok := Lookup(images.FormatFromPath(path))
	if !ok {
		return errors.Wrapf(ErrDecode, "%s: unsupported format", path)
	}
	if f.WriteFile != nil {
		return f.WriteFile(path, buf)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(ErrIO, "%s: %v", path, err)
	}

	w := bufio.NewWriter(file)
	if err := f.Encode(w, buf); err != nil {
		file.Close()
		return errors.Wrap(err, path)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return errors.Wrapf(ErrIO, "%s: %v", path, err)
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(ErrIO, "%s: %v", path, err)
	}
	return nil
}
