package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/pkg/errors"
)

const (
	// maxPPMValue is the only sample range supported: one byte per sample.
	maxPPMValue = 255
	// maxPPMPixels bounds the raster a header may declare (16K x 8K).
	maxPPMPixels = 16384 * 8192
)

func init() {
	Register(Format{Name: images.FormatPPM, Decode: DecodePPM, Encode: EncodePPM})
}

// DecodePPM reads a binary (P6) portable pixmap with maxval 255.
//
// Header fields may be separated by any whitespace and interleaved with
// '#' comments that run to the end of the line. Exactly one whitespace byte
// separates the maxval from the sample data.
func DecodePPM(r io.Reader) (*images.PixelBuffer, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	magic := make([]byte, 2)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errors.Wrapf(ErrDecode, "ppm: reading magic: %v", err)
	}
	if string(magic) != "P6" {
		return nil, errors.Wrapf(ErrDecode, "ppm: bad magic %q", magic)
	}

	var header [3]int
	for i, name := range []string{"width", "height", "maxval"} {
		v, err := readPPMInt(br)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "ppm: %s: %v", name, err)
		}
		header[i] = v
	}
	width, height, maxval := header[0], header[1], header[2]
	if maxval != maxPPMValue {
		return nil, errors.Wrapf(ErrDecode, "ppm: maxval %d not supported", maxval)
	}

	// The single whitespace byte after maxval.
	if _, err := br.ReadByte(); err != nil {
		return nil, errors.Wrapf(ErrDecode, "ppm: missing raster: %v", err)
	}

	if width <= 0 || height <= 0 || width > maxPPMPixels/height {
		return nil, errors.Wrapf(ErrDecode, "ppm: unsupported geometry %dx%d", width, height)
	}

	// The raster grows with the data actually read, so a header that
	// overstates a short file costs no more than the file itself.
	n := width * height * images.Channels
	samples, err := io.ReadAll(io.LimitReader(br, int64(n)))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "ppm: raster: %v", err)
	}
	if len(samples) < n {
		return nil, errors.Wrapf(ErrDecode, "ppm: truncated raster for %dx%d: %d of %d bytes", width, height, len(samples), n)
	}
	buf, err := images.Wrap(width, height, samples)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "ppm: %v", err)
	}
	return buf, nil
}

// readPPMInt skips whitespace and comments and parses one decimal field.
func readPPMInt(br *bufio.Reader) (int, error) {
	var digits []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(digits) > 0 {
				break
			}
			return 0, err
		}
		switch {
		case c == '#' && len(digits) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return 0, err
			}
		case isPPMSpace(c):
			if len(digits) > 0 {
				if err := br.UnreadByte(); err != nil {
					return 0, err
				}
				return parsePPMInt(digits)
			}
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		default:
			return 0, fmt.Errorf("unexpected byte %q", c)
		}
	}
	return parsePPMInt(digits)
}

func parsePPMInt(digits []byte) (int, error) {
	if len(digits) > 9 {
		return 0, fmt.Errorf("value %s out of range", digits)
	}
	return strconv.Atoi(string(digits))
}

func isPPMSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// EncodePPM writes buf as a binary (P6) portable pixmap with maxval 255.
func EncodePPM(w io.Writer, buf *images.PixelBuffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "P6\n%d %d\n%d\n", buf.Width, buf.Height, maxPPMValue); err != nil {
		return errors.Wrapf(ErrIO, "ppm: header: %v", err)
	}
	if _, err := w.Write(buf.Samples); err != nil {
		return errors.Wrapf(ErrIO, "ppm: raster: %v", err)
	}
	return nil
}
