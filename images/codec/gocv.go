//go:build gocv

package codec

import (
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/pkg/errors"
)

// Formats only OpenCV can handle.
const (
	FormatJPEG2000 images.ImageFormat = "jp2"
	FormatEXR      images.ImageFormat = "exr"
	FormatHDR      images.ImageFormat = "hdr"
)

func init() {
	for _, name := range []images.ImageFormat{FormatJPEG2000, FormatEXR, FormatHDR} {
		Register(Format{Name: name, ReadFile: ReadMat, WriteFile: WriteMat})
	}
}

// ReadMat loads path through OpenCV as 8-bit BGR and converts it to RGB.
//
// Arguments:
//   - path: The file to read.
//
// Returns:
//   - *images.PixelBuffer: The decoded image.
//   - error: ErrDecode if OpenCV returns an empty matrix.
func ReadMat(path string) (*images.PixelBuffer, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return nil, errors.Wrapf(ErrDecode, "%s: opencv could not read image", path)
	}
	defer mat.Close()

	buf, err := FromMat(mat)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return buf, nil
}

// FromMat copies an 8-bit BGR matrix, such as a camera frame, into a new
// RGB buffer.
func FromMat(mat gocv.Mat) (*images.PixelBuffer, error) {
	if mat.Empty() || mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Wrapf(ErrDecode, "matrix is empty or not 8-bit BGR")
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	data, err := rgb.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%v", err)
	}
	buf, err := images.NewPixelBuffer(rgb.Cols(), rgb.Rows())
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%v", err)
	}
	copy(buf.Samples, data)
	return buf, nil
}

// ToMat converts buf into a new 8-bit BGR matrix. The caller closes it.
func ToMat(buf *images.PixelBuffer) (gocv.Mat, error) {
	if err := buf.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	mat, err := gocv.NewMatFromBytes(buf.Height, buf.Width, gocv.MatTypeCV8UC3, buf.Samples)
	if err != nil {
		return gocv.NewMat(), errors.Wrapf(ErrIO, "%v", err)
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBToBGR)
	return bgr, nil
}

// WriteMat stores buf through OpenCV, which picks the encoder from the
// extension of path.
func WriteMat(path string, buf *images.PixelBuffer) error {
	bgr, err := ToMat(buf)
	if err != nil {
		return errors.Wrap(err, path)
	}
	defer bgr.Close()

	if !gocv.IMWrite(path, bgr) {
		return errors.Wrapf(ErrIO, "%s: opencv could not write image", path)
	}
	return nil
}
