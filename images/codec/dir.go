package codec

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/pkg/errors"
)

// ImageFile is one decoded image from a directory listing.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Buffer holds the decoded samples.
	Buffer *images.PixelBuffer
	// Frame is the frame number parsed from a "frame-<n>" name, or -1.
	Frame int
}

// ReadDir decodes every file in dir that has a registered codec.
//
// Files named "frame-<n>.<ext>" are ordered by n; everything else follows in
// lexical order. Subdirectories and unsupported extensions are skipped.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The decoded images.
//   - error: ErrIO if the directory cannot be listed, or the first decode error.
func ReadDir(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "%s: %v", dir, err)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := Lookup(images.FormatFromPath(entry.Name())); !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		buf, err := Read(path)
		if err != nil {
			return nil, err
		}
		files = append(files, ImageFile{Path: path, Buffer: buf, Frame: frameNumber(entry.Name())})
	}

	sort.SliceStable(files, func(i, j int) bool {
		fi, fj := files[i].Frame, files[j].Frame
		if (fi < 0) != (fj < 0) {
			return fi >= 0
		}
		if fi != fj {
			return fi < fj
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func frameNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(base, "frame-") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "frame-"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}
