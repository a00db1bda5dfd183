package images

import (
	"crypto/md5"
	"fmt"
)

// Checksum generates a deterministic checksum for a buffer to verify that two
// execution paths produced identical output.
//
// Arguments:
// - b: The buffer to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string over the geometry and samples.
//
// Example:
//
// ```go
//
//	if Checksum(serial) != Checksum(parallel) {
//		log.Fatal("strategies disagree")
//	}
//
// ```
func Checksum(b *PixelBuffer) string {
	if b == nil || len(b.Samples) == 0 {
		return "empty"
	}

	hash := md5.New()
	fmt.Fprintf(hash, "%dx%dx%d:", b.Width, b.Height, b.Channels)
	hash.Write(b.Samples)
	return fmt.Sprintf("%x", hash.Sum(nil))
}
