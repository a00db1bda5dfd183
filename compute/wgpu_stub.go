//go:build nogpu

package compute

// GPUEnumerator reports no platforms when built with -tags nogpu.
type GPUEnumerator struct{}

// Platforms implements Enumerator.
func (*GPUEnumerator) Platforms() ([]Platform, error) {
	return nil, nil
}

// Close implements io.Closer.
func (*GPUEnumerator) Close() error {
	return nil
}
