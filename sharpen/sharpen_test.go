package sharpen

import (
	"context"
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/nvr-ai/go-sharpen/profiler"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBuffer(w, h int, seed int64) *images.PixelBuffer {
	buf := images.MustPixelBuffer(w, h)
	rand.New(rand.NewSource(seed)).Read(buf.Samples)
	return buf
}

func newContext(t *testing.T) *compute.Context {
	t.Helper()
	cc, err := compute.NewContext(compute.HostEnumerator{}, compute.CPUOnly)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func newStrategies(t *testing.T, opts ...Option) (Strategy, Strategy) {
	t.Helper()
	serial, err := New(KindSerial, nil, opts...)
	require.NoError(t, err)
	parallel, err := New(KindDataParallel, newContext(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(parallel) })
	return serial, parallel
}

// referenceBlurChain blurs with the serial kernel the given number of times.
func referenceBlurChain(t *testing.T, src *images.PixelBuffer, radius, passes int) *images.PixelBuffer {
	t.Helper()
	cur := src
	for i := 0; i < passes; i++ {
		next := images.MustPixelBuffer(src.Width, src.Height)
		require.NoError(t, kernels.BoxBlur(next, cur, kernels.Options{Radius: radius}))
		cur = next
	}
	return cur
}

func TestStrategiesAgree(t *testing.T) {
	serial, parallel := newStrategies(t)
	ctx := context.Background()

	sizes := [][2]int{{1, 1}, {3, 7}, {16, 9}, {33, 20}}
	for _, mode := range []Mode{ThreePass, SinglePass} {
		for _, size := range sizes {
			img := randomBuffer(size[0], size[1], int64(size[0]*100+size[1]))
			for r := 0; r <= 4; r++ {
				p := Params{Radius: r, Weights: kernels.DefaultWeights(), Mode: mode}

				a, err := serial.Run(ctx, img, p)
				require.NoError(t, err)
				want := a.Clone()

				b, err := parallel.Run(ctx, img, p)
				require.NoError(t, err)
				require.Equal(t, want.Samples, b.Samples, "%s %dx%d r=%d", mode, size[0], size[1], r)
				assert.Equal(t, images.Checksum(want), images.Checksum(b))
			}
		}
	}
}

func TestPipelineMatchesBlurChain(t *testing.T) {
	img := randomBuffer(12, 10, 1)
	serial, parallel := newStrategies(t)

	for _, s := range []Strategy{serial, parallel} {
		for _, mode := range []Mode{ThreePass, SinglePass} {
			p := Params{Radius: 2, Weights: kernels.Weights{Alpha: 0, Beta: 1, Gamma: 0}, Mode: mode}
			got, err := s.Run(context.Background(), img, p)
			require.NoError(t, err)

			want := referenceBlurChain(t, img, 2, mode.Passes())
			assert.Equal(t, want.Samples, got.Samples, "%s %s", s.Name(), mode)
		}
	}
}

func TestThreePassDiffersFromSinglePass(t *testing.T) {
	img := randomBuffer(20, 20, 2)
	serial, _ := newStrategies(t)
	blurOnly := kernels.Weights{Alpha: 0, Beta: 1, Gamma: 0}

	three, err := serial.Run(context.Background(), img, Params{Radius: 2, Weights: blurOnly, Mode: ThreePass})
	require.NoError(t, err)
	threeCopy := three.Clone()

	one, err := serial.Run(context.Background(), img, Params{Radius: 2, Weights: blurOnly, Mode: SinglePass})
	require.NoError(t, err)

	assert.NotEqual(t, threeCopy.Samples, one.Samples)
}

func TestIdentityWeights(t *testing.T) {
	img := randomBuffer(9, 13, 3)
	serial, parallel := newStrategies(t)

	for _, s := range []Strategy{serial, parallel} {
		got, err := s.Run(context.Background(), img, Params{Radius: 3, Weights: kernels.Weights{Alpha: 1}, Mode: ThreePass})
		require.NoError(t, err)
		assert.True(t, got.Equal(img), s.Name())
	}
}

func TestFlatGrayIsUnchanged(t *testing.T) {
	img := images.MustPixelBuffer(4, 4)
	img.Fill(128)
	serial, parallel := newStrategies(t)

	p := DefaultParams()
	p.Radius = 1
	for _, s := range []Strategy{serial, parallel} {
		got, err := s.Run(context.Background(), img, p)
		require.NoError(t, err)
		for _, v := range got.Samples {
			require.Equal(t, byte(128), v, s.Name())
		}
	}
}

func TestWorkingSetReuse(t *testing.T) {
	serial, parallel := newStrategies(t)
	ctx := context.Background()
	p := DefaultParams()

	for _, s := range []Strategy{serial, parallel} {
		small := randomBuffer(5, 5, 4)
		first, err := s.Run(ctx, small, p)
		require.NoError(t, err)
		second, err := s.Run(ctx, randomBuffer(5, 5, 5), p)
		require.NoError(t, err)
		assert.Same(t, first, second, "%s reuses its output buffer", s.Name())

		large, err := s.Run(ctx, randomBuffer(8, 6, 6), p)
		require.NoError(t, err)
		assert.Equal(t, 8, large.Width)
		assert.Equal(t, 6, large.Height)
	}
}

func TestSwitchingSizesReleasesWorkingSet(t *testing.T) {
	cc := newContext(t)
	s, err := NewDataParallel(cc)
	require.NoError(t, err)
	ctx := context.Background()
	p := DefaultParams()

	wide := randomBuffer(40, 30, 1)
	narrow := randomBuffer(39, 30, 2)
	var last *compute.Buffer
	for i := 0; i < 20; i++ {
		img := wide
		if i%2 == 1 {
			img = narrow
		}
		_, err := s.Run(ctx, img, p)
		require.NoError(t, err)
		assert.Equal(t, 4, cc.LiveBuffers(), "run %d", i)

		if last != nil {
			assert.True(t, last.Released())
			assert.Zero(t, last.Len())
		}
		last = s.dOriginal
	}

	require.NoError(t, s.Close())
	assert.Zero(t, cc.LiveBuffers())
}

func TestUploadOnce(t *testing.T) {
	cc := newContext(t)
	prof := profiler.New(profiler.Options{})
	s, err := NewDataParallel(cc, WithUploadOnce(true), WithProfiler(prof))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	p := DefaultParams()
	img := randomBuffer(10, 10, 7)
	serial := NewSerial()
	want, err := serial.Run(ctx, img, p)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := s.Run(ctx, img, p)
		require.NoError(t, err)
		require.Equal(t, want.Samples, got.Samples)
	}

	// Only the first run uploads: the original and both blur buffers.
	stats := map[string]int64{}
	for _, op := range prof.Operations() {
		stats[op.Name] = op.Count
	}
	assert.Equal(t, int64(3), stats[StageUpload])
	assert.Equal(t, int64(9), stats[StageBlur])
	assert.Equal(t, int64(3), stats[StageCombine])
	assert.Equal(t, int64(3), stats[StageDownload])

	// A different original is uploaded even with UploadOnce.
	other := randomBuffer(10, 10, 8)
	want, err = serial.Run(ctx, other, p)
	require.NoError(t, err)
	got, err := s.Run(ctx, other, p)
	require.NoError(t, err)
	assert.Equal(t, want.Samples, got.Samples)
}

func TestReuploadEveryRunByDefault(t *testing.T) {
	cc := newContext(t)
	prof := profiler.New(profiler.Options{})
	s, err := NewDataParallel(cc, WithProfiler(prof))
	require.NoError(t, err)
	defer s.Close()

	img := randomBuffer(4, 4, 9)
	for i := 0; i < 2; i++ {
		_, err := s.Run(context.Background(), img, Params{Radius: 1, Weights: kernels.DefaultWeights(), Mode: SinglePass})
		require.NoError(t, err)
	}

	for _, op := range prof.Operations() {
		switch op.Name {
		case StageUpload:
			assert.Equal(t, int64(6), op.Count)
		case StageBlur:
			assert.Equal(t, int64(2), op.Count)
		}
	}
}

func TestSerialProfilesStages(t *testing.T) {
	prof := profiler.New(profiler.Options{})
	s := NewSerial(WithProfiler(prof))
	_, err := s.Run(context.Background(), randomBuffer(6, 6, 10), DefaultParams())
	require.NoError(t, err)

	ops := prof.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, StageBlur, ops[0].Name)
	assert.Equal(t, int64(3), ops[0].Count)
	assert.Equal(t, StageCombine, ops[1].Name)
}

func TestRunRejectsBadInput(t *testing.T) {
	serial, parallel := newStrategies(t)
	ctx := context.Background()
	img := randomBuffer(4, 4, 11)

	for _, s := range []Strategy{serial, parallel} {
		_, err := s.Run(ctx, img, Params{Radius: -1, Weights: kernels.DefaultWeights()})
		assert.True(t, errors.Is(err, kernels.ErrInvalidRadius), s.Name())

		_, err = s.Run(ctx, img, Params{Radius: 1, Mode: Mode(7)})
		assert.True(t, errors.Is(err, ErrInvalidParams), s.Name())

		bad := &images.PixelBuffer{Width: 4, Height: 4, Channels: 3, Samples: make([]byte, 5)}
		_, err = s.Run(ctx, bad, DefaultParams())
		assert.True(t, errors.Is(err, images.ErrInvalidGeometry), s.Name())
	}
}

func TestCancelledRun(t *testing.T) {
	serial, parallel := newStrategies(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := randomBuffer(4, 4, 12)

	_, err := serial.Run(ctx, img, DefaultParams())
	assert.Error(t, err)

	_, err = parallel.Run(ctx, img, DefaultParams())
	assert.True(t, errors.Is(err, compute.ErrDispatchFailure))

	// The strategy recovers once the caller stops cancelling.
	_, err = parallel.Run(context.Background(), img, DefaultParams())
	assert.NoError(t, err)
}

func TestRunAfterContextClosed(t *testing.T) {
	cc, err := compute.NewContext(compute.HostEnumerator{}, compute.CPUOnly)
	require.NoError(t, err)
	s, err := NewDataParallel(cc)
	require.NoError(t, err)
	require.NoError(t, cc.Close())

	_, err = s.Run(context.Background(), randomBuffer(3, 3, 13), DefaultParams())
	assert.True(t, errors.Is(err, compute.ErrContextClosed))
}

func TestNew(t *testing.T) {
	_, err := New(KindDataParallel, nil)
	assert.Error(t, err)
	_, err = New(Kind(9), nil)
	assert.Error(t, err)

	s, err := New(KindSerial, nil)
	require.NoError(t, err)
	assert.Equal(t, "serial", s.Name())
	assert.NoError(t, Close(s))
}

func TestParseKindAndMode(t *testing.T) {
	k, err := ParseKind("data-parallel")
	require.NoError(t, err)
	assert.Equal(t, KindDataParallel, k)
	k, err = ParseKind(KindSerial.String())
	require.NoError(t, err)
	assert.Equal(t, KindSerial, k)
	_, err = ParseKind("gpu")
	assert.Error(t, err)

	m, err := ModeForPasses(1)
	require.NoError(t, err)
	assert.Equal(t, SinglePass, m)
	assert.Equal(t, 3, ThreePass.Passes())
	_, err = ModeForPasses(2)
	assert.True(t, errors.Is(err, ErrInvalidParams))

	var parsed Mode
	text, err := SinglePass.MarshalText()
	require.NoError(t, err)
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, SinglePass, parsed)
	assert.Error(t, parsed.UnmarshalText([]byte("two-pass")))
}

func TestBlurChainRotation(t *testing.T) {
	type step struct{ dst, src string }
	for passes, want := range map[int][]step{
		1: {{"A", "orig"}},
		3: {{"A", "orig"}, {"B", "A"}, {"A", "B"}},
	} {
		var got []step
		final, err := blurChain("orig", [2]string{"A", "B"}, passes, func(_ int, dst, src string) error {
			got = append(got, step{dst, src})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, "A", final)
	}

	boom := errors.New("boom")
	_, err := blurChain("orig", [2]string{"A", "B"}, 3, func(pass int, _, _ string) error {
		if pass == 2 {
			return boom
		}
		return nil
	})
	assert.Equal(t, boom, err)
}
