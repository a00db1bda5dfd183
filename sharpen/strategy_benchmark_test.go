package sharpen

import (
	"context"
	"testing"

	"github.com/nvr-ai/go-sharpen/compute"
)

func benchmarkStrategy(b *testing.B, kind Kind, w, h, r int) {
	var cc *compute.Context
	if kind == KindDataParallel {
		var err error
		cc, err = compute.NewContext(compute.HostEnumerator{}, compute.CPUOnly)
		if err != nil {
			b.Fatal(err)
		}
		defer cc.Close()
	}
	s, err := New(kind, cc)
	if err != nil {
		b.Fatal(err)
	}
	defer Close(s)

	img := randomBuffer(w, h, 1)
	p := DefaultParams()
	p.Radius = r
	ctx := context.Background()

	// One untimed run allocates the working set.
	if _, err := s.Run(ctx, img, p); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Run(ctx, img, p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSerial_512_r5(b *testing.B)         { benchmarkStrategy(b, KindSerial, 512, 512, 5) }
func BenchmarkSerial_1080p_r5(b *testing.B)       { benchmarkStrategy(b, KindSerial, 1920, 1080, 5) }
func BenchmarkDataParallel_512_r5(b *testing.B)   { benchmarkStrategy(b, KindDataParallel, 512, 512, 5) }
func BenchmarkDataParallel_1080p_r5(b *testing.B) { benchmarkStrategy(b, KindDataParallel, 1920, 1080, 5) }
