//go:build gocv

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images/codec"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"gocv.io/x/gocv"
)

func main() {
	var (
		deviceID = flag.Int("device", 0, "Video capture device")
		radius   = flag.Int("radius", sharpen.DefaultRadius, "Blur radius")
		passes   = flag.Int("passes", 3, "Blur passes: 1 or 3")
		show     = flag.Bool("window", true, "Show the sharpened frames in a window")
	)
	flag.Parse()

	mode, err := sharpen.ModeForPasses(*passes)
	if err != nil {
		fmt.Println(err)
		return
	}
	params := sharpen.DefaultParams()
	params.Radius = *radius
	params.Mode = mode
	if err := params.Validate(); err != nil {
		fmt.Println(err)
		return
	}

	cc, err := compute.NewContext(compute.Enumerators{compute.HostEnumerator{}, &compute.GPUEnumerator{}}, compute.PreferAccelerator)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer cc.Close()

	strategy, err := sharpen.NewDataParallel(cc)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer strategy.Close()

	// open webcam
	webcam, err := gocv.OpenVideoCapture(*deviceID)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer webcam.Close()

	var window *gocv.Window
	if *show {
		window = gocv.NewWindow("Sharpened")
		defer window.Close()
	}

	// prepare image matrix
	img := gocv.NewMat()
	defer img.Close()

	// FPS tracking variables
	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	ctx := context.Background()
	fmt.Printf("start reading camera device %v, sharpening on %s\n", *deviceID, cc.ExecutionDevice())
	for {
		if ok := webcam.Read(&img); !ok {
			fmt.Printf("cannot read device %v\n", *deviceID)
			return
		}
		if img.Empty() {
			continue
		}

		frame, err := codec.FromMat(img)
		if err != nil {
			fmt.Println(err)
			return
		}

		start := time.Now()
		sharpened, err := strategy.Run(ctx, frame, params)
		if err != nil {
			fmt.Println(err)
			return
		}
		took := time.Since(start)

		// Update FPS calculation
		frameCount++
		currentTime := time.Now()
		elapsed := currentTime.Sub(lastTime).Seconds()

		// Calculate FPS every second
		if elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = currentTime
			fmt.Printf("%dx%d | sharpen %v | FPS: %.2f\n", frame.Width, frame.Height, took.Truncate(time.Microsecond), fps)
		}

		if window == nil {
			continue
		}
		out, err := codec.ToMat(sharpened)
		if err != nil {
			fmt.Println(err)
			return
		}
		// show the image in the window, and wait 1 millisecond
		window.IMShow(out)
		out.Close()
		window.WaitKey(1)
	}
}
