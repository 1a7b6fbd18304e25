// Command ccdemo drives the compositor for a number of frames and saves
// the last presented frame as a PNG image.
//
// The frames go to one of three outputs: the software output surface,
// the in-memory scene graph of the delegated adapter, or a remote display
// over a websocket. With -listen the command is that remote display.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/layer"
	"github.com/gogpu/cc/proxy"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/scheduler"
	"github.com/gogpu/cc/surface"
)

func main() {
	var (
		width    = flag.Int("width", 640, "viewport width in device pixels")
		height   = flag.Int("height", 480, "viewport height in device pixels")
		scale    = flag.Float64("scale", 1, "device scale factor")
		frames   = flag.Int("frames", 30, "frames to draw before exiting")
		mode     = flag.String("mode", "software", "output: software, delegated or remote")
		remote   = flag.String("remote", "ws://localhost:8080/frames", "display URL for -mode remote")
		listen   = flag.String("listen", "", "serve a remote display on this address")
		config   = flag.String("config", "", "TOML settings file")
		threaded = flag.Bool("threaded", false, "use the threaded proxy")
		output   = flag.String("output", "ccdemo.png", "output file")
		verbose  = flag.Bool("v", false, "log compositor events")
		dump     = flag.Bool("dump-settings", false, "print the effective settings and exit")
	)
	flag.Parse()

	if *verbose {
		cc.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	settings := cc.DefaultSettings()
	if *config != "" {
		var err error
		if settings, err = cc.LoadSettings(*config); err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "threaded" {
			settings.Threaded = *threaded
		}
	})
	if *dump {
		data, err := cc.MarshalSettings(settings)
		if err != nil {
			log.Fatalf("Failed to encode settings: %v", err)
		}
		fmt.Print(string(data))
		return
	}

	if *listen != "" {
		if err := serve(*listen, *output); err != nil {
			log.Fatalf("Display failed: %v", err)
		}
		return
	}

	size := geom.Size{Width: *width, Height: *height}
	if *scale <= 0 {
		log.Fatalf("Invalid scale %v", *scale)
	}
	d, err := newDisplay(*mode, *remote, size, *scale)
	if err != nil {
		log.Fatalf("Failed to create display: %v", err)
	}
	defer d.Close()

	start := time.Now()
	if err := run(settings, d, size, *scale, *frames); err != nil {
		log.Fatalf("Failed to run: %v", err)
	}

	img := d.Image()
	if img == nil {
		log.Printf("Drew %d frames in %v (%s output keeps no image)\n", *frames, time.Since(start), *mode)
		return
	}
	if err := savePNG(*output, img); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Drew %d frames in %v, saved %s (%dx%d)\n",
		*frames, time.Since(start), *output, img.Bounds().Dx(), img.Bounds().Dy())
}

// run builds the demo scene and waits until the client saw n frames
// committed and drawn.
func run(settings cc.LayerTreeSettings, d display, size geom.Size, scale float64, n int) error {
	mainRunner := taskrunner.New("main")
	implRunner := taskrunner.New("impl")
	source := scheduler.NewSyntheticBeginFrameSource(time.Duration(settings.BeginFrameInterval))
	defer func() {
		source.Stop()
		implRunner.Stop()
		mainRunner.Stop()
	}()

	client := newDemoClient(d, n)
	var p proxy.Proxy
	err := taskrunner.PostAndWait(mainRunner, func() {
		host := layer.NewLayerTreeHost(client, settings)
		p = proxy.New(host, mainRunner, implRunner, source)
		d.SetResourceLookup(p.HostImpl().ResourceProvider())
		client.build(host, size, scale)
		p.Start()
	})
	if err != nil {
		return fmt.Errorf("start compositor: %w", err)
	}

	var waitErr error
	select {
	case <-client.done:
	case <-time.After(time.Duration(n)*time.Second + 5*time.Second):
		waitErr = errors.New("timed out waiting for frames")
	}
	if err := taskrunner.PostAndWait(mainRunner, func() {
		p.Stop()
		client.report()
	}); err != nil {
		return fmt.Errorf("stop compositor: %w", err)
	}
	return waitErr
}

// serve runs a remote display until interrupted and then saves the last
// frame it received.
func serve(addr, output string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d := surface.NewRemoteDisplay(func(f *quad.CompositorFrame) {
		cc.Logger().Debug("ccdemo: frame received", "frame", f.Metadata.FrameID, "passes", len(f.RenderPassList))
	})
	mux := http.NewServeMux()
	mux.Handle("/frames", d)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("Serving remote display on %s/frames\n", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if img := d.Image(); img != nil {
		if err := savePNG(output, img); err != nil {
			return err
		}
		log.Printf("Received %d frames, saved %s\n", d.FrameCount(), output)
	}
	return nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
