package main

import (
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/displaylist"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/layer"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/resource"
	"github.com/gogpu/cc/surface"
)

const (
	boxSize     = 48
	textureSize = 64

	// textureEvery is the number of frames a produced texture is shown.
	textureEvery = 10
)

var palette = []gputypes.Color{
	{R: 0.95, G: 0.33, B: 0.31, A: 1},
	{R: 0.98, G: 0.76, B: 0.22, A: 1},
	{R: 0.30, G: 0.78, B: 0.47, A: 1},
	{R: 0.25, G: 0.55, B: 0.96, A: 1},
	{R: 0.65, G: 0.40, B: 0.90, A: 1},
}

// demoClient owns the layer tree. Every method runs on the main runner.
type demoClient struct {
	layer.BaseClient

	display display
	frames  int
	done    chan struct{}

	host    *layer.LayerTreeHost
	clip    *layer.Layer
	boxes   []*layer.SolidColorLayer
	texture *layer.TextureLayer
	start   time.Time

	drawn    int
	produced int

	// released is updated from the goroutine returning resources.
	released atomic.Int32
}

func newDemoClient(d display, frames int) *demoClient {
	return &demoClient{display: d, frames: max(frames, 1), done: make(chan struct{})}
}

func (c *demoClient) CreateOutputSurface() (surface.OutputSurface, error) {
	return c.display.OutputSurface()
}

func (c *demoClient) BeginMainFrame(args cc.BeginFrameArgs) {
	if c.start.IsZero() {
		c.start = args.FrameTime
	}
	c.layout(args.FrameTime.Sub(c.start).Seconds())
	if c.drawn%textureEvery == 0 {
		c.produceTexture()
	}
}

func (c *demoClient) DidCommitAndDrawFrame() {
	c.drawn++
	switch {
	case c.drawn == c.frames:
		close(c.done)
	case c.drawn < c.frames:
		c.host.SetNeedsAnimate()
	}
}

func (c *demoClient) DidLoseOutputSurface() {
	cc.Logger().Warn("ccdemo: output surface lost")
}

// build creates the layer tree.
func (c *demoClient) build(host *layer.LayerTreeHost, size geom.Size, scale float64) {
	c.host = host
	host.SetViewportSize(size)
	host.SetDeviceScaleFactor(scale)
	host.SetBackgroundColor(gputypes.Color{R: 0.08, G: 0.09, B: 0.12, A: 1})

	root := layer.New()
	root.SetBounds(size)
	root.SetDebugName("root")

	bg := layer.NewPictureLayer(layer.ContentClientFunc(paintBackground))
	bg.SetBounds(size)
	bg.SetContentsOpaque(true)
	bg.SetDebugName("background")
	root.AddChild(bg.Layer)

	c.clip = layer.New()
	c.clip.SetBounds(geom.Size{Width: size.Width * 3 / 4, Height: size.Height / 2})
	c.clip.SetPosition(geom.Point{X: float64(size.Width) / 8, Y: float64(size.Height) / 4})
	c.clip.SetMasksToBounds(true)
	c.clip.SetDebugName("clip")
	root.AddChild(c.clip)

	for i, col := range palette {
		box := layer.NewSolidColorLayer()
		box.SetBounds(geom.Size{Width: boxSize, Height: boxSize})
		box.SetBackgroundColor(col)
		if i%2 == 1 {
			box.SetOpacity(0.75)
		}
		c.clip.AddChild(box.Layer)
		c.boxes = append(c.boxes, box)
	}

	c.texture = layer.NewTextureLayer()
	c.texture.SetBounds(geom.Size{Width: textureSize, Height: textureSize})
	c.texture.SetPosition(geom.Point{
		X: float64(size.Width - textureSize - 16),
		Y: float64(size.Height - textureSize - 16),
	})
	c.texture.SetDebugName("texture")
	root.AddChild(c.texture.Layer)

	host.SetRootLayer(root)
	c.layout(0)
}

// layout moves the boxes along sine waves inside the clip layer. t is
// the animation time in seconds.
func (c *demoClient) layout(t float64) {
	b := c.clip.Bounds()
	span := float64(b.Width - boxSize)
	for i, box := range c.boxes {
		phase := float64(i) * math.Pi / float64(len(c.boxes))
		x := (math.Sin(t*2+phase) + 1) / 2 * span
		y := float64(i) * float64(b.Height-boxSize) / float64(max(len(c.boxes)-1, 1))
		box.SetPosition(geom.Point{X: math.Round(x), Y: math.Round(y)})
		if i == len(c.boxes)/2 {
			half := float64(boxSize) / 2
			box.SetTransform(geom.Translation(half, half).
				Multiply(geom.Rotation(t)).
				Multiply(geom.Translation(-half, -half)))
		}
	}
}

// produceTexture hands the texture layer a new checkerboard. With a
// mailbox manager the pixels are also shared as a mailbox texture.
func (c *demoClient) produceTexture() {
	c.produced++
	img := checkerboard(textureSize, palette[c.produced%len(palette)])
	mb := resource.TextureMailbox{
		Size:   geom.Size{Width: textureSize, Height: textureSize},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Bitmap: img,
	}
	mailboxes := c.display.Mailboxes()
	if mailboxes != nil {
		mb.Mailbox, mb.SyncToken = mailboxes.ProduceTexture(img)
	}
	n := c.produced
	c.texture.SetTextureMailbox(mb, resource.NewReleaseCallback(func(token quad.SyncToken, lost bool) {
		c.released.Add(1)
		if mailboxes != nil {
			mailboxes.Delete(mb.Mailbox)
		}
		cc.Logger().Debug("ccdemo: texture released", "texture", n, "release", token.Release, "lost", lost)
	}))
}

// report logs what the client saw once the compositor stopped.
func (c *demoClient) report() {
	cc.Logger().Info("ccdemo: finished",
		"frames", c.drawn, "textures", c.produced, "released", c.released.Load(),
		"source_frame", c.host.SourceFrameNumber())
}

func paintBackground(r *displaylist.Recorder, bounds geom.Size) {
	const bands = 24
	h := float64(bounds.Height) / bands
	for i := range bands {
		t := float64(i) / bands
		r.FillRect(geom.RectF{Y: float64(i) * h, Width: float64(bounds.Width), Height: math.Ceil(h)},
			gputypes.Color{R: 0.10 + t*0.15, G: 0.12 + t*0.10, B: 0.20 + t*0.20, A: 1})
	}
}

func checkerboard(size int, c gputypes.Color) *image.RGBA {
	on := color.RGBA{R: uint8(c.R * 255), G: uint8(c.G * 255), B: uint8(c.B * 255), A: 0xff}
	off := color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	const cell = 8
	for y := range size {
		for x := range size {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, on)
			} else {
				img.SetRGBA(x, y, off)
			}
		}
	}
	return img
}
