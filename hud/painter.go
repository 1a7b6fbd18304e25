package hud

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/go-text/typesetting/di"
	gtfont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/cc/geom"
)

// Layout constants in device pixels.
const (
	DefaultFontSize = 12
	padding         = 4
	lineGap         = 2
)

var (
	background = color.NRGBA{A: 0xc0}
	foreground = color.NRGBA{R: 0x40, G: 0xff, B: 0x40, A: 0xff}
	warning    = color.NRGBA{R: 0xff, G: 0x60, B: 0x40, A: 0xff}
)

// Painter renders frame statistics into a bitmap.
//
// Lines are shaped with HarfBuzz to size the bitmap and drawn with an
// OpenType face. Counters are formatted for the painter's locale.
type Painter struct {
	mu      sync.Mutex
	size    float64
	printer *message.Printer
	face    font.Face
	shaper  shaping.HarfbuzzShaper
	gtFont  *gtfont.Font
}

// NewPainter returns a painter using the Go Regular font at size points
// (DefaultFontSize if size <= 0) and the given locale tag ("en" if empty).
func NewPainter(size float64, locale string) (*Painter, error) {
	if size <= 0 {
		size = DefaultFontSize
	}
	tag := xlanguage.English
	if locale != "" {
		t, err := xlanguage.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("hud: locale %q: %w", locale, err)
		}
		tag = t
	}
	otf, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("hud: parse font: %w", err)
	}
	face, err := opentype.NewFace(otf, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("hud: font face: %w", err)
	}
	gt, err := gtfont.ParseTTF(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("hud: parse font for shaping: %w", err)
	}
	return &Painter{
		size:    size,
		printer: message.NewPrinter(tag),
		face:    face,
		gtFont:  gt.Font,
	}, nil
}

// Lines returns the text the painter draws for c.
func (p *Painter) Lines(c *FrameRateCounter) []string {
	return []string{
		p.printer.Sprintf("%.1f fps", c.AverageFPS()),
		p.printer.Sprintf("frames %d", c.FrameCount()),
		p.printer.Sprintf("dropped %d", c.DroppedFrameCount()),
	}
}

// MeasureLine returns the shaped advance width of s in pixels.
func (p *Painter) MeasureLine(s string) float64 {
	if s == "" {
		return 0
	}
	runes := []rune(s)
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      gtfont.NewFace(p.gtFont),
		Size:      fixed.Int26_6(p.size * 64),
		Script:    language.Latin,
		Language:  language.NewLanguage("en"),
	})
	var adv fixed.Int26_6
	for _, g := range out.Glyphs {
		adv += g.Advance
	}
	return float64(adv) / 64
}

// Size returns the bitmap size Paint produces for c.
func (p *Painter) Size(c *FrameRateCounter) geom.Size {
	return p.sizeFor(p.Lines(c))
}

func (p *Painter) sizeFor(lines []string) geom.Size {
	width := 0.0
	for _, l := range lines {
		width = math.Max(width, p.MeasureLine(l))
	}
	m := p.face.Metrics()
	lineHeight := (m.Ascent + m.Descent).Ceil() + lineGap
	return geom.Size{
		Width:  int(math.Ceil(width)) + 2*padding,
		Height: lineHeight*len(lines) + 2*padding,
	}
}

// Paint renders the statistics of c. The first line turns to the warning
// color once frames have been dropped.
func (p *Painter) Paint(c *FrameRateCounter) *image.RGBA {
	lines := p.Lines(c)
	size := p.sizeFor(lines)
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	fg := foreground
	if c.DroppedFrameCount() > 0 {
		fg = warning
	}
	m := p.face.Metrics()
	lineHeight := (m.Ascent + m.Descent).Ceil() + lineGap

	p.mu.Lock()
	defer p.mu.Unlock()
	d := font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: p.face}
	for i, l := range lines {
		d.Dot = fixed.P(padding, padding+i*lineHeight+m.Ascent.Ceil())
		d.DrawString(l)
		d.Src = image.NewUniform(foreground)
	}
	return img
}
