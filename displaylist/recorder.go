package displaylist

import (
	"image"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/gputypes"
)

// Recorder captures paint commands in layer space.
//
// The Recorder is not safe for concurrent use.
type Recorder struct {
	bounds    geom.Rect
	commands  []Command
	transform geom.Transform
	stack     []geom.Transform
	solid     bool
}

// NewRecorder returns a recorder for content covering bounds.
func NewRecorder(bounds geom.Rect) *Recorder {
	return &Recorder{
		bounds:    bounds,
		commands:  make([]Command, 0, 16),
		transform: geom.Identity(),
	}
}

// Save pushes the current transform and clip.
func (r *Recorder) Save() {
	r.stack = append(r.stack, r.transform)
	r.commands = append(r.commands, SaveCommand{})
}

// Restore pops the transform and clip. Unbalanced calls are ignored.
func (r *Recorder) Restore() {
	if len(r.stack) == 0 {
		return
	}
	r.transform = r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	r.commands = append(r.commands, RestoreCommand{})
}

// SetTransform replaces the current transform.
func (r *Recorder) SetTransform(t geom.Transform) {
	r.transform = t
	r.commands = append(r.commands, SetTransformCommand{Transform: t})
}

// Translate post-multiplies the current transform by a translation.
func (r *Recorder) Translate(x, y float64) {
	r.SetTransform(r.transform.Translate(x, y))
}

// Scale post-multiplies the current transform by a scale.
func (r *Recorder) Scale(sx, sy float64) {
	r.SetTransform(r.transform.Multiply(geom.Scaling(sx, sy)))
}

// ClipRect intersects the clip with rect.
func (r *Recorder) ClipRect(rect geom.RectF) {
	r.commands = append(r.commands, ClipRectCommand{Rect: rect})
}

// FillRect fills rect with c.
func (r *Recorder) FillRect(rect geom.RectF, c gputypes.Color) {
	r.commands = append(r.commands, FillRectCommand{Rect: rect, Color: c})
}

// DrawImage draws img at the current origin.
func (r *Recorder) DrawImage(img image.Image) {
	if img == nil {
		return
	}
	r.commands = append(r.commands, DrawImageCommand{Image: img})
}

// Finish returns the immutable list. The Recorder must not be used again.
func (r *Recorder) Finish() *DisplayList {
	l := &DisplayList{bounds: r.bounds, commands: r.commands}
	l.solidColor, l.isSolid = l.analyzeSolidColor()
	r.commands = nil
	return l
}

// DisplayList is an immutable recording of a layer's paint.
// It is safe for concurrent playback.
type DisplayList struct {
	bounds     geom.Rect
	commands   []Command
	solidColor gputypes.Color
	isSolid    bool
}

// Bounds returns the recorded content bounds in layer space.
func (l *DisplayList) Bounds() geom.Rect {
	if l == nil {
		return geom.Rect{}
	}
	return l.bounds
}

// Commands returns the recorded commands.
func (l *DisplayList) Commands() []Command {
	if l == nil {
		return nil
	}
	return l.commands
}

// Len returns the number of commands.
func (l *DisplayList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.commands)
}

// SolidColor reports whether the list paints its whole bounds with one
// opaque color and nothing else, and returns that color. Such content is
// drawn as a solid color quad instead of tiles.
func (l *DisplayList) SolidColor() (gputypes.Color, bool) {
	if l == nil {
		return gputypes.Color{}, false
	}
	return l.solidColor, l.isSolid
}

func (l *DisplayList) analyzeSolidColor() (gputypes.Color, bool) {
	var c gputypes.Color
	found := false
	for _, cmd := range l.commands {
		f, ok := cmd.(FillRectCommand)
		if !ok {
			return gputypes.Color{}, false
		}
		if f.Color.A < 1 || !f.Rect.ToEnclosingRect().Contains(l.bounds) {
			return gputypes.Color{}, false
		}
		c, found = f.Color, true
	}
	return c, found
}

// Playback replays the list to backend.
func (l *DisplayList) Playback(backend Backend) error {
	if err := backend.Begin(l.Bounds()); err != nil {
		return err
	}
	for _, cmd := range l.Commands() {
		switch c := cmd.(type) {
		case SaveCommand:
			backend.Save()
		case RestoreCommand:
			backend.Restore()
		case SetTransformCommand:
			backend.SetTransform(c.Transform)
		case ClipRectCommand:
			backend.ClipRect(c.Rect)
		case FillRectCommand:
			backend.FillRect(c.Rect, c.Color)
		case DrawImageCommand:
			backend.DrawImage(c.Image)
		}
	}
	return backend.End()
}
