// Package displaylist records the paint output of content layers.
//
// A picture layer's client paints into a Recorder on the main thread; the
// finished DisplayList is immutable and is shared with the impl thread at
// commit, where raster workers replay it into tile bitmaps. Commands are
// typed structs so that tests can inspect what a layer painted.
//
// # Example
//
//	rec := displaylist.NewRecorder(geom.Rect{Width: 100, Height: 100})
//	rec.FillRect(geom.RectF{Width: 50, Height: 50}, gputypes.Color{R: 1, A: 1})
//	list := rec.Finish()
//	list.Playback(backend)
package displaylist

import (
	"image"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/gputypes"
)

// CommandType identifies the type of a command.
type CommandType uint8

const (
	CmdSave         CommandType = iota // Save transform and clip
	CmdRestore                         // Restore transform and clip
	CmdSetTransform                    // Replace the current transform
	CmdClipRect                        // Intersect the clip with a rect
	CmdFillRect                        // Fill a rect with a color
	CmdDrawImage                       // Draw an image at the current transform
)

var commandTypeNames = [...]string{
	CmdSave:         "Save",
	CmdRestore:      "Restore",
	CmdSetTransform: "SetTransform",
	CmdClipRect:     "ClipRect",
	CmdFillRect:     "FillRect",
	CmdDrawImage:    "DrawImage",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is implemented by every recorded operation.
type Command interface {
	Type() CommandType
}

// SaveCommand pushes the transform and clip.
type SaveCommand struct{}

// RestoreCommand pops the transform and clip.
type RestoreCommand struct{}

// SetTransformCommand replaces the current transform.
type SetTransformCommand struct {
	Transform geom.Transform
}

// ClipRectCommand intersects the clip with Rect in the current transform.
type ClipRectCommand struct {
	Rect geom.RectF
}

// FillRectCommand fills Rect with Color, source-over.
type FillRectCommand struct {
	Rect  geom.RectF
	Color gputypes.Color
}

// DrawImageCommand draws Image with its top-left corner at the origin of
// the current transform.
type DrawImageCommand struct {
	Image image.Image
}

func (SaveCommand) Type() CommandType         { return CmdSave }
func (RestoreCommand) Type() CommandType      { return CmdRestore }
func (SetTransformCommand) Type() CommandType { return CmdSetTransform }
func (ClipRectCommand) Type() CommandType     { return CmdClipRect }
func (FillRectCommand) Type() CommandType     { return CmdFillRect }
func (DrawImageCommand) Type() CommandType    { return CmdDrawImage }
