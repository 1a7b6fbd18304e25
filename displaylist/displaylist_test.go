package displaylist

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = gputypes.Color{R: 1, A: 1}

func TestRecorderCommands(t *testing.T) {
	rec := NewRecorder(geom.Rect{Width: 10, Height: 10})
	rec.Save()
	rec.Translate(2, 3)
	rec.FillRect(geom.RectF{Width: 4, Height: 4}, red)
	rec.Restore()
	rec.Restore() // unbalanced, ignored
	l := rec.Finish()

	types := make([]CommandType, 0, l.Len())
	for _, c := range l.Commands() {
		types = append(types, c.Type())
	}
	assert.Equal(t, []CommandType{CmdSave, CmdSetTransform, CmdFillRect, CmdRestore}, types)
	assert.Equal(t, "FillRect", CmdFillRect.String())
	assert.Equal(t, "Unknown", CommandType(200).String())
}

func TestSolidColorAnalysis(t *testing.T) {
	bounds := geom.Rect{Width: 20, Height: 20}

	rec := NewRecorder(bounds)
	rec.FillRect(geom.RectF{Width: 20, Height: 20}, red)
	c, ok := rec.Finish().SolidColor()
	require.True(t, ok)
	assert.Equal(t, red, c)

	rec = NewRecorder(bounds)
	rec.FillRect(geom.RectF{Width: 10, Height: 20}, red)
	_, ok = rec.Finish().SolidColor()
	assert.False(t, ok, "partial cover")

	rec = NewRecorder(bounds)
	rec.FillRect(geom.RectF{Width: 20, Height: 20}, gputypes.Color{R: 1, A: 0.5})
	_, ok = rec.Finish().SolidColor()
	assert.False(t, ok, "translucent")

	var nilList *DisplayList
	_, ok = nilList.SolidColor()
	assert.False(t, ok)
	assert.Equal(t, 0, nilList.Len())
}

func TestRasterTileOffset(t *testing.T) {
	rec := NewRecorder(geom.Rect{Width: 40, Height: 40})
	rec.FillRect(geom.RectF{X: 10, Y: 10, Width: 10, Height: 10}, red)
	l := rec.Finish()

	// Tile covering content rect (8,8)-(24,24) at scale 1.
	dst := image.NewRGBA(image.Rect(0, 0, 16, 16))
	require.NoError(t, l.Raster(dst, geom.Rect{X: 8, Y: 8, Width: 16, Height: 16}, 1))

	assert.Equal(t, color.RGBA{}, dst.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, dst.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, dst.RGBAAt(11, 11))
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(12, 12))
}

func TestRasterScaleAndClip(t *testing.T) {
	rec := NewRecorder(geom.Rect{Width: 10, Height: 10})
	rec.Save()
	rec.ClipRect(geom.RectF{Width: 5, Height: 10})
	rec.FillRect(geom.RectF{Width: 10, Height: 10}, red)
	rec.Restore()
	l := rec.Finish()

	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	require.NoError(t, l.Raster(dst, geom.Rect{Width: 20, Height: 20}, 2))
	assert.Equal(t, uint8(255), dst.RGBAAt(9, 19).R)
	assert.Equal(t, uint8(0), dst.RGBAAt(10, 0).A, "clipped half stays empty")
}

func TestRasterRotatedFill(t *testing.T) {
	rec := NewRecorder(geom.Rect{Width: 20, Height: 20})
	rec.SetTransform(geom.Translation(10, 10).Multiply(geom.Rotation(0.5)))
	rec.FillRect(geom.RectF{X: -3, Y: -3, Width: 6, Height: 6}, red)
	l := rec.Finish()

	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	require.NoError(t, l.Raster(dst, geom.Rect{Width: 20, Height: 20}, 1))
	assert.Equal(t, uint8(255), dst.RGBAAt(10, 10).R)
	assert.Equal(t, uint8(0), dst.RGBAAt(0, 0).A)
}

func TestRasterDrawImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			src.SetRGBA(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	rec := NewRecorder(geom.Rect{Width: 10, Height: 10})
	rec.Translate(3, 3)
	rec.DrawImage(src)
	rec.DrawImage(nil)
	l := rec.Finish()
	assert.Equal(t, 2, l.Len())

	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	require.NoError(t, l.Raster(dst, geom.Rect{Width: 10, Height: 10}, 1))
	assert.Equal(t, uint8(255), dst.RGBAAt(3, 3).G)
	assert.Equal(t, uint8(0), dst.RGBAAt(2, 2).A)
}
