package hud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRateCounter(t *testing.T) {
	c := NewFrameRateCounter(16*time.Millisecond, 4)
	start := time.Unix(100, 0)
	assert.Zero(t, c.AverageFPS())

	at := start
	for range 5 {
		c.SaveTimeStamp(at)
		at = at.Add(20 * time.Millisecond)
	}
	assert.Equal(t, 5, c.FrameCount())
	assert.InDelta(t, 50, c.AverageFPS(), 1e-9)
	assert.Equal(t, 0, c.DroppedFrameCount())

	// One late frame, then a long pause that is not counted at all.
	at = at.Add(20 * time.Millisecond)
	c.SaveTimeStamp(at)
	assert.Equal(t, 1, c.DroppedFrameCount())
	c.SaveTimeStamp(at.Add(5 * time.Second))
	assert.Equal(t, 1, c.DroppedFrameCount())

	iv := c.Intervals()
	require.Len(t, iv, 4, "ring keeps the newest intervals")
	assert.Equal(t, 5*time.Second, iv[3])
	assert.Equal(t, 40*time.Millisecond, iv[2])
}

func TestPainterSizesToText(t *testing.T) {
	p, err := NewPainter(0, "")
	require.NoError(t, err)

	c := NewFrameRateCounter(16*time.Millisecond, 0)
	short := p.Size(c)
	img := p.Paint(c)
	assert.Equal(t, short.Width, img.Rect.Dx())
	assert.Equal(t, short.Height, img.Rect.Dy())
	assert.Greater(t, img.RGBAAt(0, 0).A, uint8(0), "background is filled")

	assert.Greater(t, p.MeasureLine("frames 1000000"), p.MeasureLine("frames 1"))
	assert.Zero(t, p.MeasureLine(""))
}

func TestPainterLocale(t *testing.T) {
	p, err := NewPainter(10, "en")
	require.NoError(t, err)
	c := NewFrameRateCounter(time.Millisecond, 0)
	at := time.Unix(0, 0)
	for range 1234 {
		c.SaveTimeStamp(at)
		at = at.Add(time.Millisecond)
	}
	assert.Equal(t, "frames 1,234", p.Lines(c)[1])

	_, err = NewPainter(10, "not a locale!")
	assert.Error(t, err)
}
