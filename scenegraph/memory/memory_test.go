package memory

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/scenegraph"
)

func fill(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestTextureUpdates(t *testing.T) {
	tex := NewTexture(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	assert.Equal(t, 2, tex.Width())
	assert.Equal(t, 2, tex.Height())

	require.NoError(t, tex.UpdateData(fill(2, 2, color.RGBA{R: 1, A: 0xff}).Pix))
	assert.Equal(t, color.RGBA{R: 1, A: 0xff}, tex.Image().RGBAAt(1, 1))
	assert.ErrorIs(t, tex.UpdateData(make([]byte, 3)), ErrTextureSize)

	require.NoError(t, tex.UpdateRegion(1, 0, 1, 2, fill(1, 2, color.RGBA{B: 9, A: 0xff}).Pix))
	assert.Equal(t, color.RGBA{B: 9, A: 0xff}, tex.Image().RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{R: 1, A: 0xff}, tex.Image().RGBAAt(0, 1))
	assert.ErrorIs(t, tex.UpdateRegion(1, 1, 2, 2, make([]byte, 16)), ErrTextureSize)
}

func TestNewTextureFromRGBA(t *testing.T) {
	ctx := NewContext()
	tex, err := ctx.NewTextureFromRGBA(1, 1, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 4}, tex.(*Texture).Image().RGBAAt(0, 0))

	_, err = ctx.NewTextureFromRGBA(2, 2, []byte{1})
	assert.ErrorIs(t, err, ErrTextureSize)
}

func TestMailboxManager(t *testing.T) {
	m := NewMailboxManager()
	mb1, tok1 := m.ProduceTexture(fill(1, 1, color.RGBA{A: 0xff}))
	mb2, tok2 := m.ProduceTexture(fill(1, 1, color.RGBA{A: 0xff}))
	assert.NotEqual(t, mb1, mb2)
	assert.True(t, tok1.HasData())
	assert.Less(t, tok1.Release, tok2.Release)

	tex, err := m.FetchTexture(quad.TransferableResource{Mailbox: mb1})
	require.NoError(t, err)
	assert.Equal(t, 1, tex.Width())

	m.Delete(mb1)
	_, err = m.FetchTexture(quad.TransferableResource{Mailbox: mb1})
	assert.ErrorIs(t, err, ErrUnknownMailbox)
	assert.Equal(t, 2, m.FetchCount())
}

func TestRendererDrawsRectanglesUnderTransformClipAndOpacity(t *testing.T) {
	ctx := NewContext()
	root := ctx.NewTransformNode()
	root.SetMatrix(geom.Translation(2, 2))
	clip := ctx.NewClipNode()
	clip.SetClipRect(geom.RectF{Width: 6, Height: 6})
	root.AppendChild(clip)
	opacity := ctx.NewOpacityNode()
	opacity.SetOpacity(0.5)
	clip.AppendChild(opacity)
	rect := ctx.NewRectangleNode()
	rect.SetRect(geom.RectF{Width: 10, Height: 10})
	rect.SetColor(gputypes.Color{B: 1, A: 1})
	opacity.AppendChild(rect)

	dst := fill(12, 12, color.RGBA{R: 0xff, A: 0xff})
	r := NewRenderer()
	r.Draw(root, dst)

	assert.Equal(t, color.RGBA{B: 0x80, A: 0x80}, dst.RGBAAt(3, 3))
	assert.Zero(t, dst.RGBAAt(9, 9).A, "clipped, and the target is cleared first")
	assert.Zero(t, dst.RGBAAt(1, 1).A)
	assert.Equal(t, 4, r.Stats().Nodes)
	assert.Equal(t, 1, r.Stats().Rectangles)
}

func TestRendererDrawsBorders(t *testing.T) {
	ctx := NewContext()
	root := ctx.NewTransformNode()
	border := ctx.NewRectangleNode()
	border.SetRect(geom.RectF{Width: 10, Height: 10})
	border.SetColor(gputypes.Color{G: 1, A: 1})
	border.SetBorderWidth(1)
	root.AppendChild(border)

	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	NewRenderer().Draw(root, dst)
	assert.Equal(t, uint8(0xff), dst.RGBAAt(0, 5).G)
	assert.Equal(t, uint8(0xff), dst.RGBAAt(9, 9).G)
	assert.Zero(t, dst.RGBAAt(5, 5).A)
}

func TestRendererSamplesTextureSubRect(t *testing.T) {
	img := fill(2, 1, color.RGBA{R: 0xff, A: 0xff})
	img.SetRGBA(1, 0, color.RGBA{G: 0xff, A: 0xff})

	ctx := NewContext()
	root := ctx.NewTransformNode()
	tn := ctx.NewTextureNode()
	tn.SetRect(geom.RectF{Width: 4, Height: 4})
	tn.SetSourceRect(geom.RectF{X: 0.5, Width: 0.5, Height: 1})
	tn.SetTexture(NewTexture(img))
	tn.SetFiltering(scenegraph.FilterNearest)
	root.AppendChild(tn)
	root.AppendChild(ctx.NewTextureNode())

	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	r := NewRenderer()
	r.Draw(root, dst)
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, dst.RGBAAt(1, 1))
	assert.Equal(t, 2, r.Stats().Textures)
	assert.Equal(t, 1, r.Stats().EmptyTextures)
}

func TestRendererRendersTargetsOnce(t *testing.T) {
	ctx := NewContext()
	target := ctx.NewRenderTarget(geom.Size{Width: 4, Height: 4})
	content := ctx.NewRectangleNode()
	content.SetRect(geom.RectF{Width: 2, Height: 4})
	content.SetColor(gputypes.Color{R: 1, A: 1})
	target.SetRoot(content)
	target.SetTransparentBackground(true)

	root := ctx.NewTransformNode()
	for _, x := range []float64{0, 4} {
		rt := ctx.NewRenderTargetNode()
		rt.SetRect(geom.RectF{X: x, Width: 4, Height: 4})
		rt.SetTarget(target)
		root.AppendChild(rt)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 8, 4))
	r := NewRenderer()
	r.Draw(root, dst)
	assert.Equal(t, 1, r.Stats().Targets)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, dst.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, dst.RGBAAt(5, 1))
	assert.Zero(t, dst.RGBAAt(3, 1).A, "transparent background")

	ctx.ReleaseRenderTarget(target)
	ctx.ReleaseRenderTarget(target)
	assert.Zero(t, ctx.LiveRenderTargets())
	assert.True(t, target.(*RenderTarget).Released())

	r.Draw(root, dst)
	assert.Zero(t, r.Stats().Targets, "released targets draw nothing")
	assert.Zero(t, dst.RGBAAt(1, 1).A)
}

func TestRendererWaitsOnFences(t *testing.T) {
	ctx := NewContext()
	root := ctx.NewTransformNode()
	fence := ctx.NewFenceNode()
	tokens := []quad.SyncToken{{Namespace: 1, Release: 3}, {Namespace: 1, Release: 4}}
	fence.SetSyncTokens(tokens)
	root.AppendChild(fence)

	var waited []quad.SyncToken
	r := NewRenderer()
	r.WaitSyncToken = func(tok quad.SyncToken) { waited = append(waited, tok) }
	r.Draw(root, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.Equal(t, tokens, waited)
	assert.Equal(t, 1, r.Stats().Fences)
}
