package impl

import (
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/displaylist"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/resource"
	"github.com/gogpu/cc/tiles"
)

// Content is the kind-specific part of a LayerImpl: what the layer draws
// and the resources it holds.
type Content interface {
	// AppendQuads emits the quads of the layer into ctx.Pass.
	AppendQuads(ctx *AppendQuadsContext)

	// PushTo copies the state of this content into dst, the content of
	// the same layer in another tree. dst has the same kind.
	PushTo(dst Content)

	// Release frees resources when the layer leaves its tree.
	Release()
}

// AppendQuadsContext is passed to Content.AppendQuads.
type AppendQuadsContext struct {
	Layer  *LayerImpl
	Pass   *quad.RenderPass
	Shared *quad.SharedQuadState

	// VisibleRect is the visible part of the layer in layer space.
	VisibleRect geom.Rect

	// ContentsScale is the raster scale of the tree.
	ContentsScale float64

	// CheckerboardedTiles counts tiles drawn as checkerboard.
	CheckerboardedTiles int
}

func (ctx *AppendQuadsContext) appendQuad(rect, visible geom.Rect, opaque bool, p quad.Payload) {
	q := &quad.DrawQuad{
		Rect:          rect,
		VisibleRect:   visible,
		NeedsBlending: !opaque || ctx.Shared.Opacity < 1,
		Shared:        ctx.Shared,
		Payload:       p,
	}
	if opaque {
		q.OpaqueRect = rect
	}
	ctx.Pass.AppendQuad(q)
}

// tiledContent is implemented by content rasterized into tiles.
type tiledContent interface {
	updateTiling(l *LayerImpl, scale float64) *tiles.Tiling
}

// maskContent is implemented by content usable as a mask.
type maskContent interface {
	maskResource(l *LayerImpl) (quad.ResourceID, bool)
}

var checkerboardColor = gputypes.Color{R: 0.94, G: 0.94, B: 0.94, A: 1}

// NoContent draws nothing. Plain container layers use it.
type NoContent struct{}

func (*NoContent) AppendQuads(*AppendQuadsContext) {}
func (*NoContent) PushTo(Content)                  {}
func (*NoContent) Release()                        {}

// SolidColorContent fills the layer with its background color.
type SolidColorContent struct{}

// AppendQuads implements Content.
func (*SolidColorContent) AppendQuads(ctx *AppendQuadsContext) {
	c := ctx.Layer.BackgroundColor()
	if c.A <= 0 {
		return
	}
	rect := geom.RectFromSize(ctx.Layer.Bounds())
	ctx.appendQuad(rect, ctx.VisibleRect, c.A >= 1, &quad.SolidColor{Color: c})
}

func (*SolidColorContent) PushTo(Content) {}
func (*SolidColorContent) Release()       {}

// PictureContent draws a recorded display list through raster tiles.
type PictureContent struct {
	provider *resource.Provider
	tileSize int

	list *displaylist.DisplayList

	// invalidation accumulates until the tiling picks it up;
	// lastInvalidation is the invalidation of the last push.
	invalidation     geom.Rect
	lastInvalidation geom.Rect

	tiling *tiles.Tiling

	mask     quad.ResourceID
	maskList *displaylist.DisplayList
}

// NewPictureContent returns empty picture content rasterized into tiles
// of tileSize pixels.
func NewPictureContent(provider *resource.Provider, tileSize int) *PictureContent {
	if tileSize <= 0 {
		tileSize = cc.DefaultTileSize
	}
	return &PictureContent{provider: provider, tileSize: tileSize}
}

// SetDisplayList installs a new recording. invalidation is the layer-space
// area that changed since the previous recording.
func (c *PictureContent) SetDisplayList(list *displaylist.DisplayList, invalidation geom.Rect) {
	c.list = list
	c.lastInvalidation = invalidation
	c.invalidation = c.invalidation.Union(invalidation)
}

// DisplayList returns the current recording.
func (c *PictureContent) DisplayList() *displaylist.DisplayList { return c.list }

// Tiling returns the tiling, or nil before the first PrepareTiles.
func (c *PictureContent) Tiling() *tiles.Tiling { return c.tiling }

func (c *PictureContent) updateTiling(l *LayerImpl, scale float64) *tiles.Tiling {
	if c.list == nil {
		return nil
	}
	if _, solid := c.list.SolidColor(); solid {
		return nil
	}
	if c.tiling == nil {
		c.tiling = tiles.NewTiling(c.provider, c.tileSize)
	}
	c.tiling.SetContent(c.list, l.Bounds(), scale, c.invalidation)
	c.invalidation = geom.Rect{}
	return c.tiling
}

// AppendQuads implements Content. Solid recordings become one solid
// color quad; tiles not rasterized yet become checkerboard quads.
func (c *PictureContent) AppendQuads(ctx *AppendQuadsContext) {
	if c.list == nil {
		return
	}
	l := ctx.Layer
	if color, ok := c.list.SolidColor(); ok {
		ctx.appendQuad(geom.RectFromSize(l.Bounds()), ctx.VisibleRect, true, &quad.SolidColor{Color: color})
		return
	}

	scale := ctx.ContentsScale
	if c.tiling != nil {
		scale = c.tiling.Scale()
	}
	shared := ctx.Pass.CreateAndAppendSharedQuadState()
	*shared = *ctx.Shared
	shared.QuadToTargetTransform = ctx.Shared.QuadToTargetTransform.Multiply(geom.Scaling(1/scale, 1/scale))
	visible := ctx.VisibleRect.ScaleToEnclosing(scale).Intersect(geom.RectFromSize(l.Bounds()).ScaleToEnclosing(scale))
	shared.VisibleQuadLayerRect = visible

	bg := l.BackgroundColor()
	if bg.A <= 0 {
		bg = checkerboardColor
	}
	checker := func(r geom.Rect) {
		ctx.Pass.AppendQuad(&quad.DrawQuad{
			Rect: r, VisibleRect: r, OpaqueRect: r, Shared: shared,
			Payload: &quad.Checkerboard{Color: bg, Scale: float32(scale)},
		})
		ctx.CheckerboardedTiles++
	}
	if c.tiling == nil {
		checker(visible)
		return
	}
	opaque := l.ContentsOpaque()
	for _, t := range c.tiling.TilesIn(visible) {
		vis := t.Rect.Intersect(visible)
		if vis.IsEmpty() {
			continue
		}
		if t.Resource == 0 {
			checker(vis)
			continue
		}
		q := &quad.DrawQuad{
			Rect:          t.Rect,
			VisibleRect:   vis,
			NeedsBlending: !opaque || shared.Opacity < 1,
			Shared:        shared,
			Payload: &quad.Tile{
				Resource:     t.Resource,
				TexCoordRect: geom.RectF{Width: float64(t.Rect.Width), Height: float64(t.Rect.Height)},
				TextureSize:  t.Rect.Size(),
			},
		}
		if opaque {
			q.OpaqueRect = t.Rect
		}
		ctx.Pass.AppendQuad(q)
	}
}

func (c *PictureContent) maskResource(l *LayerImpl) (quad.ResourceID, bool) {
	if c.list == nil || l.Bounds().IsEmpty() {
		return 0, false
	}
	if c.mask != 0 && c.maskList == c.list {
		return c.mask, true
	}
	b := l.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	if err := c.list.Raster(img, geom.RectFromSize(b), 1); err != nil {
		cc.Logger().Warn("impl: mask raster failed", "layer", l.ID(), "err", err)
		return 0, false
	}
	if c.mask != 0 {
		c.provider.DeleteResource(c.mask)
	}
	c.mask = c.provider.CreateBitmap(b, img)
	c.maskList = c.list
	return c.mask, true
}

// PushTo implements Content.
func (c *PictureContent) PushTo(dst Content) {
	d, ok := dst.(*PictureContent)
	if !ok {
		return
	}
	d.SetDisplayList(c.list, c.lastInvalidation)
}

// Release implements Content.
func (c *PictureContent) Release() {
	if c.tiling != nil {
		c.tiling.Release()
		c.tiling = nil
	}
	if c.mask != 0 {
		c.provider.DeleteResource(c.mask)
		c.mask = 0
	}
}

// textureRef shares one provider resource between the trees that draw
// the same mailbox. It is used from the impl goroutine only.
type textureRef struct {
	provider *resource.Provider
	id       quad.ResourceID
	refs     int
}

func newTextureRef(p *resource.Provider, mb resource.TextureMailbox, release *resource.ReleaseCallback) *textureRef {
	return &textureRef{provider: p, id: p.CreateFromTextureMailbox(mb, release), refs: 1}
}

func (r *textureRef) acquire() *textureRef {
	if r != nil {
		r.refs++
	}
	return r
}

func (r *textureRef) release() {
	if r == nil {
		return
	}
	r.refs--
	if r.refs == 0 {
		r.provider.DeleteResource(r.id)
	}
}

// TextureContent draws a mailbox handed over by the producer.
type TextureContent struct {
	provider *resource.Provider
	ref      *textureRef

	UVTopLeft          geom.Point
	UVBottomRight      geom.Point
	PremultipliedAlpha bool
	FlipY              bool
	BlendBackground    bool
	VertexOpacity      [4]float32
}

// NewTextureContent returns texture content without a mailbox.
func NewTextureContent(provider *resource.Provider) *TextureContent {
	return &TextureContent{
		provider:           provider,
		UVBottomRight:      geom.Point{X: 1, Y: 1},
		PremultipliedAlpha: true,
		VertexOpacity:      [4]float32{1, 1, 1, 1},
	}
}

// SetTextureMailbox replaces the mailbox. The previous one is released
// once no tree draws it and the parent returned it. An invalid mailbox
// clears the content.
func (c *TextureContent) SetTextureMailbox(mb resource.TextureMailbox, release *resource.ReleaseCallback) {
	c.ref.release()
	c.ref = nil
	if !mb.IsValid() {
		release.Run(mb.SyncToken, false)
		return
	}
	c.ref = newTextureRef(c.provider, mb, release)
}

// ResourceID returns the provider resource of the mailbox, or 0.
func (c *TextureContent) ResourceID() quad.ResourceID {
	if c.ref == nil {
		return 0
	}
	return c.ref.id
}

// AppendQuads implements Content.
func (c *TextureContent) AppendQuads(ctx *AppendQuadsContext) {
	if c.ref == nil {
		return
	}
	l := ctx.Layer
	p := &quad.Texture{
		Resource:           c.ref.id,
		PremultipliedAlpha: c.PremultipliedAlpha,
		UVTopLeft:          c.UVTopLeft,
		UVBottomRight:      c.UVBottomRight,
		VertexOpacity:      c.VertexOpacity,
		FlipY:              c.FlipY,
	}
	if c.BlendBackground {
		p.BackgroundColor = l.BackgroundColor()
	}
	ctx.appendQuad(geom.RectFromSize(l.Bounds()), ctx.VisibleRect, l.ContentsOpaque(), p)
}

func (c *TextureContent) maskResource(*LayerImpl) (quad.ResourceID, bool) {
	if c.ref == nil {
		return 0, false
	}
	return c.ref.id, true
}

// PushTo implements Content.
func (c *TextureContent) PushTo(dst Content) {
	d, ok := dst.(*TextureContent)
	if !ok {
		return
	}
	if d.ref != c.ref {
		d.ref.release()
		d.ref = c.ref.acquire()
	}
	d.UVTopLeft, d.UVBottomRight = c.UVTopLeft, c.UVBottomRight
	d.PremultipliedAlpha, d.FlipY = c.PremultipliedAlpha, c.FlipY
	d.BlendBackground, d.VertexOpacity = c.BlendBackground, c.VertexOpacity
}

// Release implements Content.
func (c *TextureContent) Release() {
	c.ref.release()
	c.ref = nil
}

// VideoFormat tells how a VideoFrame is sampled.
type VideoFormat uint8

// Video formats.
const (
	VideoFormatYUV VideoFormat = iota + 1
	VideoFormatStream
)

// VideoFrame is one frame of a video layer. YUV frames carry the Y, U, V
// and optional A planes; stream frames carry one texture sampled through
// TextureMatrix. Release runs once every plane is released.
type VideoFrame struct {
	Format        VideoFormat
	Planes        []resource.TextureMailbox
	ColorSpace    quad.YUVColorSpace
	TextureMatrix geom.Transform
	Release       *resource.ReleaseCallback
}

// VideoContent draws the current frame of a video layer.
type VideoContent struct {
	provider *resource.Provider
	frame    VideoFrame
	planes   []*textureRef
}

// NewVideoContent returns video content without a frame.
func NewVideoContent(provider *resource.Provider) *VideoContent {
	return &VideoContent{provider: provider}
}

// SetFrame replaces the current frame.
func (c *VideoContent) SetFrame(f VideoFrame) {
	c.releasePlanes()
	c.frame = f
	if len(f.Planes) == 0 {
		f.Release.Run(quad.SyncToken{}, false)
		return
	}
	var remaining atomic.Int32
	remaining.Store(int32(len(f.Planes)))
	for _, p := range f.Planes {
		cb := resource.NewReleaseCallback(func(token quad.SyncToken, lost bool) {
			if remaining.Add(-1) == 0 {
				f.Release.Run(token, lost)
			}
		})
		c.planes = append(c.planes, newTextureRef(c.provider, p, cb))
	}
}

func (c *VideoContent) releasePlanes() {
	for _, p := range c.planes {
		p.release()
	}
	c.planes = nil
}

// AppendQuads implements Content.
func (c *VideoContent) AppendQuads(ctx *AppendQuadsContext) {
	l := ctx.Layer
	rect := geom.RectFromSize(l.Bounds())
	switch c.frame.Format {
	case VideoFormatYUV:
		if len(c.planes) < 3 {
			return
		}
		p := &quad.YUVVideo{
			Y: c.planes[0].id, U: c.planes[1].id, V: c.planes[2].id,
			YTexCoord:    geom.RectF{Width: 1, Height: 1},
			UVTexCoord:   geom.RectF{Width: 1, Height: 1},
			YTextureSize: c.frame.Planes[0].Size,
			ColorSpace:   c.frame.ColorSpace,
		}
		if len(c.planes) > 3 {
			p.A = c.planes[3].id
		}
		ctx.appendQuad(rect, ctx.VisibleRect, len(c.planes) == 3, p)
	case VideoFormatStream:
		if len(c.planes) == 0 {
			return
		}
		m := c.frame.TextureMatrix
		if m == (geom.Transform{}) {
			m = geom.Identity()
		}
		ctx.appendQuad(rect, ctx.VisibleRect, true, &quad.StreamVideo{Resource: c.planes[0].id, TextureMatrix: m})
	}
}

// PushTo implements Content.
func (c *VideoContent) PushTo(dst Content) {
	d, ok := dst.(*VideoContent)
	if !ok {
		return
	}
	d.releasePlanes()
	d.frame = c.frame
	for _, p := range c.planes {
		d.planes = append(d.planes, p.acquire())
	}
}

// Release implements Content.
func (c *VideoContent) Release() {
	c.releasePlanes()
}

// UIResourceContent draws a UI resource uploaded by the producer.
type UIResourceContent struct {
	ID            resource.UIResourceID
	UVTopLeft     geom.Point
	UVBottomRight geom.Point
	VertexOpacity [4]float32
}

// NewUIResourceContent returns content drawing no resource yet.
func NewUIResourceContent() *UIResourceContent {
	return &UIResourceContent{
		UVBottomRight: geom.Point{X: 1, Y: 1},
		VertexOpacity: [4]float32{1, 1, 1, 1},
	}
}

// AppendQuads implements Content. A resource missing from the table is
// skipped.
func (c *UIResourceContent) AppendQuads(ctx *AppendQuadsContext) {
	if c.ID == 0 {
		return
	}
	l := ctx.Layer
	id, ok := l.Tree().Host().UIResourceID(c.ID)
	if !ok {
		return
	}
	ctx.appendQuad(geom.RectFromSize(l.Bounds()), ctx.VisibleRect, l.ContentsOpaque(), &quad.Texture{
		Resource:           id,
		PremultipliedAlpha: true,
		UVTopLeft:          c.UVTopLeft,
		UVBottomRight:      c.UVBottomRight,
		VertexOpacity:      c.VertexOpacity,
	})
}

func (c *UIResourceContent) maskResource(l *LayerImpl) (quad.ResourceID, bool) {
	if c.ID == 0 {
		return 0, false
	}
	return l.Tree().Host().UIResourceID(c.ID)
}

// PushTo implements Content.
func (c *UIResourceContent) PushTo(dst Content) {
	if d, ok := dst.(*UIResourceContent); ok {
		*d = *c
	}
}

func (*UIResourceContent) Release() {}

// HUDContent draws the heads-up display of the host.
type HUDContent struct{}

// AppendQuads implements Content.
func (*HUDContent) AppendQuads(ctx *AppendQuadsContext) {
	id, size, ok := ctx.Layer.Tree().Host().hudResource()
	if !ok {
		return
	}
	rect := geom.RectFromSize(size).Intersect(geom.RectFromSize(ctx.Layer.Bounds()))
	ctx.appendQuad(rect, rect.Intersect(ctx.VisibleRect), false, &quad.Texture{
		Resource:           id,
		PremultipliedAlpha: true,
		UVBottomRight:      geom.Point{X: float64(rect.Width) / float64(size.Width), Y: float64(rect.Height) / float64(size.Height)},
		VertexOpacity:      [4]float32{1, 1, 1, 1},
	})
}

func (*HUDContent) PushTo(Content) {}
func (*HUDContent) Release()       {}
