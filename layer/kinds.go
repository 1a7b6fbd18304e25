package layer

import (
	"github.com/gogpu/cc/displaylist"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/resource"
)

// SolidColorLayer fills its bounds with its background color.
type SolidColorLayer struct {
	*Layer
}

type solidColorKind struct{ l *Layer }

// NewSolidColorLayer returns a drawable solid color layer.
func NewSolidColorLayer() *SolidColorLayer {
	k := &solidColorKind{}
	l := newLayer(k)
	k.l = l
	l.isDrawable = true
	return &SolidColorLayer{Layer: l}
}

func (k *solidColorKind) newContent(*impl.LayerTreeHostImpl) impl.Content {
	return &impl.SolidColorContent{}
}
func (k *solidColorKind) pushContent(impl.Content) {}
func (k *solidColorKind) update() bool             { return false }
func (k *solidColorKind) drawsContent() bool       { return k.l.backgroundColor.A > 0 }

// ContentClient paints the content of a PictureLayer.
type ContentClient interface {
	// PaintContents records the content of a layer of the given bounds.
	PaintContents(r *displaylist.Recorder, bounds geom.Size)
}

// ContentClientFunc adapts a function to ContentClient.
type ContentClientFunc func(r *displaylist.Recorder, bounds geom.Size)

// PaintContents implements ContentClient.
func (f ContentClientFunc) PaintContents(r *displaylist.Recorder, bounds geom.Size) {
	f(r, bounds)
}

// PictureLayer records its content into a display list on the main
// thread; the impl side rasterizes the list into tiles.
type PictureLayer struct {
	*Layer
	k *pictureKind
}

type pictureKind struct {
	l      *Layer
	client ContentClient

	list        *displaylist.DisplayList
	invalidated geom.Rect
	needsPaint  bool

	// pendingInval is the invalidation not pushed to the impl side yet.
	pendingInval geom.Rect
}

// NewPictureLayer returns a drawable layer painted by client.
func NewPictureLayer(client ContentClient) *PictureLayer {
	k := &pictureKind{client: client, needsPaint: true}
	l := newLayer(k)
	k.l = l
	l.isDrawable = true
	return &PictureLayer{Layer: l, k: k}
}

// SetClient replaces the painting client and repaints.
func (p *PictureLayer) SetClient(c ContentClient) {
	p.k.client = c
	p.SetNeedsDisplay()
}

// SetDisplayList installs a recording directly. The client, if any, is
// not asked to paint until the next invalidation.
func (p *PictureLayer) SetDisplayList(list *displaylist.DisplayList) {
	p.k.list = list
	p.k.needsPaint = false
	p.k.pendingInval = p.k.pendingInval.Union(geom.RectFromSize(p.bounds))
	p.SetNeedsCommit()
}

// DisplayList returns the current recording.
func (p *PictureLayer) DisplayList() *displaylist.DisplayList { return p.k.list }

func (k *pictureKind) invalidate(r geom.Rect) {
	k.invalidated = k.invalidated.Union(r)
	k.needsPaint = true
}

func (k *pictureKind) newContent(h *impl.LayerTreeHostImpl) impl.Content {
	return impl.NewPictureContent(h.ResourceProvider(), h.Settings().TileSize)
}

func (k *pictureKind) update() bool {
	if !k.needsPaint || k.client == nil || k.l.bounds.IsEmpty() {
		return false
	}
	rec := displaylist.NewRecorder(geom.RectFromSize(k.l.bounds))
	k.client.PaintContents(rec, k.l.bounds)
	k.list = rec.Finish()
	inval := k.invalidated
	if inval.IsEmpty() {
		inval = geom.RectFromSize(k.l.bounds)
	}
	k.pendingInval = k.pendingInval.Union(inval)
	k.invalidated = geom.Rect{}
	k.needsPaint = false
	return true
}

func (k *pictureKind) pushContent(dst impl.Content) {
	c, ok := dst.(*impl.PictureContent)
	if !ok {
		return
	}
	if c.DisplayList() == k.list && k.pendingInval.IsEmpty() {
		return
	}
	c.SetDisplayList(k.list, k.pendingInval)
	k.pendingInval = geom.Rect{}
}

func (k *pictureKind) drawsContent() bool {
	return k.list != nil || k.client != nil
}

// TextureLayer draws a texture mailbox produced outside the compositor,
// for example by a canvas or a plugin.
type TextureLayer struct {
	*Layer
	k *textureKind
}

type textureKind struct {
	l *Layer

	mailbox resource.TextureMailbox
	release *resource.ReleaseCallback
	changed bool
	hasMB   bool

	uvTopLeft, uvBottomRight geom.Point
	premultiplied            bool
	flipY                    bool
	blendBackground          bool
	vertexOpacity            [4]float32
}

// NewTextureLayer returns a drawable layer without a mailbox.
func NewTextureLayer() *TextureLayer {
	k := &textureKind{
		uvBottomRight: geom.Point{X: 1, Y: 1},
		premultiplied: true,
		vertexOpacity: [4]float32{1, 1, 1, 1},
	}
	l := newLayer(k)
	k.l = l
	l.isDrawable = true
	return &TextureLayer{Layer: l, k: k}
}

// SetTextureMailbox hands mb to the compositor. release runs once no tree
// draws mb any more and the parent compositor gave it back. A previous
// mailbox not committed yet is released right away, unused.
func (t *TextureLayer) SetTextureMailbox(mb resource.TextureMailbox, release *resource.ReleaseCallback) {
	if t.k.changed {
		t.k.release.Run(t.k.mailbox.SyncToken, false)
	}
	t.k.mailbox, t.k.release = mb, release
	t.k.changed = true
	t.k.hasMB = mb.IsValid()
	t.SetNeedsDisplay()
	t.SetNeedsCommit()
}

// SetUV sets the texture coordinates of the corners of the layer.
func (t *TextureLayer) SetUV(topLeft, bottomRight geom.Point) {
	t.k.uvTopLeft, t.k.uvBottomRight = topLeft, bottomRight
	t.SetNeedsCommit()
}

// SetPremultipliedAlpha tells whether the texture is premultiplied.
func (t *TextureLayer) SetPremultipliedAlpha(v bool) {
	t.k.premultiplied = v
	t.SetNeedsCommit()
}

// SetFlipped flips the texture vertically.
func (t *TextureLayer) SetFlipped(v bool) {
	t.k.flipY = v
	t.SetNeedsCommit()
}

// SetBlendBackgroundColor blends the texture over the background color.
func (t *TextureLayer) SetBlendBackgroundColor(v bool) {
	t.k.blendBackground = v
	t.SetNeedsCommit()
}

// SetVertexOpacity sets per-corner opacities.
func (t *TextureLayer) SetVertexOpacity(o [4]float32) {
	t.k.vertexOpacity = o
	t.SetNeedsCommit()
}

func (k *textureKind) newContent(h *impl.LayerTreeHostImpl) impl.Content {
	return impl.NewTextureContent(h.ResourceProvider())
}

func (k *textureKind) update() bool { return false }

func (k *textureKind) pushContent(dst impl.Content) {
	c, ok := dst.(*impl.TextureContent)
	if !ok {
		return
	}
	if k.changed {
		c.SetTextureMailbox(k.mailbox, k.release)
		k.changed = false
		k.release = nil
	}
	c.UVTopLeft, c.UVBottomRight = k.uvTopLeft, k.uvBottomRight
	c.PremultipliedAlpha, c.FlipY = k.premultiplied, k.flipY
	c.BlendBackground, c.VertexOpacity = k.blendBackground, k.vertexOpacity
}

func (k *textureKind) drawsContent() bool { return k.hasMB }

// VideoLayer draws frames of a video.
type VideoLayer struct {
	*Layer
	k *videoKind
}

type videoKind struct {
	l       *Layer
	frame   impl.VideoFrame
	changed bool
	hasData bool
}

// NewVideoLayer returns a drawable layer without a frame.
func NewVideoLayer() *VideoLayer {
	k := &videoKind{}
	l := newLayer(k)
	k.l = l
	l.isDrawable = true
	return &VideoLayer{Layer: l, k: k}
}

// SetFrame shows f from the next commit on. A frame replaced before it
// was committed is released unused.
func (v *VideoLayer) SetFrame(f impl.VideoFrame) {
	if v.k.changed {
		v.k.frame.Release.Run(quad.SyncToken{}, false)
	}
	v.k.frame = f
	v.k.changed = true
	v.k.hasData = len(f.Planes) > 0
	v.SetNeedsDisplay()
	v.SetNeedsCommit()
}

func (k *videoKind) newContent(h *impl.LayerTreeHostImpl) impl.Content {
	return impl.NewVideoContent(h.ResourceProvider())
}

func (k *videoKind) update() bool { return false }

func (k *videoKind) pushContent(dst impl.Content) {
	c, ok := dst.(*impl.VideoContent)
	if !ok || !k.changed {
		return
	}
	c.SetFrame(k.frame)
	k.changed = false
}

func (k *videoKind) drawsContent() bool { return k.hasData }

// UIResourceLayer draws a UI resource registered with the host.
type UIResourceLayer struct {
	*Layer
	k *uiResourceKind
}

type uiResourceKind struct {
	l             *Layer
	id            resource.UIResourceID
	uvTopLeft     geom.Point
	uvBottomRight geom.Point
	vertexOpacity [4]float32
}

// NewUIResourceLayer returns a drawable layer showing no resource.
func NewUIResourceLayer() *UIResourceLayer {
	k := &uiResourceKind{
		uvBottomRight: geom.Point{X: 1, Y: 1},
		vertexOpacity: [4]float32{1, 1, 1, 1},
	}
	l := newLayer(k)
	k.l = l
	l.isDrawable = true
	return &UIResourceLayer{Layer: l, k: k}
}

// SetUIResourceID selects the resource to draw; 0 draws nothing.
func (u *UIResourceLayer) SetUIResourceID(id resource.UIResourceID) {
	if u.k.id == id {
		return
	}
	u.k.id = id
	u.SetNeedsDisplay()
	u.SetNeedsCommit()
}

// UIResourceID returns the drawn resource.
func (u *UIResourceLayer) UIResourceID() resource.UIResourceID { return u.k.id }

// SetUV sets the texture coordinates of the corners of the layer.
func (u *UIResourceLayer) SetUV(topLeft, bottomRight geom.Point) {
	u.k.uvTopLeft, u.k.uvBottomRight = topLeft, bottomRight
	u.SetNeedsCommit()
}

// SetVertexOpacity sets per-corner opacities.
func (u *UIResourceLayer) SetVertexOpacity(o [4]float32) {
	u.k.vertexOpacity = o
	u.SetNeedsCommit()
}

func (k *uiResourceKind) newContent(*impl.LayerTreeHostImpl) impl.Content {
	return impl.NewUIResourceContent()
}

func (k *uiResourceKind) update() bool { return false }

func (k *uiResourceKind) pushContent(dst impl.Content) {
	c, ok := dst.(*impl.UIResourceContent)
	if !ok {
		return
	}
	c.ID = k.id
	c.UVTopLeft, c.UVBottomRight = k.uvTopLeft, k.uvBottomRight
	c.VertexOpacity = k.vertexOpacity
}

func (k *uiResourceKind) drawsContent() bool { return k.id != 0 }

// HeadsUpDisplayLayer shows the frame rate counter of the impl side. The
// host adds one on top of the tree when the FPS counter is enabled.
type HeadsUpDisplayLayer struct {
	*Layer
}

type hudKind struct{}

// NewHeadsUpDisplayLayer returns a drawable HUD layer.
func NewHeadsUpDisplayLayer() *HeadsUpDisplayLayer {
	l := newLayer(hudKind{})
	l.isDrawable = true
	return &HeadsUpDisplayLayer{Layer: l}
}

func (hudKind) newContent(*impl.LayerTreeHostImpl) impl.Content { return &impl.HUDContent{} }
func (hudKind) pushContent(impl.Content)                        {}
func (hudKind) update() bool                                    { return false }
func (hudKind) drawsContent() bool                              { return true }
