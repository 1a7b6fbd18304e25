package memory

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/render"
	"github.com/gogpu/cc/scenegraph"
)

// RenderStats counts the work of one Draw.
type RenderStats struct {
	Nodes         int
	Rectangles    int
	Textures      int
	EmptyTextures int
	Videos        int
	Targets       int
	Fences        int
}

// Renderer draws node trees built from a Context.
type Renderer struct {
	// WaitSyncToken is called for every token of a fence node, before
	// the nodes after the fence draw.
	WaitSyncToken func(quad.SyncToken)

	stats RenderStats
	drawn map[*RenderTarget]bool
}

// NewRenderer returns a renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Stats returns the counters of the last Draw.
func (r *Renderer) Stats() RenderStats { return r.stats }

type paintState struct {
	m       geom.Transform
	clip    image.Rectangle
	opacity float64
}

// Draw clears dst to transparent and draws root into it.
func (r *Renderer) Draw(root scenegraph.Node, dst *image.RGBA) {
	r.stats = RenderStats{}
	r.drawn = make(map[*RenderTarget]bool)
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)
	r.drawNode(root, dst, paintState{m: geom.Identity(), clip: dst.Bounds(), opacity: 1})
}

func (r *Renderer) drawNode(n scenegraph.Node, dst *image.RGBA, st paintState) {
	if n == nil {
		return
	}
	r.stats.Nodes++
	switch n := n.(type) {
	case *TransformNode:
		st.m = st.m.Multiply(n.m)
	case *ClipNode:
		st.clip = st.clip.Intersect(toImageRect(st.m.MapRectF(n.r).ToEnclosingRect()))
	case *OpacityNode:
		st.opacity *= n.opacity
	case *RectangleNode:
		r.stats.Rectangles++
		r.drawRectangle(dst, st, n)
	case *TextureNode:
		r.stats.Textures++
		r.drawTexture(dst, st, n)
	case *VideoNode:
		r.stats.Videos++
		r.drawVideo(dst, st, n)
	case *RenderTargetNode:
		t, ok := n.target.(*RenderTarget)
		if !ok || t.released {
			break
		}
		img := r.renderTarget(t)
		render.DrawImage(dst, st.clip, st.m, n.r.ToEnclosingRect(), img, img.Bounds(), st.opacity, false, false)
	case *FenceNode:
		r.stats.Fences++
		if r.WaitSyncToken != nil {
			for _, tok := range n.tokens {
				r.WaitSyncToken(tok)
			}
		}
	default:
		cc.Logger().Warn("memory: skipping foreign node", "type", n.Type())
		return
	}
	if st.clip.Empty() {
		return
	}
	for i := range n.ChildCount() {
		r.drawNode(n.Child(i), dst, st)
	}
}

// renderTarget draws the subtree of t into its image, once per Draw.
func (r *Renderer) renderTarget(t *RenderTarget) *image.RGBA {
	if t.img == nil || t.img.Bounds().Dx() != t.size.Width || t.img.Bounds().Dy() != t.size.Height {
		t.img = image.NewRGBA(image.Rect(0, 0, t.size.Width, t.size.Height))
	}
	if r.drawn[t] {
		return t.img
	}
	r.drawn[t] = true
	r.stats.Targets++
	bg := image.Image(image.Transparent)
	if !t.transparent {
		bg = image.NewUniform(color.RGBA{A: 0xff})
	}
	draw.Draw(t.img, t.img.Bounds(), bg, image.Point{}, draw.Src)
	r.drawNode(t.root, t.img, paintState{m: geom.Identity(), clip: t.img.Bounds(), opacity: 1})
	return t.img
}

func (r *Renderer) drawRectangle(dst *image.RGBA, st paintState, n *RectangleNode) {
	c := render.PremultipliedColor(n.color, st.opacity)
	if n.border <= 0 {
		render.FillRect(dst, st.clip, st.m, n.r, c)
		return
	}
	w := math.Min(n.border, math.Min(n.r.Width, n.r.Height)/2)
	edges := []geom.RectF{
		{X: n.r.X, Y: n.r.Y, Width: n.r.Width, Height: w},
		{X: n.r.X, Y: n.r.Bottom() - w, Width: n.r.Width, Height: w},
		{X: n.r.X, Y: n.r.Y + w, Width: w, Height: n.r.Height - 2*w},
		{X: n.r.Right() - w, Y: n.r.Y + w, Width: w, Height: n.r.Height - 2*w},
	}
	for _, e := range edges {
		render.FillRect(dst, st.clip, st.m, e, c)
	}
}

func (r *Renderer) drawTexture(dst *image.RGBA, st paintState, n *TextureNode) {
	tex, ok := n.tex.(*Texture)
	if !ok || tex == nil {
		r.stats.EmptyTextures++
		return
	}
	img := tex.Image()
	sr := normalizedSubRect(img.Bounds(), n.src)
	render.DrawImage(dst, st.clip, st.m, n.r.ToEnclosingRect(), img, sr, st.opacity,
		n.filtering == scenegraph.FilterNearest, n.flipY)
}

func (r *Renderer) drawVideo(dst *image.RGBA, st paintState, n *VideoNode) {
	planes := make([]*image.RGBA, len(n.planes))
	for i, p := range n.planes {
		tex, ok := p.(*Texture)
		if !ok || tex == nil {
			r.stats.EmptyTextures++
			return
		}
		planes[i] = tex.Image()
	}
	switch len(planes) {
	case 1:
		img := planes[0]
		unit := geom.RectF{Width: 1, Height: 1}
		sr := normalizedSubRect(img.Bounds(), n.texMatrix.MapRectF(unit))
		render.DrawImage(dst, st.clip, st.m, n.r.ToEnclosingRect(), img, sr, st.opacity, false, false)
	case 3, 4:
		var alpha *image.RGBA
		if len(planes) == 4 {
			alpha = planes[3]
		}
		img := render.ConvertYUV(n.colorSpace, planes[0], planes[1], planes[2], alpha, n.texCoord)
		render.DrawImage(dst, st.clip, st.m, n.r.ToEnclosingRect(), img, img.Bounds(), st.opacity, false, false)
	default:
		r.stats.EmptyTextures++
	}
}

// normalizedSubRect maps a rect normalized to b into b. An empty rect
// selects all of b.
func normalizedSubRect(b image.Rectangle, n geom.RectF) image.Rectangle {
	if n.IsEmpty() {
		return b
	}
	return image.Rect(
		b.Min.X+int(math.Round(n.X*float64(b.Dx()))),
		b.Min.Y+int(math.Round(n.Y*float64(b.Dy()))),
		b.Min.X+int(math.Round(n.Right()*float64(b.Dx()))),
		b.Min.Y+int(math.Round(n.Bottom()*float64(b.Dy()))),
	).Intersect(b)
}

func toImageRect(r geom.Rect) image.Rectangle {
	if r.IsEmpty() {
		return image.Rectangle{}
	}
	return image.Rect(r.X, r.Y, r.Right(), r.Bottom())
}
