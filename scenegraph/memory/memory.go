// Package memory implements the scenegraph interfaces with plain Go
// values and draws them into RGBA images on the CPU.
//
// It is the reference host for the delegated adapter: tests and the
// demo use it where a toolkit would supply its GPU scene graph.
package memory

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/scenegraph"
)

// ErrTextureSize is returned when pixel data does not match a texture.
var ErrTextureSize = errors.New("memory: pixel data does not match texture size")

type node struct {
	typ      scenegraph.NodeType
	children []scenegraph.Node
}

func (n *node) Type() scenegraph.NodeType { return n.typ }

func (n *node) AppendChild(child scenegraph.Node) { n.children = append(n.children, child) }

func (n *node) RemoveAllChildren() { n.children = nil }

func (n *node) ChildCount() int { return len(n.children) }

func (n *node) Child(i int) scenegraph.Node { return n.children[i] }

// TransformNode implements scenegraph.TransformNode.
type TransformNode struct {
	node
	m geom.Transform
}

func (n *TransformNode) SetMatrix(m geom.Transform) { n.m = m }
func (n *TransformNode) Matrix() geom.Transform     { return n.m }

// ClipNode implements scenegraph.ClipNode.
type ClipNode struct {
	node
	r geom.RectF
}

func (n *ClipNode) SetClipRect(r geom.RectF) { n.r = r }
func (n *ClipNode) ClipRect() geom.RectF     { return n.r }

// OpacityNode implements scenegraph.OpacityNode.
type OpacityNode struct {
	node
	opacity float64
}

func (n *OpacityNode) SetOpacity(opacity float64) { n.opacity = opacity }
func (n *OpacityNode) Opacity() float64           { return n.opacity }

// RectangleNode implements scenegraph.RectangleNode.
type RectangleNode struct {
	node
	r      geom.RectF
	color  gputypes.Color
	border float64
}

func (n *RectangleNode) SetRect(r geom.RectF)      { n.r = r }
func (n *RectangleNode) SetColor(c gputypes.Color) { n.color = c }
func (n *RectangleNode) SetBorderWidth(w float64)  { n.border = w }
func (n *RectangleNode) Rect() geom.RectF          { return n.r }
func (n *RectangleNode) Color() gputypes.Color     { return n.color }
func (n *RectangleNode) BorderWidth() float64      { return n.border }

// TextureNode implements scenegraph.TextureNode.
type TextureNode struct {
	node
	r         geom.RectF
	src       geom.RectF
	tex       gpucontext.Texture
	filtering scenegraph.Filtering
	flipY     bool
	opaque    bool
}

func (n *TextureNode) SetRect(r geom.RectF)                { n.r = r }
func (n *TextureNode) SetSourceRect(r geom.RectF)          { n.src = r }
func (n *TextureNode) SetTexture(tex gpucontext.Texture)   { n.tex = tex }
func (n *TextureNode) SetFiltering(f scenegraph.Filtering) { n.filtering = f }
func (n *TextureNode) SetFlipY(flip bool)                  { n.flipY = flip }
func (n *TextureNode) SetOpaque(opaque bool)               { n.opaque = opaque }
func (n *TextureNode) Rect() geom.RectF                    { return n.r }
func (n *TextureNode) SourceRect() geom.RectF              { return n.src }
func (n *TextureNode) Texture() gpucontext.Texture         { return n.tex }

// VideoNode implements scenegraph.VideoNode.
type VideoNode struct {
	node
	r          geom.RectF
	planes     []gpucontext.Texture
	texCoord   geom.RectF
	colorSpace quad.YUVColorSpace
	texMatrix  geom.Transform
	shader     []byte
}

func (n *VideoNode) SetRect(r geom.RectF)                  { n.r = r }
func (n *VideoNode) SetPlanes(planes []gpucontext.Texture) { n.planes = planes }
func (n *VideoNode) SetTexCoordRect(r geom.RectF)          { n.texCoord = r }
func (n *VideoNode) SetColorSpace(cs quad.YUVColorSpace)   { n.colorSpace = cs }
func (n *VideoNode) SetTextureMatrix(m geom.Transform)     { n.texMatrix = m }
func (n *VideoNode) SetShader(spirv []byte)                { n.shader = spirv }
func (n *VideoNode) Rect() geom.RectF                      { return n.r }
func (n *VideoNode) Planes() []gpucontext.Texture          { return n.planes }
func (n *VideoNode) Shader() []byte                        { return n.shader }

// RenderTargetNode implements scenegraph.RenderTargetNode.
type RenderTargetNode struct {
	node
	r      geom.RectF
	target scenegraph.RenderTarget
}

func (n *RenderTargetNode) SetRect(r geom.RectF)                { n.r = r }
func (n *RenderTargetNode) SetTarget(t scenegraph.RenderTarget) { n.target = t }
func (n *RenderTargetNode) Target() scenegraph.RenderTarget     { return n.target }
func (n *RenderTargetNode) Rect() geom.RectF                    { return n.r }

// FenceNode implements scenegraph.FenceNode.
type FenceNode struct {
	node
	tokens []quad.SyncToken
}

func (n *FenceNode) SetSyncTokens(tokens []quad.SyncToken) { n.tokens = tokens }
func (n *FenceNode) SyncTokens() []quad.SyncToken          { return n.tokens }

// RenderTarget implements scenegraph.RenderTarget with an RGBA image.
type RenderTarget struct {
	size        geom.Size
	root        scenegraph.Node
	transparent bool
	released    bool
	img         *image.RGBA
}

func (t *RenderTarget) Size() geom.Size                 { return t.size }
func (t *RenderTarget) SetRoot(root scenegraph.Node)    { t.root = root }
func (t *RenderTarget) Root() scenegraph.Node           { return t.root }
func (t *RenderTarget) SetTransparentBackground(v bool) { t.transparent = v }

// Released reports whether the target was given back to its context.
func (t *RenderTarget) Released() bool { return t.released }

// Image returns the pixels of the last draw, or nil before the first.
func (t *RenderTarget) Image() *image.RGBA { return t.img }

// Texture is an RGBA image usable as a gpucontext.Texture.
type Texture struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewTexture wraps img.
func NewTexture(img *image.RGBA) *Texture {
	return &Texture{img: img}
}

// Width implements gpucontext.Texture.
func (t *Texture) Width() int { return t.img.Bounds().Dx() }

// Height implements gpucontext.Texture.
func (t *Texture) Height() int { return t.img.Bounds().Dy() }

// Image returns the texture pixels.
func (t *Texture) Image() *image.RGBA {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.img
}

// UpdateData implements gpucontext.TextureUpdater.
func (t *Texture) UpdateData(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(data) != len(t.img.Pix) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrTextureSize, len(data), len(t.img.Pix))
	}
	copy(t.img.Pix, data)
	return nil
}

// UpdateRegion implements gpucontext.TextureRegionUpdater.
func (t *Texture) UpdateRegion(x, y, w, h int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := image.Rect(x, y, x+w, y+h)
	if !r.In(t.img.Bounds()) || len(data) != w*h*4 {
		return fmt.Errorf("%w: region %v", ErrTextureSize, r)
	}
	for row := range h {
		off := t.img.PixOffset(x, y+row)
		copy(t.img.Pix[off:off+w*4], data[row*w*4:(row+1)*w*4])
	}
	return nil
}

// Context implements scenegraph.Context and gpucontext.TextureCreator.
type Context struct {
	mu        sync.Mutex
	allocated int
	released  int
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{}
}

func (c *Context) NewTransformNode() scenegraph.TransformNode {
	return &TransformNode{node: node{typ: scenegraph.TypeTransform}, m: geom.Identity()}
}

func (c *Context) NewClipNode() scenegraph.ClipNode {
	return &ClipNode{node: node{typ: scenegraph.TypeClip}}
}

func (c *Context) NewOpacityNode() scenegraph.OpacityNode {
	return &OpacityNode{node: node{typ: scenegraph.TypeOpacity}, opacity: 1}
}

func (c *Context) NewRectangleNode() scenegraph.RectangleNode {
	return &RectangleNode{node: node{typ: scenegraph.TypeRectangle}}
}

func (c *Context) NewTextureNode() scenegraph.TextureNode {
	return &TextureNode{node: node{typ: scenegraph.TypeTexture}}
}

func (c *Context) NewVideoNode() scenegraph.VideoNode {
	return &VideoNode{node: node{typ: scenegraph.TypeVideo}, texMatrix: geom.Identity()}
}

func (c *Context) NewRenderTargetNode() scenegraph.RenderTargetNode {
	return &RenderTargetNode{node: node{typ: scenegraph.TypeRenderTarget}}
}

func (c *Context) NewFenceNode() scenegraph.FenceNode {
	return &FenceNode{node: node{typ: scenegraph.TypeFence}}
}

// NewRenderTarget implements scenegraph.Context.
func (c *Context) NewRenderTarget(size geom.Size) scenegraph.RenderTarget {
	c.mu.Lock()
	c.allocated++
	c.mu.Unlock()
	return &RenderTarget{size: size}
}

// ReleaseRenderTarget implements scenegraph.Context.
func (c *Context) ReleaseRenderTarget(target scenegraph.RenderTarget) {
	t, ok := target.(*RenderTarget)
	if !ok || t.released {
		return
	}
	t.released = true
	t.root, t.img = nil, nil
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
}

// LiveRenderTargets returns the number of targets allocated and not
// released.
func (c *Context) LiveRenderTargets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated - c.released
}

// AllocatedRenderTargets returns the number of targets ever allocated.
func (c *Context) AllocatedRenderTargets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

// NewTextureFromRGBA implements gpucontext.TextureCreator.
func (c *Context) NewTextureFromRGBA(width, height int, data []byte) (gpucontext.Texture, error) {
	if width <= 0 || height <= 0 || len(data) != width*height*4 {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrTextureSize, width, height, len(data))
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data)
	return NewTexture(img), nil
}

var (
	_ scenegraph.Context              = (*Context)(nil)
	_ gpucontext.TextureCreator       = (*Context)(nil)
	_ gpucontext.TextureUpdater       = (*Texture)(nil)
	_ gpucontext.TextureRegionUpdater = (*Texture)(nil)
)
