// Package scenegraph defines the retained node tree of a host renderer
// that compositor frames are translated into.
//
// A toolkit renderer implements the interfaces over its own node
// classes; package memory provides an implementation that draws on the
// CPU. Nodes are created by a Context and form a tree through
// AppendChild. Children draw in order, so later children appear on top
// of earlier ones.
//
// Node trees are not safe for concurrent use. Hosts build and draw them
// on their render goroutine.
package scenegraph

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// NodeType identifies the kind of a Node.
type NodeType uint8

// Node types.
const (
	TypeTransform NodeType = iota + 1
	TypeClip
	TypeOpacity
	TypeRectangle
	TypeTexture
	TypeVideo
	TypeRenderTarget
	TypeFence
)

// String returns the node type name.
func (t NodeType) String() string {
	switch t {
	case TypeTransform:
		return "Transform"
	case TypeClip:
		return "Clip"
	case TypeOpacity:
		return "Opacity"
	case TypeRectangle:
		return "Rectangle"
	case TypeTexture:
		return "Texture"
	case TypeVideo:
		return "Video"
	case TypeRenderTarget:
		return "RenderTarget"
	case TypeFence:
		return "Fence"
	default:
		return "Unknown"
	}
}

// Node is an element of a scene graph.
type Node interface {
	Type() NodeType

	// AppendChild adds child after the existing children.
	AppendChild(child Node)

	// RemoveAllChildren detaches every child.
	RemoveAllChildren()

	ChildCount() int
	Child(i int) Node
}

// TransformNode maps the space of its children into its parent's.
type TransformNode interface {
	Node
	SetMatrix(m geom.Transform)
	Matrix() geom.Transform
}

// ClipNode clips its children to a rect in its parent's space.
type ClipNode interface {
	Node
	SetClipRect(r geom.RectF)
	ClipRect() geom.RectF
}

// OpacityNode multiplies the opacity of its children.
type OpacityNode interface {
	Node
	SetOpacity(opacity float64)
	Opacity() float64
}

// RectangleNode fills a rect with a color. A positive border width
// strokes the outline instead.
type RectangleNode interface {
	Node
	SetRect(r geom.RectF)
	SetColor(c gputypes.Color)
	SetBorderWidth(w float64)
	Rect() geom.RectF
	Color() gputypes.Color
}

// Filtering selects how textures are sampled.
type Filtering uint8

// Filtering modes.
const (
	FilterLinear Filtering = iota
	FilterNearest
)

// TextureNode draws a texture into a rect. SourceRect is normalized to
// the texture size. A nil texture draws nothing.
type TextureNode interface {
	Node
	SetRect(r geom.RectF)
	SetSourceRect(r geom.RectF)
	SetTexture(tex gpucontext.Texture)
	SetFiltering(f Filtering)
	SetFlipY(flip bool)
	SetOpaque(opaque bool)
	Rect() geom.RectF
	Texture() gpucontext.Texture
}

// VideoNode draws a video frame from one or more planes. Three or four
// planes are Y, U, V and an optional alpha; a single plane is an external
// stream sampled through TextureMatrix.
type VideoNode interface {
	Node
	SetRect(r geom.RectF)
	SetPlanes(planes []gpucontext.Texture)
	SetTexCoordRect(r geom.RectF)
	SetColorSpace(cs quad.YUVColorSpace)
	SetTextureMatrix(m geom.Transform)

	// SetShader sets the SPIR-V program that samples the planes.
	SetShader(spirv []byte)

	Rect() geom.RectF
	Planes() []gpucontext.Texture
}

// RenderTarget is an offscreen surface drawn from its own subtree.
type RenderTarget interface {
	Size() geom.Size

	// SetRoot sets the subtree drawn into the target.
	SetRoot(root Node)
	Root() Node

	// SetTransparentBackground clears the target to transparent instead
	// of opaque black before drawing.
	SetTransparentBackground(transparent bool)
}

// RenderTargetNode draws the contents of a RenderTarget into a rect.
type RenderTargetNode interface {
	Node
	SetRect(r geom.RectF)
	SetTarget(target RenderTarget)
	Target() RenderTarget
}

// FenceNode makes the renderer wait for GPU work behind its sync tokens
// before drawing the nodes that follow it.
type FenceNode interface {
	Node
	SetSyncTokens(tokens []quad.SyncToken)
	SyncTokens() []quad.SyncToken
}

// Context creates nodes and render targets of one host renderer.
type Context interface {
	NewTransformNode() TransformNode
	NewClipNode() ClipNode
	NewOpacityNode() OpacityNode
	NewRectangleNode() RectangleNode
	NewTextureNode() TextureNode
	NewVideoNode() VideoNode
	NewRenderTargetNode() RenderTargetNode
	NewFenceNode() FenceNode

	// NewRenderTarget allocates an offscreen target.
	NewRenderTarget(size geom.Size) RenderTarget

	// ReleaseRenderTarget frees a target that is no longer drawn.
	ReleaseRenderTarget(target RenderTarget)
}

// Walk calls fn for n and its descendants in draw order, depth first.
// Subtrees of render targets are not entered. Walk stops descending into
// a node when fn returns false.
func Walk(n Node, fn func(n Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for i := range n.ChildCount() {
		walk(n.Child(i), depth+1, fn)
	}
}

// Count returns the number of nodes of type t under n, n included.
func Count(n Node, t NodeType) int {
	count := 0
	Walk(n, func(n Node, _ int) bool {
		if n.Type() == t {
			count++
		}
		return true
	})
	return count
}
