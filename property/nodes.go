package property

import (
	"slices"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// notAnimated is the ImplAnimatedAt value of a node whose value came from
// the producer.
const notAnimated = -1

// TransformNode positions a subtree.
//
// The node maps its space into its parent's as
//
//	Translation(PostLocalOffset) * Local * Translation(-ScrollOffset)
type TransformNode struct {
	OwnerID   int
	ElementID ElementID

	Local           geom.Transform
	PostLocalOffset geom.Point
	ScrollOffset    geom.Point

	// Animating is set while an impl-side animation drives Local.
	Animating bool

	// Changed is set when the node differs from the last drawn state.
	Changed bool

	// ValueStamp is the source frame number of the commit in which the
	// producer last set Local.
	ValueStamp int

	// ImplAnimatedAt is the source frame number of the tree an impl-side
	// animation was applied to, or -1.
	ImplAnimatedAt int

	// Cached by UpdateScreenSpace.
	ToScreen      geom.Transform
	AncestorMoved bool
}

// NewTransformNode returns an identity node owned by ownerID.
func NewTransformNode(ownerID int) TransformNode {
	return TransformNode{
		OwnerID:        ownerID,
		ElementID:      ElementID(ownerID),
		Local:          geom.Identity(),
		ToScreen:       geom.Identity(),
		ImplAnimatedAt: notAnimated,
	}
}

// ToParent returns the transform from node space into parent space.
func (n *TransformNode) ToParent() geom.Transform {
	return geom.Translation(n.PostLocalOffset.X, n.PostLocalOffset.Y).
		Multiply(n.Local).
		Translate(-n.ScrollOffset.X, -n.ScrollOffset.Y)
}

// EffectNode carries opacity, filters and masking of a subtree. Nodes with
// HasRenderSurface draw their subtree into an offscreen render pass.
type EffectNode struct {
	OwnerID   int
	ElementID ElementID

	Opacity float64
	Filters []quad.Filter

	// MaskLayerID is the layer masking the subtree, or 0.
	MaskLayerID int

	HasRenderSurface bool
	HasCopyRequest   bool

	// HiddenByBackfaceOrHide is set for subtrees hidden with
	// HideLayerAndSubtree.
	HiddenByBackfaceOrHide bool

	TransformID int
	ClipID      int

	Animating bool
	Changed   bool

	// ValueStamp and FilterStamp are the source frame numbers of the
	// commits in which the producer last set Opacity and Filters.
	ValueStamp  int
	FilterStamp int

	// ImplAnimatedAt and FilterAnimatedAt are the source frame numbers of
	// the trees impl-side animations of Opacity and Filters were applied
	// to, or -1.
	ImplAnimatedAt   int
	FilterAnimatedAt int

	// Cached by UpdateScreenSpace.
	ScreenSpaceOpacity float64
	// TargetID is the nearest effect node at or above this one that has a
	// render surface.
	TargetID int
	// SubtreeHidden is set when this node or an ancestor is hidden.
	SubtreeHidden bool
}

// NewEffectNode returns an opaque node owned by ownerID.
func NewEffectNode(ownerID int) EffectNode {
	return EffectNode{
		OwnerID:            ownerID,
		ElementID:          ElementID(ownerID),
		Opacity:            1,
		ScreenSpaceOpacity: 1,
		ImplAnimatedAt:     notAnimated,
		FilterAnimatedAt:   notAnimated,
	}
}

// IsDrawn reports whether the subtree can contribute pixels.
func (n *EffectNode) IsDrawn() bool {
	return !n.SubtreeHidden && (n.ScreenSpaceOpacity > 0 || n.Animating || n.HasCopyRequest)
}

// ClipNode clips a subtree to a rect in the space of TransformID.
type ClipNode struct {
	OwnerID     int
	ClipRect    geom.Rect
	TransformID int
	Changed     bool

	// ScreenClip is the clip in screen space intersected with all
	// ancestor clips. Cached by UpdateScreenSpace.
	ScreenClip geom.Rect
}

// ScrollNode describes a scroll container.
type ScrollNode struct {
	OwnerID   int
	ElementID ElementID

	Scrollable      bool
	ContainerBounds geom.Size
	ContentBounds   geom.Size
	ScrollOffset    geom.Point
	TransformID     int

	ImplAnimatedAt int
	ValueStamp     int
}

// MaxScrollOffset returns the largest valid scroll offset.
func (n *ScrollNode) MaxScrollOffset() geom.Point {
	return geom.Point{
		X: max(0, float64(n.ContentBounds.Width-n.ContainerBounds.Width)),
		Y: max(0, float64(n.ContentBounds.Height-n.ContainerBounds.Height)),
	}
}

// ClampScrollOffset returns p limited to [0, MaxScrollOffset].
func (n *ScrollNode) ClampScrollOffset(p geom.Point) geom.Point {
	m := n.MaxScrollOffset()
	return geom.Point{X: min(max(p.X, 0), m.X), Y: min(max(p.Y, 0), m.Y)}
}

func filtersEqual(a, b []quad.Filter) bool {
	return slices.Equal(a, b)
}

// NewScrollNode returns a scroll node owned by ownerID.
func NewScrollNode(ownerID int) ScrollNode {
	return ScrollNode{
		OwnerID:        ownerID,
		ElementID:      ElementID(ownerID),
		ImplAnimatedAt: notAnimated,
	}
}
