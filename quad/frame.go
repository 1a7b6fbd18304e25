package quad

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
)

// CompositorFrameMetadata describes a frame independently of its content.
type CompositorFrameMetadata struct {
	DeviceScaleFactor   float64
	ViewportSize        geom.Size
	RootBackgroundColor gputypes.Color

	PageScaleFactor    float64
	MinPageScaleFactor float64
	MaxPageScaleFactor float64
	RootScrollOffset   geom.Point

	HasTouchHandlers bool
	HasWheelHandlers bool

	// SourceFrameNumber is the producer commit number the frame was drawn from.
	SourceFrameNumber int

	// FrameID increases by one for each frame submitted to one output surface.
	FrameID uint64

	// LatencyInfo holds the trace ids of the swap promises resolved by the frame.
	LatencyInfo []int64
}

// CompositorFrame is the unit submitted to an output surface.
type CompositorFrame struct {
	Metadata CompositorFrameMetadata

	// RenderPassList is ordered so that every pass precedes the passes
	// that reference it. The root pass is last.
	RenderPassList []*RenderPass

	// ResourceList holds the resources transferred with this frame only.
	ResourceList []TransferableResource
}

// RootPass returns the last render pass, or nil for an empty frame.
func (f *CompositorFrame) RootPass() *RenderPass {
	if len(f.RenderPassList) == 0 {
		return nil
	}
	return f.RenderPassList[len(f.RenderPassList)-1]
}

// PassByID indexes the render passes of the frame.
func (f *CompositorFrame) PassByID() map[RenderPassID]*RenderPass {
	m := make(map[RenderPassID]*RenderPass, len(f.RenderPassList))
	for _, p := range f.RenderPassList {
		m[p.ID] = p
	}
	return m
}

// DamageRect returns the damage of the root pass.
func (f *CompositorFrame) DamageRect() geom.Rect {
	if root := f.RootPass(); root != nil {
		return root.DamageRect
	}
	return geom.Rect{}
}

// Mailbox is an opaque handle naming a GPU texture across contexts.
type Mailbox struct {
	Name   string
	Target uint32
}

// IsZero reports whether the mailbox names nothing.
func (m Mailbox) IsZero() bool {
	return m.Name == ""
}

// SyncToken orders GPU work across contexts. A consumer waits on the token
// before sampling a texture the producer last wrote.
type SyncToken struct {
	Namespace       uint32
	CommandBufferID uint64
	Release         uint64
}

// HasData reports whether the token must be waited on.
func (t SyncToken) HasData() bool {
	return t.Release != 0
}

// TransferableResource is a resource handed to the parent compositor.
type TransferableResource struct {
	ID         ResourceID
	Format     gputypes.TextureFormat
	Size       geom.Size
	Mailbox    Mailbox
	SyncToken  SyncToken
	IsSoftware bool
}

// ReturnedResource gives a resource back to the child that exported it.
// Count is the number of exports being returned.
type ReturnedResource struct {
	ID        ResourceID
	SyncToken SyncToken
	Count     int
	Lost      bool
}

// ReturnAll converts transferable resources into returned resources with
// a count of one each.
func ReturnAll(resources []TransferableResource, lost bool) []ReturnedResource {
	out := make([]ReturnedResource, 0, len(resources))
	for _, r := range resources {
		out = append(out, ReturnedResource{ID: r.ID, SyncToken: r.SyncToken, Count: 1, Lost: lost})
	}
	return out
}
