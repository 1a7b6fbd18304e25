package quad

import (
	"image"
	"sync"

	"github.com/gogpu/cc/geom"
)

// RenderPassID identifies a render pass within a frame. It is stable
// across frames for the same render surface: LayerID is the owning layer
// and Index distinguishes several passes of one layer (e.g. a replica).
type RenderPassID struct {
	LayerID int
	Index   int
}

// RenderPass is an ordered batch of draw quads rendered into one target.
// The last pass of a frame is the root pass and targets the output surface.
type RenderPass struct {
	ID                       RenderPassID
	OutputRect               geom.Rect
	DamageRect               geom.Rect
	TransformToRootTarget    geom.Transform
	HasTransparentBackground bool

	// QuadList is ordered front to back: the first quad is drawn last.
	QuadList            []*DrawQuad
	SharedQuadStateList []*SharedQuadState

	CopyRequests []*CopyOutputRequest
}

// NewRenderPass returns an empty pass.
func NewRenderPass(id RenderPassID, outputRect, damageRect geom.Rect, toRoot geom.Transform) *RenderPass {
	return &RenderPass{
		ID:                    id,
		OutputRect:            outputRect,
		DamageRect:            damageRect,
		TransformToRootTarget: toRoot,
	}
}

// CreateAndAppendSharedQuadState appends a shared quad state with full
// opacity and identity transform and returns it for the caller to fill.
func (p *RenderPass) CreateAndAppendSharedQuadState() *SharedQuadState {
	sqs := &SharedQuadState{
		QuadToTargetTransform: geom.Identity(),
		Opacity:               1,
	}
	p.SharedQuadStateList = append(p.SharedQuadStateList, sqs)
	return sqs
}

// AppendQuad appends q. If q has no shared state, the last shared state
// of the pass is used.
func (p *RenderPass) AppendQuad(q *DrawQuad) {
	if q.Shared == nil && len(p.SharedQuadStateList) > 0 {
		q.Shared = p.SharedQuadStateList[len(p.SharedQuadStateList)-1]
	}
	p.QuadList = append(p.QuadList, q)
}

// Resources returns every resource referenced by the pass, in quad order
// and with duplicates removed.
func (p *RenderPass) Resources() []ResourceID {
	seen := make(map[ResourceID]struct{})
	var ids []ResourceID
	for _, q := range p.QuadList {
		for _, id := range q.Resources() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// CopyResult is delivered to a CopyOutputRequest.
// Image is nil when the request was aborted.
type CopyResult struct {
	Image *image.RGBA
	Rect  geom.Rect
}

// IsEmpty reports whether the result carries no pixels.
func (r CopyResult) IsEmpty() bool {
	return r.Image == nil
}

// CopyOutputRequest asks for the pixels of a layer's render surface.
// The callback runs exactly once, with an empty result if the request
// could not be satisfied.
type CopyOutputRequest struct {
	// Area limits the copy to a sub rect of the surface; empty means all.
	Area geom.Rect

	once     sync.Once
	callback func(CopyResult)
}

// NewCopyOutputRequest returns a request delivering its result to cb.
func NewCopyOutputRequest(cb func(CopyResult)) *CopyOutputRequest {
	return &CopyOutputRequest{callback: cb}
}

// SendResult delivers r. Later calls are ignored.
func (c *CopyOutputRequest) SendResult(r CopyResult) {
	c.once.Do(func() {
		if c.callback != nil {
			c.callback(r)
		}
	})
}

// SendEmptyResult aborts the request.
func (c *CopyOutputRequest) SendEmptyResult() {
	c.SendResult(CopyResult{})
}
