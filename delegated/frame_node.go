// Package delegated translates compositor frames into a host scene graph.
//
// A FrameNode receives frames from a DelegatingOutputSurface, or directly
// through Commit, and rebuilds its node subtree from scratch for every
// frame. Quad identity is not stable across frames, so nothing is diffed.
// Mailbox textures are imported once, resolved on the GPU runner and
// handed back to the producer when a frame stops referencing them.
package delegated

import (
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/scenegraph"
	"github.com/gogpu/cc/surface"
)

// Stats counts the work of the last frame.
type Stats struct {
	Frames          int
	Quads           int
	SkippedQuads    int
	Fences          int
	Fetches         int
	MissingTextures int
	TargetsCreated  int
	TargetsReused   int
}

// Option configures a FrameNode.
type Option func(*FrameNode)

// WithGPURunner resolves mailboxes on r. Without it fetches run on the
// goroutine that commits the frame.
func WithGPURunner(r taskrunner.TaskRunner) Option {
	return func(n *FrameNode) { n.gpu = r }
}

// FrameNode is the root of the node subtree built from delegated frames.
//
// FrameNode is safe for concurrent use. Hosts draw Root inside Draw so
// that a frame arriving meanwhile does not rebuild the tree under them.
type FrameNode struct {
	ctx     scenegraph.Context
	fetcher TextureFetcher
	gpu     taskrunner.TaskRunner

	mu        sync.Mutex
	root      scenegraph.TransformNode
	mailboxes map[quad.ResourceID]*mailboxTexture
	targets   map[quad.RenderPassID]scenegraph.RenderTarget
	fenced    map[quad.ResourceID]bool
	returned  func([]quad.ReturnedResource)
	frames    int
	stats     Stats
	closed    bool
}

// NewFrameNode returns a FrameNode building nodes from ctx and resolving
// mailboxes through fetcher.
func NewFrameNode(ctx scenegraph.Context, fetcher TextureFetcher, opts ...Option) *FrameNode {
	n := &FrameNode{
		ctx:       ctx,
		fetcher:   fetcher,
		root:      ctx.NewTransformNode(),
		mailboxes: make(map[quad.ResourceID]*mailboxTexture),
		targets:   make(map[quad.RenderPassID]scenegraph.RenderTarget),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Root returns the transform node every frame is built under.
func (n *FrameNode) Root() scenegraph.TransformNode { return n.root }

// Draw runs fn with the root while no frame is being built.
func (n *FrameNode) Draw(fn func(root scenegraph.Node)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n.root)
}

// Stats returns the counters of the last frame.
func (n *FrameNode) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// ImportCount returns how often resource id was imported since it was
// last returned, or 0 if it is not held.
func (n *FrameNode) ImportCount(id quad.ResourceID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if mb, ok := n.mailboxes[id]; ok {
		return mb.importCount
	}
	return 0
}

// HeldResources returns the number of imported resources not yet
// returned.
func (n *FrameNode) HeldResources() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.mailboxes)
}

// SubmitFrame implements surface.FrameSink. Resources the frame no
// longer references go to the returned-resources handler.
func (n *FrameNode) SubmitFrame(frame *quad.CompositorFrame) error {
	scale := frame.Metadata.DeviceScaleFactor
	returns := n.Commit(frame, scale)
	n.mu.Lock()
	fn := n.returned
	n.mu.Unlock()
	if fn != nil && len(returns) > 0 {
		fn(returns)
	}
	return nil
}

// SetReturnedResourcesHandler implements surface.FrameSink.
func (n *FrameNode) SetReturnedResourcesHandler(fn func([]quad.ReturnedResource)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.returned = fn
}

// Commit rebuilds the subtree from frame and returns the resources the
// producer gets back. Frame content is in device pixels; the root scales
// it by 1/devicePixelRatio.
func (n *FrameNode) Commit(frame *quad.CompositorFrame, devicePixelRatio float64) []quad.ReturnedResource {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return quad.ReturnAll(frame.ResourceList, false)
	}
	n.frames++
	n.stats = Stats{Frames: n.frames}

	n.importResources(frame.ResourceList)
	used := referencedResources(frame)
	n.fetchTextures(n.pendingFetches(used))

	if devicePixelRatio <= 0 {
		devicePixelRatio = 1
	}
	n.root.RemoveAllChildren()
	n.root.SetMatrix(geom.Scaling(1/devicePixelRatio, 1/devicePixelRatio))
	n.fenced = make(map[quad.ResourceID]bool)

	targets := make(map[quad.RenderPassID]scenegraph.RenderTarget, len(frame.RenderPassList))
	for i, pass := range frame.RenderPassList {
		parent := scenegraph.Node(n.root)
		if i < len(frame.RenderPassList)-1 {
			target := n.targetFor(pass)
			container := n.ctx.NewTransformNode()
			container.SetMatrix(geom.Translation(float64(-pass.OutputRect.X), float64(-pass.OutputRect.Y)))
			target.SetRoot(container)
			target.SetTransparentBackground(pass.HasTransparentBackground)
			targets[pass.ID] = target
			parent = container
		}
		n.buildPass(parent, pass, targets)
	}
	for id, t := range n.targets {
		if _, ok := targets[id]; !ok {
			n.ctx.ReleaseRenderTarget(t)
		}
	}
	n.targets = targets

	return n.collectReturns(used)
}

// Close returns every held resource through the handler and releases the
// offscreen targets. Later frames are returned unused.
func (n *FrameNode) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	returns := n.collectReturns(nil)
	for _, t := range n.targets {
		n.ctx.ReleaseRenderTarget(t)
	}
	n.targets = nil
	n.root.RemoveAllChildren()
	fn := n.returned
	n.mu.Unlock()
	if fn != nil && len(returns) > 0 {
		fn(returns)
	}
}

func (n *FrameNode) importResources(list []quad.TransferableResource) {
	for _, r := range list {
		mb, ok := n.mailboxes[r.ID]
		if !ok {
			n.mailboxes[r.ID] = &mailboxTexture{resource: r, importCount: 1}
			continue
		}
		mb.importCount++
		if mb.resource.Mailbox != r.Mailbox {
			mb.fetched, mb.tex = false, nil
		}
		mb.resource = r
	}
}

func referencedResources(frame *quad.CompositorFrame) map[quad.ResourceID]bool {
	used := make(map[quad.ResourceID]bool)
	for _, pass := range frame.RenderPassList {
		for _, id := range pass.Resources() {
			used[id] = true
		}
	}
	return used
}

func (n *FrameNode) pendingFetches(used map[quad.ResourceID]bool) []*mailboxTexture {
	var pending []*mailboxTexture
	for _, id := range sortedIDs(n.mailboxes) {
		mb := n.mailboxes[id]
		if used[id] && !mb.fetched {
			pending = append(pending, mb)
		}
	}
	n.stats.Fetches = len(pending)
	return pending
}

// collectReturns removes the mailboxes not in used and returns them with
// their import counts.
func (n *FrameNode) collectReturns(used map[quad.ResourceID]bool) []quad.ReturnedResource {
	var returns []quad.ReturnedResource
	for _, id := range sortedIDs(n.mailboxes) {
		if used[id] {
			continue
		}
		mb := n.mailboxes[id]
		returns = append(returns, quad.ReturnedResource{
			ID:        id,
			SyncToken: mb.resource.SyncToken,
			Count:     mb.importCount,
		})
		delete(n.mailboxes, id)
	}
	return returns
}

func sortedIDs(m map[quad.ResourceID]*mailboxTexture) []quad.ResourceID {
	ids := make([]quad.ResourceID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// targetFor returns the offscreen target of pass, reusing the previous
// frame's target of the same pass id when its size still matches.
func (n *FrameNode) targetFor(pass *quad.RenderPass) scenegraph.RenderTarget {
	size := pass.OutputRect.Size()
	if t, ok := n.targets[pass.ID]; ok {
		if t.Size() == size {
			n.stats.TargetsReused++
			return t
		}
		n.ctx.ReleaseRenderTarget(t)
		delete(n.targets, pass.ID)
	}
	n.stats.TargetsCreated++
	return n.ctx.NewRenderTarget(size)
}

// buildPass appends the nodes of pass under parent, back to front. Quads
// sharing a state share one transform/clip/opacity chain.
func (n *FrameNode) buildPass(parent scenegraph.Node, pass *quad.RenderPass, targets map[quad.RenderPassID]scenegraph.RenderTarget) {
	var (
		shared *quad.SharedQuadState
		chain  scenegraph.Node
	)
	for i := len(pass.QuadList) - 1; i >= 0; i-- {
		q := pass.QuadList[i]
		if chain == nil || q.Shared != shared {
			shared = q.Shared
			chain = n.buildSharedState(parent, shared)
		}
		n.stats.Quads++
		n.appendQuad(chain, q, targets)
	}
}

func (n *FrameNode) buildSharedState(parent scenegraph.Node, s *quad.SharedQuadState) scenegraph.Node {
	if s == nil {
		return parent
	}
	top := parent
	if s.IsClipped {
		clip := n.ctx.NewClipNode()
		clip.SetClipRect(s.ClipRect.ToRectF())
		top.AppendChild(clip)
		top = clip
	}
	t := n.ctx.NewTransformNode()
	t.SetMatrix(s.QuadToTargetTransform)
	top.AppendChild(t)
	top = t
	if s.Opacity < 1 {
		o := n.ctx.NewOpacityNode()
		o.SetOpacity(s.Opacity)
		top.AppendChild(o)
		top = o
	}
	return top
}

func (n *FrameNode) appendQuad(chain scenegraph.Node, q *quad.DrawQuad, targets map[quad.RenderPassID]scenegraph.RenderTarget) {
	rect := q.Rect.ToRectF()
	switch p := q.Payload.(type) {
	case *quad.SolidColor:
		r := n.ctx.NewRectangleNode()
		r.SetRect(rect)
		r.SetColor(p.Color)
		chain.AppendChild(r)

	case *quad.Texture:
		texs := n.textures(chain, p.Resource)
		parent := chain
		if o := vertexOpacity(p.VertexOpacity); o < 1 {
			on := n.ctx.NewOpacityNode()
			on.SetOpacity(o)
			chain.AppendChild(on)
			parent = on
		}
		t := n.ctx.NewTextureNode()
		t.SetRect(rect)
		t.SetSourceRect(geom.RectF{
			X:      p.UVTopLeft.X,
			Y:      p.UVTopLeft.Y,
			Width:  p.UVBottomRight.X - p.UVTopLeft.X,
			Height: p.UVBottomRight.Y - p.UVTopLeft.Y,
		})
		t.SetTexture(texs[0])
		t.SetFlipY(p.FlipY)
		t.SetOpaque(!q.NeedsBlending)
		t.SetFiltering(filtering(p.Nearest))
		parent.AppendChild(t)

	case *quad.Tile:
		texs := n.textures(chain, p.Resource)
		t := n.ctx.NewTextureNode()
		t.SetRect(rect)
		if !p.TextureSize.IsEmpty() {
			w, h := float64(p.TextureSize.Width), float64(p.TextureSize.Height)
			t.SetSourceRect(geom.RectF{
				X:      p.TexCoordRect.X / w,
				Y:      p.TexCoordRect.Y / h,
				Width:  p.TexCoordRect.Width / w,
				Height: p.TexCoordRect.Height / h,
			})
		}
		t.SetTexture(texs[0])
		t.SetOpaque(!q.NeedsBlending)
		t.SetFiltering(filtering(p.Nearest))
		chain.AppendChild(t)

	case *quad.RenderPassRef:
		target, ok := targets[p.PassID]
		if !ok {
			cc.Logger().Debug("delegated: quad references a missing render pass", "pass", p.PassID)
			n.stats.SkippedQuads++
			return
		}
		r := n.ctx.NewRenderTargetNode()
		r.SetRect(rect)
		r.SetTarget(target)
		chain.AppendChild(r)

	case *quad.YUVVideo:
		ids := []quad.ResourceID{p.Y, p.U, p.V}
		if p.A != 0 {
			ids = append(ids, p.A)
		}
		v := n.ctx.NewVideoNode()
		v.SetRect(rect)
		v.SetPlanes(n.textures(chain, ids...))
		v.SetTexCoordRect(p.YTexCoord)
		v.SetColorSpace(p.ColorSpace)
		v.SetShader(n.program(quad.MaterialYUVVideo))
		chain.AppendChild(v)

	case *quad.StreamVideo:
		v := n.ctx.NewVideoNode()
		v.SetRect(rect)
		v.SetPlanes(n.textures(chain, p.Resource))
		v.SetTextureMatrix(p.TextureMatrix)
		v.SetShader(n.program(quad.MaterialStreamVideo))
		chain.AppendChild(v)

	case *quad.DebugBorder:
		r := n.ctx.NewRectangleNode()
		r.SetRect(rect)
		r.SetColor(p.Color)
		r.SetBorderWidth(max(float64(p.Width), 1))
		chain.AppendChild(r)

	case *quad.Checkerboard:
		r := n.ctx.NewRectangleNode()
		r.SetRect(rect)
		r.SetColor(p.Color)
		chain.AppendChild(r)

	default:
		cc.Logger().Warn("delegated: unsupported quad material", "material", q.Material())
		n.stats.SkippedQuads++
	}
}

// textures resolves ids to textures. Before the first use of a resource
// in the frame, a fence on its sync token is appended to chain.
func (n *FrameNode) textures(chain scenegraph.Node, ids ...quad.ResourceID) []gpucontext.Texture {
	texs := make([]gpucontext.Texture, len(ids))
	var tokens []quad.SyncToken
	for i, id := range ids {
		mb := n.mailboxes[id]
		if !mb.valid() {
			n.stats.MissingTextures++
			continue
		}
		texs[i] = mb.tex
		if mb.resource.SyncToken.HasData() && !n.fenced[id] {
			n.fenced[id] = true
			tokens = append(tokens, mb.resource.SyncToken)
		}
	}
	if len(tokens) > 0 {
		f := n.ctx.NewFenceNode()
		f.SetSyncTokens(tokens)
		chain.AppendChild(f)
		n.stats.Fences++
	}
	return texs
}

func (n *FrameNode) program(m quad.Material) []byte {
	spirv, err := Program(m)
	if err != nil {
		cc.Logger().Warn("delegated: material program unavailable", "material", m, "err", err)
		return nil
	}
	return spirv
}

// vertexOpacity averages per-vertex opacities. All zero means unset.
func vertexOpacity(v [4]float32) float64 {
	sum := float64(v[0] + v[1] + v[2] + v[3])
	if sum == 0 {
		return 1
	}
	return sum / 4
}

func filtering(nearest bool) scenegraph.Filtering {
	if nearest {
		return scenegraph.FilterNearest
	}
	return scenegraph.FilterLinear
}

var _ surface.FrameSink = (*FrameNode)(nil)
