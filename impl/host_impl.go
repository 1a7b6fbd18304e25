package impl

import (
	"context"
	"image"
	"time"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/hud"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/resource"
	"github.com/gogpu/cc/surface"
	"github.com/gogpu/cc/swappromise"
	"github.com/gogpu/cc/tiles"
)

// Client receives the events of a LayerTreeHostImpl that drive the
// scheduler. Methods are called on the impl goroutine.
type Client interface {
	NotifyReadyToActivate()
	NotifyReadyToDraw()
	SetNeedsRedrawOnImplThread()
	SetNeedsPrepareTilesOnImplThread()
	DidLoseOutputSurfaceOnImplThread()
	DidSwapBuffersCompleteOnImplThread()
	DidActivateSyncTree()
}

// ActivationObserver is told about tree activations.
type ActivationObserver interface {
	WillActivateTree(h *LayerTreeHostImpl)
	DidActivateTree(h *LayerTreeHostImpl)
}

// DrawObserver is told about drawn frames.
type DrawObserver interface {
	WillDrawFrame(frame *FrameData)
	DidSwapFrame(frame *FrameData, swapped bool)
}

// DrawResult is the outcome of PrepareToDraw.
type DrawResult uint8

// Draw results.
const (
	DrawSuccess DrawResult = iota
	DrawAbortedCantDraw
	DrawAbortedContextLost
)

// String returns the result name.
func (r DrawResult) String() string {
	switch r {
	case DrawSuccess:
		return "success"
	case DrawAbortedCantDraw:
		return "aborted_cant_draw"
	case DrawAbortedContextLost:
		return "aborted_context_lost"
	default:
		return "unknown"
	}
}

// FrameData carries one frame from PrepareToDraw to SwapBuffers.
type FrameData struct {
	// RenderPasses are ordered children first; the root pass is last.
	RenderPasses []*quad.RenderPass

	// WillDrawLayers are the layers that appended quads.
	WillDrawLayers []*LayerImpl

	// DamageRect is the screen damage of the root pass.
	DamageRect geom.Rect

	// HasNoDamage is set when nothing changed and no copy was requested.
	// Such a frame is not swapped.
	HasNoDamage bool

	CheckerboardedTiles int

	frame *quad.CompositorFrame
}

// CompositorFrame returns the frame built by DrawLayers, or nil.
func (f *FrameData) CompositorFrame() *quad.CompositorFrame { return f.frame }

// clock is implemented by task runners with a virtual clock.
type clock interface {
	Now() time.Time
}

// LayerTreeHostImpl is the consumer side of the compositor. It owns the
// pending, active and recycle trees, draws the active tree into
// compositor frames and submits them to its output surface.
//
// All methods must be called on the impl goroutine.
type LayerTreeHostImpl struct {
	settings cc.LayerTreeSettings
	client   Client
	runner   taskrunner.TaskRunner

	provider    *resource.Provider
	uiResources *resource.UIResourceTable
	tileManager *tiles.Manager
	damage      *DamageTracker

	pendingTree *LayerTreeImpl
	activeTree  *LayerTreeImpl
	recycleTree *LayerTreeImpl

	// commitTrees holds the property trees of the active tree before a
	// commit that goes straight to the active tree.
	commitTrees *property.PropertyTrees

	outputSurface surface.OutputSurface
	contextLost   bool
	reshaped      geom.Size
	reshapedScale float64
	visible       bool

	blockReadyToActivate bool
	heldReadyToActivate  bool

	fps        *hud.FrameRateCounter
	hudPainter *hud.Painter
	hudRes     quad.ResourceID
	hudSize    geom.Size

	frameID uint64

	activationObserver ActivationObserver
	drawObserver       DrawObserver
}

// NewLayerTreeHostImpl returns a host with an empty active tree. Impl
// callbacks of the output surface are posted to runner.
func NewLayerTreeHostImpl(settings cc.LayerTreeSettings, client Client, runner taskrunner.TaskRunner) *LayerTreeHostImpl {
	if settings.TileSize <= 0 {
		settings.TileSize = cc.DefaultTileSize
	}
	if settings.MaxPendingSwaps <= 0 {
		settings.MaxPendingSwaps = cc.DefaultMaxPendingSwaps
	}
	h := &LayerTreeHostImpl{
		settings: settings,
		client:   client,
		runner:   runner,
		provider: resource.NewProvider(),
		damage:   NewDamageTracker(),
		visible:  true,
		fps:      hud.NewFrameRateCounter(time.Duration(settings.BeginFrameInterval), 0),
	}
	h.uiResources = resource.NewUIResourceTable(h.provider)
	h.tileManager = tiles.NewManager(h.provider, settings.TileSize, settings.RasterWorkers)
	h.activeTree = newLayerTreeImpl(h, ActiveTree)
	return h
}

// Settings returns the settings of the host.
func (h *LayerTreeHostImpl) Settings() cc.LayerTreeSettings { return h.settings }

// ResourceProvider returns the provider owning every drawn resource.
func (h *LayerTreeHostImpl) ResourceProvider() *resource.Provider { return h.provider }

// TileManager returns the raster tile manager.
func (h *LayerTreeHostImpl) TileManager() *tiles.Manager { return h.tileManager }

// FrameRateCounter returns the counter fed by swaps.
func (h *LayerTreeHostImpl) FrameRateCounter() *hud.FrameRateCounter { return h.fps }

// CommitToActiveTree reports whether commits skip the pending tree.
func (h *LayerTreeHostImpl) CommitToActiveTree() bool { return !h.settings.Threaded }

// ActiveTree returns the tree being drawn.
func (h *LayerTreeHostImpl) ActiveTree() *LayerTreeImpl { return h.activeTree }

// PendingTree returns the tree waiting for activation, or nil.
func (h *LayerTreeHostImpl) PendingTree() *LayerTreeImpl { return h.pendingTree }

// RecycleTree returns the previous active tree kept for reuse, or nil.
func (h *LayerTreeHostImpl) RecycleTree() *LayerTreeImpl { return h.recycleTree }

// SyncTree returns the tree commits go to.
func (h *LayerTreeHostImpl) SyncTree() *LayerTreeImpl {
	if h.pendingTree != nil {
		return h.pendingTree
	}
	return h.activeTree
}

// SetActivationObserver installs o, or removes the observer when nil.
func (h *LayerTreeHostImpl) SetActivationObserver(o ActivationObserver) { h.activationObserver = o }

// SetDrawObserver installs o, or removes the observer when nil.
func (h *LayerTreeHostImpl) SetDrawObserver(o DrawObserver) { h.drawObserver = o }

// InitializeOutputSurface binds os as the new output surface. The next
// frame is fully damaged.
func (h *LayerTreeHostImpl) InitializeOutputSurface(os surface.OutputSurface) error {
	if err := os.BindToClient(&surfaceClient{host: h}); err != nil {
		return err
	}
	if h.outputSurface != nil {
		_ = h.outputSurface.Close()
	}
	h.outputSurface = os
	h.contextLost = false
	h.reshaped = geom.Size{}
	h.damage.Reset()
	h.activeTree.setNeedsUpdateDrawProperties()
	cc.Logger().Info("impl: output surface bound", "delegated", os.Capabilities().DelegatedRendering)
	return nil
}

// OutputSurface returns the bound output surface, or nil.
func (h *LayerTreeHostImpl) OutputSurface() surface.OutputSurface { return h.outputSurface }

// MaxFramesPending returns the swap limit of the output surface, or the
// configured one.
func (h *LayerTreeHostImpl) MaxFramesPending() int {
	if h.outputSurface != nil {
		if n := h.outputSurface.Capabilities().MaxFramesPending; n > 0 {
			return n
		}
	}
	return h.settings.MaxPendingSwaps
}

// Visible reports the visibility of the host.
func (h *LayerTreeHostImpl) Visible() bool { return h.visible }

// SetVisible changes visibility. Hiding breaks the promises of the active
// tree with SwapFails; showing forces a full redraw.
func (h *LayerTreeHostImpl) SetVisible(visible bool) {
	if h.visible == visible {
		return
	}
	h.visible = visible
	if !visible {
		h.activeTree.BreakSwapPromises(swappromise.SwapFails)
		return
	}
	h.damage.ForceFullDamage()
	h.client.SetNeedsRedrawOnImplThread()
}

// CanDraw reports whether the active tree can produce a frame.
func (h *LayerTreeHostImpl) CanDraw() bool {
	return h.outputSurface != nil && !h.contextLost && h.activeTree.root != nil &&
		!h.activeTree.viewportSize.IsEmpty()
}

// BeginCommit prepares the tree the next commit is synchronized into and
// returns it. In threaded mode that is a pending tree, reusing the
// recycle tree when there is one; otherwise it is the active tree.
func (h *LayerTreeHostImpl) BeginCommit() *LayerTreeImpl {
	if h.CommitToActiveTree() {
		h.commitTrees = h.activeTree.propertyTrees
		return h.activeTree
	}
	if h.pendingTree == nil {
		if h.recycleTree != nil {
			h.pendingTree = h.recycleTree
			h.recycleTree = nil
			h.pendingTree.catchUpFrom(h.activeTree)
		} else {
			h.pendingTree = newLayerTreeImpl(h, PendingTree)
		}
		h.pendingTree.kind = PendingTree
	}
	return h.pendingTree
}

// ApplyUIResourceRequests uploads or deletes UI resources.
func (h *LayerTreeHostImpl) ApplyUIResourceRequests(reqs []resource.UIResourceRequest) {
	h.uiResources.Apply(reqs)
}

// UIResourceID returns the provider resource of a UI resource.
func (h *LayerTreeHostImpl) UIResourceID(id resource.UIResourceID) (quad.ResourceID, bool) {
	return h.uiResources.ResourceID(id)
}

// CommitComplete finishes a commit started with BeginCommit. A pending
// tree gets its tiles rasterized and is reported ready to activate; a
// commit to the active tree activates its promises and asks for a redraw.
func (h *LayerTreeHostImpl) CommitComplete() {
	t := h.SyncTree()
	if h.CommitToActiveTree() {
		t.carryPropertyChangesFrom(h.commitTrees)
		h.commitTrees = nil
		t.swapPromises.Activate()
		t.UpdateDrawProperties()
		h.prepareTiles(t)
		h.client.SetNeedsRedrawOnImplThread()
		cc.Logger().Debug("impl: commit complete", "tree", t.kind, "frame", t.sourceFrameNumber)
		return
	}
	t.UpdateDrawProperties()
	h.prepareTiles(t)
	cc.Logger().Debug("impl: commit complete", "tree", t.kind, "frame", t.sourceFrameNumber)
	h.notifyReadyToActivate()
}

// BlockNotifyReadyToActivateForTesting holds NotifyReadyToActivate while
// block is set. A held notification is delivered once on unblock.
func (h *LayerTreeHostImpl) BlockNotifyReadyToActivateForTesting(block bool) {
	h.blockReadyToActivate = block
	if !block && h.heldReadyToActivate {
		h.heldReadyToActivate = false
		h.notifyReadyToActivate()
	}
}

func (h *LayerTreeHostImpl) notifyReadyToActivate() {
	if h.pendingTree == nil {
		return
	}
	if h.blockReadyToActivate {
		h.heldReadyToActivate = true
		return
	}
	h.client.NotifyReadyToActivate()
}

// ActivateSyncTree makes the pending tree active. The previous active
// tree becomes the recycle tree.
func (h *LayerTreeHostImpl) ActivateSyncTree() {
	pending := h.pendingTree
	if pending == nil {
		return
	}
	if h.activationObserver != nil {
		h.activationObserver.WillActivateTree(h)
	}
	old := h.activeTree
	pending.carryChangesFrom(old)

	// Promises the old tree activated keep waiting for the next swap;
	// pinned ones were tied to the old tree and are overtaken.
	old.pinnedSwapPromises.Break(swappromise.SwapFails)
	pending.swapPromises.Activate()
	pending.pinnedSwapPromises.Activate()
	var promises swappromise.List
	promises.TakeFrom(&old.swapPromises)
	promises.TakeFrom(&pending.swapPromises)
	pending.swapPromises = promises

	for id, l := range old.layers {
		if !l.HasCopyRequest() {
			continue
		}
		if nl := pending.layers[id]; nl != nil {
			nl.PassCopyRequests(l.takeCopyRequests())
		} else {
			l.abortCopyRequests()
		}
	}

	pending.kind = ActiveTree
	pending.setNeedsUpdateDrawProperties()
	h.activeTree = pending
	h.pendingTree = nil
	if h.recycleTree != nil {
		h.recycleTree.release()
	}
	old.kind = RecycleTree
	h.recycleTree = old
	h.heldReadyToActivate = false

	if !h.visible {
		h.activeTree.BreakSwapPromises(swappromise.SwapFails)
	}
	cc.Logger().Debug("impl: activated", "frame", h.activeTree.sourceFrameNumber)

	h.client.DidActivateSyncTree()
	h.client.SetNeedsRedrawOnImplThread()
	if h.activationObserver != nil {
		h.activationObserver.DidActivateTree(h)
	}
	h.client.NotifyReadyToDraw()
}

// PrepareTiles rasterizes the tiles the pending and active trees need.
func (h *LayerTreeHostImpl) PrepareTiles() {
	if h.pendingTree != nil {
		h.prepareTiles(h.pendingTree)
	}
	h.prepareTiles(h.activeTree)
}

func (h *LayerTreeHostImpl) prepareTiles(t *LayerTreeImpl) bool {
	t.UpdateDrawProperties()
	var reqs []tiles.Request
	for _, l := range t.drawLayers {
		tc, ok := l.content.(tiledContent)
		if !ok {
			continue
		}
		tiling := tc.updateTiling(l, t.deviceScaleFactor)
		if tiling == nil {
			continue
		}
		reqs = append(reqs, tiles.Request{
			Tiling: tiling,
			Rect:   l.draw.VisibleLayerRect.ScaleToEnclosing(tiling.Scale()),
		})
	}
	if len(reqs) == 0 {
		return true
	}
	if err := h.tileManager.PrepareTiles(context.Background(), reqs); err != nil {
		cc.Logger().Warn("impl: prepare tiles failed", "err", err)
		return false
	}
	for _, r := range reqs {
		if !r.Tiling.IsReady(r.Rect) {
			return false
		}
	}
	return true
}

// PrepareToDraw builds the render passes of the active tree into frame
// and computes its damage.
func (h *LayerTreeHostImpl) PrepareToDraw(frame *FrameData) DrawResult {
	if h.contextLost {
		return DrawAbortedContextLost
	}
	if !h.CanDraw() {
		return DrawAbortedCantDraw
	}
	t := h.activeTree
	if t.viewportSize != h.reshaped || t.deviceScaleFactor != h.reshapedScale {
		h.outputSurface.Reshape(t.viewportSize, t.deviceScaleFactor)
		h.reshaped, h.reshapedScale = t.viewportSize, t.deviceScaleFactor
	}
	t.UpdateDrawProperties()
	if !h.prepareTiles(t) {
		h.client.SetNeedsPrepareTilesOnImplThread()
	}

	frame.DamageRect = h.damage.Update(t)
	h.buildRenderPasses(t, frame)
	hasCopy := false
	for _, p := range frame.RenderPasses {
		if len(p.CopyRequests) > 0 {
			hasCopy = true
		}
	}
	if root := frame.rootPass(); root != nil {
		root.DamageRect = frame.DamageRect
	}
	frame.HasNoDamage = frame.DamageRect.IsEmpty() && !hasCopy
	if h.drawObserver != nil {
		h.drawObserver.WillDrawFrame(frame)
	}
	return DrawSuccess
}

func (f *FrameData) rootPass() *quad.RenderPass {
	if len(f.RenderPasses) == 0 {
		return nil
	}
	return f.RenderPasses[len(f.RenderPasses)-1]
}

// DrawLayers turns the render passes of frame into a compositor frame.
// A frame without damage produces nothing.
func (h *LayerTreeHostImpl) DrawLayers(frame *FrameData) {
	if frame.HasNoDamage {
		return
	}
	t := h.activeTree
	md := quad.CompositorFrameMetadata{
		DeviceScaleFactor:   t.deviceScaleFactor,
		ViewportSize:        t.viewportSize,
		RootBackgroundColor: t.backgroundColor,
		PageScaleFactor:     t.pageScaleFactor,
		MinPageScaleFactor:  t.minPageScaleFactor,
		MaxPageScaleFactor:  t.maxPageScaleFactor,
		HasTouchHandlers:    t.hasTouchHandlers,
		HasWheelHandlers:    t.hasWheelHandlers,
		SourceFrameNumber:   t.sourceFrameNumber,
		FrameID:             h.frameID + 1,
	}
	if t.root != nil {
		md.RootScrollOffset = t.root.scrollOffset
	}
	frame.frame = &quad.CompositorFrame{Metadata: md, RenderPassList: frame.RenderPasses}
}

// SwapBuffers submits the frame drawn by DrawLayers. It reports whether
// a frame was swapped. Promises of the active tree resolve with the
// swap, or break with SwapFails when nothing was swapped.
func (h *LayerTreeHostImpl) SwapBuffers(frame *FrameData) bool {
	t := h.activeTree
	cf := frame.frame
	if cf == nil || h.outputSurface == nil {
		t.BreakSwapPromises(swappromise.SwapFails)
		h.finishFrame(frame, false)
		return false
	}

	seen := make(map[quad.ResourceID]struct{})
	var ids []quad.ResourceID
	for _, p := range cf.RenderPassList {
		for _, id := range p.Resources() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	cf.ResourceList = h.provider.PrepareSendToParent(ids)

	t.swapPromises.WillSwap(&cf.Metadata)
	t.pinnedSwapPromises.WillSwap(&cf.Metadata)
	if err := h.outputSurface.SwapBuffers(cf); err != nil {
		cc.Logger().Warn("impl: swap failed", "err", err)
		t.BreakSwapPromises(swappromise.SwapFails)
		h.finishFrame(frame, false)
		return false
	}

	h.frameID = cf.Metadata.FrameID
	t.swapPromises.Finish(&cf.Metadata)
	t.pinnedSwapPromises.Finish(&cf.Metadata)
	h.damage.DidDrawDamagedArea()
	t.ResetAllChangeTracking()
	h.fps.SaveTimeStamp(h.now())
	h.finishFrame(frame, true)
	cc.Logger().Debug("impl: swapped", "frame_id", h.frameID, "damage", cf.DamageRect())
	return true
}

// finishFrame aborts the copy requests the frame did not answer.
func (h *LayerTreeHostImpl) finishFrame(frame *FrameData, swapped bool) {
	for _, p := range frame.RenderPasses {
		for _, r := range p.CopyRequests {
			r.SendEmptyResult()
		}
	}
	if h.drawObserver != nil {
		h.drawObserver.DidSwapFrame(frame, swapped)
	}
}

func (h *LayerTreeHostImpl) now() time.Time {
	if c, ok := h.runner.(clock); ok {
		return c.Now()
	}
	return time.Now()
}

// SetNeedsRedraw damages the whole viewport and asks for a draw.
func (h *LayerTreeHostImpl) SetNeedsRedraw() {
	h.damage.ForceFullDamage()
	h.client.SetNeedsRedrawOnImplThread()
}

// SetNeedsRedrawRect damages r, in device pixels, and asks for a draw.
func (h *LayerTreeHostImpl) SetNeedsRedrawRect(r geom.Rect) {
	if r.IsEmpty() {
		return
	}
	h.damage.AddDamage(r)
	h.client.SetNeedsRedrawOnImplThread()
}

// DidLoseOutputSurface drops everything tied to the output surface:
// exported resources, UI resources, raster tiles and the promises of the
// active tree.
func (h *LayerTreeHostImpl) DidLoseOutputSurface() {
	if h.contextLost {
		return
	}
	h.contextLost = true
	cc.Logger().Warn("impl: output surface lost")
	if h.outputSurface != nil {
		_ = h.outputSurface.Close()
		h.outputSurface = nil
	}
	h.provider.DidLoseOutputSurface()
	h.uiResources.EvictAll()
	for _, t := range []*LayerTreeImpl{h.pendingTree, h.activeTree, h.recycleTree} {
		if t == nil {
			continue
		}
		for _, l := range t.layers {
			if pc, ok := l.content.(*PictureContent); ok && pc.tiling != nil {
				pc.tiling.Release()
			}
		}
	}
	h.dropHUDResource()
	h.damage.Reset()
	h.activeTree.BreakSwapPromises(swappromise.SwapFails)
	h.client.DidLoseOutputSurfaceOnImplThread()
}

// DidSwapBuffersComplete forwards a swap acknowledgement.
func (h *LayerTreeHostImpl) DidSwapBuffersComplete() {
	h.client.DidSwapBuffersCompleteOnImplThread()
}

// ReclaimResources takes back resources returned by the output surface.
func (h *LayerTreeHostImpl) ReclaimResources(returns []quad.ReturnedResource) {
	h.provider.ReceiveReturnsFromParent(returns)
}

// AnimateOpacity sets the opacity of the effect node of layer id on the
// pending and active trees. The value survives later commits unless the
// producer changes the opacity itself.
func (h *LayerTreeHostImpl) AnimateOpacity(id int, opacity float64) bool {
	return h.animate(func(t *LayerTreeImpl) bool {
		return t.propertyTrees.OnOpacityAnimated(property.ElementID(id), opacity, t.sourceFrameNumber)
	})
}

// AnimateTransform sets the local transform of layer id.
func (h *LayerTreeHostImpl) AnimateTransform(id int, m geom.Transform) bool {
	return h.animate(func(t *LayerTreeImpl) bool {
		return t.propertyTrees.OnTransformAnimated(property.ElementID(id), m, t.sourceFrameNumber)
	})
}

// AnimateFilters sets the filters of layer id.
func (h *LayerTreeHostImpl) AnimateFilters(id int, filters []quad.Filter) bool {
	return h.animate(func(t *LayerTreeImpl) bool {
		return t.propertyTrees.OnFilterAnimated(property.ElementID(id), filters, t.sourceFrameNumber)
	})
}

// ScrollTo scrolls layer id to offset, clamped to its scroll range.
func (h *LayerTreeHostImpl) ScrollTo(id int, offset geom.Point) bool {
	return h.animate(func(t *LayerTreeImpl) bool {
		return t.propertyTrees.OnScrollOffsetAnimated(property.ElementID(id), offset, t.sourceFrameNumber)
	})
}

// ScrollBy scrolls layer id by delta.
func (h *LayerTreeHostImpl) ScrollBy(id int, delta geom.Point) bool {
	l := h.activeTree.LayerByID(id)
	if l == nil {
		return false
	}
	cur := l.scrollOffset
	if n := h.activeTree.propertyTrees.Scroll.Node(l.scrollIndex); n != nil {
		cur = n.ScrollOffset
	}
	return h.ScrollTo(id, geom.Point{X: cur.X + delta.X, Y: cur.Y + delta.Y})
}

func (h *LayerTreeHostImpl) animate(fn func(t *LayerTreeImpl) bool) bool {
	ok := false
	for _, t := range []*LayerTreeImpl{h.activeTree, h.pendingTree} {
		if t == nil {
			continue
		}
		if fn(t) {
			ok = true
			t.setNeedsUpdateDrawProperties()
		}
	}
	if ok {
		h.client.SetNeedsRedrawOnImplThread()
	}
	return ok
}

// hudResource paints the heads-up display into a new bitmap resource and
// returns it. The previous bitmap is deleted.
func (h *LayerTreeHostImpl) hudResource() (quad.ResourceID, geom.Size, bool) {
	if !h.settings.ShowFPSCounter {
		return 0, geom.Size{}, false
	}
	if h.hudPainter == nil {
		p, err := hud.NewPainter(0, "")
		if err != nil {
			cc.Logger().Warn("impl: hud painter unavailable", "err", err)
			return 0, geom.Size{}, false
		}
		h.hudPainter = p
	}
	img := h.hudPainter.Paint(h.fps)
	if img == nil || img.Bounds().Empty() {
		return 0, geom.Size{}, false
	}
	h.dropHUDResource()
	size := geom.Size{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	h.hudRes = h.provider.CreateBitmap(size, img)
	h.hudSize = size
	return h.hudRes, size, true
}

func (h *LayerTreeHostImpl) dropHUDResource() {
	if h.hudRes != 0 {
		h.provider.DeleteResource(h.hudRes)
		h.hudRes = 0
	}
}

// Close releases every tree and the output surface.
func (h *LayerTreeHostImpl) Close() {
	for _, t := range []*LayerTreeImpl{h.pendingTree, h.activeTree, h.recycleTree} {
		if t != nil {
			t.BreakSwapPromises(swappromise.SwapFails)
			t.release()
		}
	}
	h.pendingTree, h.recycleTree = nil, nil
	h.dropHUDResource()
	h.tileManager.Close()
	if h.outputSurface != nil {
		_ = h.outputSurface.Close()
		h.outputSurface = nil
	}
}

// surfaceClient adapts the host to surface.Client. Output surfaces may
// call it from any goroutine, so notifications are posted to the impl
// runner.
type surfaceClient struct {
	host *LayerTreeHostImpl
}

func (c *surfaceClient) Bitmap(id quad.ResourceID) (*image.RGBA, bool) {
	return c.host.provider.Bitmap(id)
}

func (c *surfaceClient) DidSwapBuffersComplete() {
	c.post(c.host.DidSwapBuffersComplete)
}

func (c *surfaceClient) ReclaimResources(returns []quad.ReturnedResource) {
	c.post(func() { c.host.ReclaimResources(returns) })
}

func (c *surfaceClient) DidLoseOutputSurface() {
	c.post(c.host.DidLoseOutputSurface)
}

func (c *surfaceClient) post(fn func()) {
	if err := c.host.runner.PostTask(fn); err != nil {
		cc.Logger().Warn("impl: dropped output surface callback", "err", err)
	}
}
