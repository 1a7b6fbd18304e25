package layer

import (
	"errors"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/resource"
	"github.com/gogpu/cc/surface"
	"github.com/gogpu/cc/swappromise"
)

// ErrNoOutputSurface is returned by BaseClient.CreateOutputSurface.
var ErrNoOutputSurface = errors.New("layer: client provides no output surface")

// Client is the embedder of a LayerTreeHost. Methods are called on the
// main goroutine.
type Client interface {
	WillBeginMainFrame()
	BeginMainFrame(args cc.BeginFrameArgs)
	Animate(frameTime time.Time)

	// UpdateLayerTreeHost runs before layers are updated; it is the last
	// chance to change the tree for this frame.
	UpdateLayerTreeHost()

	// WillCommit and DidCommit bracket a commit. The main goroutine runs
	// no other task in between.
	WillCommit()
	DidCommit()

	DidCommitAndDrawFrame()
	DidCompleteSwapBuffers()
	DidBeginMainFrameAborted(reason cc.CommitEarlyOutReason)

	// CreateOutputSurface is called when the compositor needs a new
	// output surface, at startup and after a loss.
	CreateOutputSurface() (surface.OutputSurface, error)
	DidInitializeOutputSurface()
	DidLoseOutputSurface()
}

// BaseClient implements Client with no-ops. Embed it to implement only
// the hooks you need.
type BaseClient struct{}

func (BaseClient) WillBeginMainFrame()                              {}
func (BaseClient) BeginMainFrame(cc.BeginFrameArgs)                 {}
func (BaseClient) Animate(time.Time)                                {}
func (BaseClient) UpdateLayerTreeHost()                             {}
func (BaseClient) WillCommit()                                      {}
func (BaseClient) DidCommit()                                       {}
func (BaseClient) DidCommitAndDrawFrame()                           {}
func (BaseClient) DidCompleteSwapBuffers()                          {}
func (BaseClient) DidBeginMainFrameAborted(cc.CommitEarlyOutReason) {}
func (BaseClient) DidInitializeOutputSurface()                      {}
func (BaseClient) DidLoseOutputSurface()                            {}

// CreateOutputSurface returns ErrNoOutputSurface.
func (BaseClient) CreateOutputSurface() (surface.OutputSurface, error) {
	return nil, ErrNoOutputSurface
}

// Proxy carries requests of the main side to the compositor. It is
// implemented by package proxy.
type Proxy interface {
	SetNeedsAnimate()
	SetNeedsUpdateLayers()
	SetNeedsCommit()
	SetNeedsRedrawRect(r geom.Rect)
	SetDeferCommits(deferCommits bool)
	SetVisible(visible bool)
	CommitRequested() bool
}

// LayerTreeHost is the main side of a compositor: it owns the layer tree
// and the state committed with it. All methods must be called on the main
// goroutine unless noted.
type LayerTreeHost struct {
	settings cc.LayerTreeSettings
	client   Client
	proxy    Proxy

	root   *Layer
	layers map[int]*Layer
	hud    *HeadsUpDisplayLayer

	viewportSize      geom.Size
	deviceScaleFactor float64
	pageScale         float64
	minPageScale      float64
	maxPageScale      float64
	backgroundColor   gputypes.Color
	visible           bool
	touchHandlers     bool
	wheelHandlers     bool

	sourceFrameNumber int
	propertyTrees     *property.PropertyTrees

	swapPromises swappromise.List
	monitors     swappromise.MonitorSet
	uiResources  *resource.UIResourceManager

	outputSurfaceLost bool
}

// NewLayerTreeHost returns a visible host without a proxy. A proxy
// constructor from package proxy attaches itself with SetProxy.
func NewLayerTreeHost(client Client, settings cc.LayerTreeSettings) *LayerTreeHost {
	if client == nil {
		client = BaseClient{}
	}
	return &LayerTreeHost{
		settings:          settings,
		client:            client,
		layers:            make(map[int]*Layer),
		deviceScaleFactor: 1,
		pageScale:         1,
		minPageScale:      1,
		maxPageScale:      1,
		visible:           true,
		propertyTrees:     property.New(),
		uiResources:       resource.NewUIResourceManager(),
	}
}

// SetProxy attaches the proxy that drives the host.
func (h *LayerTreeHost) SetProxy(p Proxy) { h.proxy = p }

// Proxy returns the attached proxy, or nil.
func (h *LayerTreeHost) Proxy() Proxy { return h.proxy }

// Settings returns the settings the host was created with.
func (h *LayerTreeHost) Settings() cc.LayerTreeSettings { return h.settings }

// Client returns the embedder.
func (h *LayerTreeHost) Client() Client { return h.client }

// RootLayer returns the root layer, or nil.
func (h *LayerTreeHost) RootLayer() *Layer { return h.root }

// SetRootLayer replaces the root of the tree.
func (h *LayerTreeHost) SetRootLayer(root *Layer) {
	if h.root == root {
		return
	}
	if h.hud != nil {
		h.hud.RemoveFromParent()
	}
	if h.root != nil {
		h.root.setLayerTreeHost(nil)
	}
	h.root = root
	if root != nil {
		root.RemoveFromParent()
		root.setLayerTreeHost(h)
	}
	h.SetNeedsFullTreeSync()
}

// LayerByID returns the attached layer with the given id, or nil.
func (h *LayerTreeHost) LayerByID(id int) *Layer { return h.layers[id] }

func (h *LayerTreeHost) registerLayer(l *Layer) { h.layers[l.id] = l }

func (h *LayerTreeHost) unregisterLayer(l *Layer) { delete(h.layers, l.id) }

// SourceFrameNumber returns the number of the next commit. It increases
// by one per completed commit.
func (h *LayerTreeHost) SourceFrameNumber() int { return h.sourceFrameNumber }

// ViewportSize returns the viewport in device pixels.
func (h *LayerTreeHost) ViewportSize() geom.Size { return h.viewportSize }

// SetViewportSize sets the viewport in device pixels.
func (h *LayerTreeHost) SetViewportSize(s geom.Size) {
	if h.viewportSize == s {
		return
	}
	h.viewportSize = s
	h.SetNeedsCommit()
}

// DeviceScaleFactor returns the number of device pixels per layer unit.
func (h *LayerTreeHost) DeviceScaleFactor() float64 { return h.deviceScaleFactor }

// SetDeviceScaleFactor sets the number of device pixels per layer unit.
func (h *LayerTreeHost) SetDeviceScaleFactor(s float64) {
	if h.deviceScaleFactor == s || s <= 0 {
		return
	}
	h.deviceScaleFactor = s
	h.propertyTrees.NeedsRebuild = true
	h.SetNeedsCommit()
}

// PageScaleFactor returns the page scale and its limits.
func (h *LayerTreeHost) PageScaleFactor() (scale, minScale, maxScale float64) {
	return h.pageScale, h.minPageScale, h.maxPageScale
}

// SetPageScaleFactorAndLimits sets the page scale, clamped to its limits.
func (h *LayerTreeHost) SetPageScaleFactorAndLimits(scale, minScale, maxScale float64) {
	if minScale > maxScale {
		minScale, maxScale = maxScale, minScale
	}
	scale = min(max(scale, minScale), maxScale)
	if h.pageScale == scale && h.minPageScale == minScale && h.maxPageScale == maxScale {
		return
	}
	h.pageScale, h.minPageScale, h.maxPageScale = scale, minScale, maxScale
	h.SetNeedsCommit()
}

// BackgroundColor returns the color drawn where no layer covers the
// viewport.
func (h *LayerTreeHost) BackgroundColor() gputypes.Color { return h.backgroundColor }

// SetBackgroundColor sets the viewport background color.
func (h *LayerTreeHost) SetBackgroundColor(c gputypes.Color) {
	if h.backgroundColor == c {
		return
	}
	h.backgroundColor = c
	h.SetNeedsCommit()
}

// SetEventListenerFlags tells the compositor whether the page handles
// touch and wheel events. The flags travel with the frame metadata.
func (h *LayerTreeHost) SetEventListenerFlags(touch, wheel bool) {
	if h.touchHandlers == touch && h.wheelHandlers == wheel {
		return
	}
	h.touchHandlers, h.wheelHandlers = touch, wheel
	h.SetNeedsCommit()
}

// Visible reports whether the host is visible.
func (h *LayerTreeHost) Visible() bool { return h.visible }

// SetVisible shows or hides the compositor. A hidden compositor neither
// commits nor draws.
func (h *LayerTreeHost) SetVisible(visible bool) {
	if h.visible == visible {
		return
	}
	h.visible = visible
	if h.proxy != nil {
		h.proxy.SetVisible(visible)
	}
}

// SetNeedsAnimate asks for a main frame to run animations. It does not
// by itself cause a commit.
func (h *LayerTreeHost) SetNeedsAnimate() {
	if h.proxy != nil {
		h.proxy.SetNeedsAnimate()
	}
}

// SetNeedsUpdateLayers asks for a main frame that updates layer content.
// A commit follows only if the update produced something.
func (h *LayerTreeHost) SetNeedsUpdateLayers() {
	if h.proxy != nil {
		h.proxy.SetNeedsUpdateLayers()
	}
}

// SetNeedsCommit asks for a main frame followed by a commit. Calls before
// the frame starts are coalesced into one commit.
func (h *LayerTreeHost) SetNeedsCommit() {
	h.monitors.NotifySetNeedsCommit()
	if h.proxy != nil {
		h.proxy.SetNeedsCommit()
	}
}

// SetNeedsFullTreeSync asks for a commit that rebuilds the property trees
// after a structural change of the layer tree.
func (h *LayerTreeHost) SetNeedsFullTreeSync() {
	h.propertyTrees.NeedsRebuild = true
	h.SetNeedsCommit()
}

// CommitRequested reports whether a commit is pending.
func (h *LayerTreeHost) CommitRequested() bool {
	return h.proxy != nil && h.proxy.CommitRequested()
}

// SetNeedsRedraw asks for the whole viewport to be drawn again without a
// commit.
func (h *LayerTreeHost) SetNeedsRedraw() {
	h.SetNeedsRedrawRect(geom.RectFromSize(h.viewportSize))
}

// SetNeedsRedrawRect asks for r, in device pixels, to be drawn again
// without a commit.
func (h *LayerTreeHost) SetNeedsRedrawRect(r geom.Rect) {
	if h.proxy != nil {
		h.proxy.SetNeedsRedrawRect(r)
	}
}

// SetDeferCommits holds main frames while defer is set. Impl frames keep
// drawing. A main frame requested meanwhile runs once commits resume.
func (h *LayerTreeHost) SetDeferCommits(deferCommits bool) {
	if h.proxy != nil {
		h.proxy.SetDeferCommits(deferCommits)
	}
}

// QueueSwapPromise attaches p to the next commit.
func (h *LayerTreeHost) QueueSwapPromise(p swappromise.SwapPromise) {
	h.swapPromises.Queue(p)
}

// SwapPromiseCount returns the number of promises waiting for a commit.
func (h *LayerTreeHost) SwapPromiseCount() int { return h.swapPromises.Len() }

// BreakSwapPromises ends every queued promise with reason.
func (h *LayerTreeHost) BreakSwapPromises(reason swappromise.DidNotSwapReason) {
	h.swapPromises.Break(reason)
}

// AddSwapPromiseMonitor registers m. It is safe to call from any
// goroutine.
func (h *LayerTreeHost) AddSwapPromiseMonitor(m swappromise.Monitor) { h.monitors.Add(m) }

// RemoveSwapPromiseMonitor unregisters m.
func (h *LayerTreeHost) RemoveSwapPromiseMonitor(m swappromise.Monitor) { h.monitors.Remove(m) }

// SwapPromiseMonitors returns the monitor set, shared with the proxy.
func (h *LayerTreeHost) SwapPromiseMonitors() *swappromise.MonitorSet { return &h.monitors }

// CreateUIResource registers a UI resource whose bitmap reaches the
// compositor with the next commit.
func (h *LayerTreeHost) CreateUIResource(client resource.UIResourceClient) resource.UIResourceID {
	id := h.uiResources.Create(client)
	h.SetNeedsCommit()
	return id
}

// DeleteUIResource releases a UI resource with the next commit.
func (h *LayerTreeHost) DeleteUIResource(id resource.UIResourceID) {
	h.uiResources.Delete(id)
	h.SetNeedsCommit()
}

// UIResourceCount returns the number of live UI resources.
func (h *LayerTreeHost) UIResourceCount() int { return h.uiResources.Len() }

// LayerNeedsPushPropertiesForTesting reports whether l will push with the
// next commit.
func (h *LayerTreeHost) LayerNeedsPushPropertiesForTesting(l *Layer) bool {
	return l.NeedsPushProperties()
}

// PropertyTrees returns the trees built by the last update.
func (h *LayerTreeHost) PropertyTrees() *property.PropertyTrees { return h.propertyTrees }

// HeadsUpDisplayLayer returns the HUD layer, or nil when the FPS counter
// is off.
func (h *LayerTreeHost) HeadsUpDisplayLayer() *HeadsUpDisplayLayer { return h.hud }

// WillBeginMainFrame starts a main frame. Called by the proxy.
func (h *LayerTreeHost) WillBeginMainFrame() {
	h.client.WillBeginMainFrame()
}

// BeginMainFrame runs the embedder's frame and animation hooks. Called by
// the proxy.
func (h *LayerTreeHost) BeginMainFrame(args cc.BeginFrameArgs) {
	h.client.BeginMainFrame(args)
	h.client.Animate(args.FrameTime)
}

// UpdateLayers paints invalidated layers and rebuilds the property trees.
// It reports whether any layer produced new content. Called by the proxy.
func (h *LayerTreeHost) UpdateLayers() bool {
	h.client.UpdateLayerTreeHost()
	h.updateHUDLayer()
	if h.root == nil {
		return false
	}
	updated := false
	var update func(l *Layer)
	update = func(l *Layer) {
		if l.update() {
			updated = true
		}
		l.forEachOwned(update)
	}
	update(h.root)

	if h.propertyTrees.NeedsRebuild || h.root.parentShouldKnowNeedsPush() {
		buildPropertyTrees(h.root, h.propertyTrees, h.deviceScaleFactor, h.sourceFrameNumber)
	}
	cc.Logger().Debug("layer: update layers", "frame", h.sourceFrameNumber, "updated", updated)
	return updated
}

func (h *LayerTreeHost) updateHUDLayer() {
	if !h.settings.ShowFPSCounter || h.root == nil {
		if h.hud != nil {
			h.hud.RemoveFromParent()
			h.hud = nil
		}
		return
	}
	if h.hud == nil {
		h.hud = NewHeadsUpDisplayLayer()
		h.hud.SetDebugName("hud")
	}
	if h.hud.parent != h.root || h.root.children[len(h.root.children)-1] != h.hud.Layer {
		h.root.AddChild(h.hud.Layer)
	}
	h.hud.SetBounds(geom.Size{
		Width:  int(float64(h.viewportSize.Width) / h.deviceScaleFactor),
		Height: int(float64(h.viewportSize.Height) / h.deviceScaleFactor),
	})
}

// WillCommit runs the embedder's pre-commit hook. Called by the proxy.
func (h *LayerTreeHost) WillCommit() {
	h.client.WillCommit()
}

// FinishCommitOnImplThread copies the tree into the impl side. It runs on
// the impl goroutine while the main goroutine is blocked in the commit.
func (h *LayerTreeHost) FinishCommitOnImplThread(hi *impl.LayerTreeHostImpl) {
	t := hi.BeginCommit()
	synchronizeTrees(h.root, t, hi)
	t.SetPropertyTrees(h.propertyTrees.Clone())
	pushProperties(h.root, t)

	t.SetViewportSize(h.viewportSize)
	t.SetDeviceScaleFactor(h.deviceScaleFactor)
	t.SetPageScaleFactorAndLimits(h.pageScale, h.minPageScale, h.maxPageScale)
	t.SetBackgroundColor(h.backgroundColor)
	t.SetEventListenerFlags(h.touchHandlers, h.wheelHandlers)
	t.SetSourceFrameNumber(h.sourceFrameNumber)

	if h.uiResources.HasRequests() {
		hi.ApplyUIResourceRequests(h.uiResources.TakeRequests())
	}
	t.QueueSwapPromises(&h.swapPromises)
	h.propertyTrees.FullTreeDamaged = false
	cc.Logger().Debug("layer: commit", "frame", h.sourceFrameNumber, "tree", t.Kind(), "layers", t.NumLayers())
}

// CommitComplete ends a commit on the main side. Called by the proxy.
func (h *LayerTreeHost) CommitComplete() {
	h.sourceFrameNumber++
	h.client.DidCommit()
}

// BeginMainFrameAborted ends a main frame that did not commit. Queued
// swap promises fail with CommitNoUpdate when nothing changed and with
// CommitFails otherwise. Called by the proxy.
func (h *LayerTreeHost) BeginMainFrameAborted(reason cc.CommitEarlyOutReason) {
	if reason.Aborted() {
		h.swapPromises.Break(swappromise.CommitFails)
	} else {
		h.swapPromises.Break(swappromise.CommitNoUpdate)
	}
	cc.Logger().Debug("layer: main frame aborted", "reason", reason, "frame", h.sourceFrameNumber)
	h.client.DidBeginMainFrameAborted(reason)
}

// DidCommitAndDrawFrame is called by the proxy once a committed frame was
// drawn.
func (h *LayerTreeHost) DidCommitAndDrawFrame() { h.client.DidCommitAndDrawFrame() }

// DidCompleteSwapBuffers is called by the proxy when a swap was
// acknowledged.
func (h *LayerTreeHost) DidCompleteSwapBuffers() { h.client.DidCompleteSwapBuffers() }

// RequestNewOutputSurface asks the embedder for an output surface. Called
// by the proxy.
func (h *LayerTreeHost) RequestNewOutputSurface() (surface.OutputSurface, error) {
	return h.client.CreateOutputSurface()
}

// DidInitializeOutputSurface is called by the proxy once a new output
// surface is bound. After a loss, UI resources are uploaded again.
func (h *LayerTreeHost) DidInitializeOutputSurface() {
	if h.outputSurfaceLost {
		h.outputSurfaceLost = false
		h.uiResources.RecreateAll()
		if h.uiResources.HasRequests() {
			h.SetNeedsCommit()
		}
	}
	h.client.DidInitializeOutputSurface()
}

// OutputSurfaceLost reports whether the output surface was lost and no
// new one is bound yet.
func (h *LayerTreeHost) OutputSurfaceLost() bool { return h.outputSurfaceLost }

// DidLoseOutputSurface is called by the proxy when the output surface was
// lost.
func (h *LayerTreeHost) DidLoseOutputSurface() {
	cc.Logger().Warn("layer: output surface lost")
	h.outputSurfaceLost = true
	h.client.DidLoseOutputSurface()
}
