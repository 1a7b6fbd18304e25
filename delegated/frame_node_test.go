package delegated_test

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cc/delegated"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/scenegraph"
	"github.com/gogpu/cc/scenegraph/memory"
	"github.com/gogpu/cc/surface"
)

var (
	red   = gputypes.Color{R: 1, A: 1}
	green = gputypes.Color{G: 1, A: 1}
)

func rect(x, y, w, h int) geom.Rect {
	return geom.Rect{X: x, Y: y, Width: w, Height: h}
}

func rootPass(w, h int) *quad.RenderPass {
	r := rect(0, 0, w, h)
	return quad.NewRenderPass(quad.RenderPassID{LayerID: 1}, r, r, geom.Identity())
}

func frameOf(passes ...*quad.RenderPass) *quad.CompositorFrame {
	return &quad.CompositorFrame{
		Metadata:       quad.CompositorFrameMetadata{DeviceScaleFactor: 1},
		RenderPassList: passes,
	}
}

func appendQuad(pass *quad.RenderPass, r geom.Rect, p quad.Payload) {
	pass.AppendQuad(&quad.DrawQuad{Rect: r, VisibleRect: r, Payload: p})
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

type fixture struct {
	ctx       *memory.Context
	mailboxes *memory.MailboxManager
	node      *delegated.FrameNode
}

func newFixture(opts ...delegated.Option) *fixture {
	f := &fixture{ctx: memory.NewContext(), mailboxes: memory.NewMailboxManager()}
	f.node = delegated.NewFrameNode(f.ctx, f.mailboxes, opts...)
	return f
}

// produce shares a w x h texture of color c and returns it as a
// transferable resource with the given id.
func (f *fixture) produce(id quad.ResourceID, w, h int, c color.RGBA) quad.TransferableResource {
	mb, tok := f.mailboxes.ProduceTexture(solidImage(w, h, c))
	return quad.TransferableResource{
		ID:        id,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Size:      geom.Size{Width: w, Height: h},
		Mailbox:   mb,
		SyncToken: tok,
	}
}

func textureQuad(pass *quad.RenderPass, r geom.Rect, id quad.ResourceID) {
	appendQuad(pass, r, &quad.Texture{
		Resource:           id,
		PremultipliedAlpha: true,
		UVBottomRight:      geom.Point{X: 1, Y: 1},
	})
}

func nodeTypes(root scenegraph.Node) []scenegraph.NodeType {
	var types []scenegraph.NodeType
	scenegraph.Walk(root, func(n scenegraph.Node, _ int) bool {
		types = append(types, n.Type())
		return true
	})
	return types
}

func TestEachMaterialMapsToOneNodeType(t *testing.T) {
	f := newFixture()
	pass := rootPass(100, 100)
	pass.CreateAndAppendSharedQuadState()
	tex := f.produce(1, 4, 4, color.RGBA{G: 0xff, A: 0xff})
	tile := f.produce(2, 8, 8, color.RGBA{B: 0xff, A: 0xff})
	y := f.produce(3, 4, 4, color.RGBA{R: 0x80, A: 0xff})
	u := f.produce(4, 2, 2, color.RGBA{R: 0x80, A: 0xff})
	v := f.produce(5, 2, 2, color.RGBA{R: 0x80, A: 0xff})
	stream := f.produce(6, 4, 4, color.RGBA{R: 0xff, A: 0xff})

	appendQuad(pass, rect(0, 0, 10, 10), &quad.SolidColor{Color: red})
	textureQuad(pass, rect(10, 0, 10, 10), tex.ID)
	appendQuad(pass, rect(20, 0, 10, 10), &quad.Tile{
		Resource:     tile.ID,
		TexCoordRect: geom.RectF{Width: 8, Height: 8},
		TextureSize:  geom.Size{Width: 8, Height: 8},
	})
	appendQuad(pass, rect(30, 0, 10, 10), &quad.YUVVideo{Y: y.ID, U: u.ID, V: v.ID})
	appendQuad(pass, rect(40, 0, 10, 10), &quad.StreamVideo{Resource: stream.ID, TextureMatrix: geom.Identity()})
	appendQuad(pass, rect(50, 0, 10, 10), &quad.DebugBorder{Color: green, Width: 2})
	appendQuad(pass, rect(60, 0, 10, 10), &quad.Checkerboard{Color: green, Scale: 1})

	frame := frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{tex, tile, y, u, v, stream}
	returns := f.node.Commit(frame, 1)
	assert.Empty(t, returns)

	root := f.node.Root()
	assert.Equal(t, 3, scenegraph.Count(root, scenegraph.TypeRectangle))
	assert.Equal(t, 2, scenegraph.Count(root, scenegraph.TypeTexture))
	assert.Equal(t, 2, scenegraph.Count(root, scenegraph.TypeVideo))
	assert.Equal(t, 0, scenegraph.Count(root, scenegraph.TypeRenderTarget))

	stats := f.node.Stats()
	assert.Equal(t, 7, stats.Quads)
	assert.Zero(t, stats.SkippedQuads)
	assert.Zero(t, stats.MissingTextures)
	assert.Equal(t, 6, stats.Fetches)

	var videos []*memory.VideoNode
	scenegraph.Walk(root, func(n scenegraph.Node, _ int) bool {
		if v, ok := n.(*memory.VideoNode); ok {
			videos = append(videos, v)
		}
		return true
	})
	require.Len(t, videos, 2)
	for _, v := range videos {
		assert.NotEmpty(t, v.Shader(), "video nodes carry their program")
	}
}

func TestQuadsAreBuiltBackToFront(t *testing.T) {
	f := newFixture()
	pass := rootPass(20, 20)
	pass.CreateAndAppendSharedQuadState()
	appendQuad(pass, rect(0, 0, 10, 10), &quad.SolidColor{Color: red})
	appendQuad(pass, rect(0, 0, 20, 20), &quad.SolidColor{Color: green})
	f.node.Commit(frameOf(pass), 1)

	var colors []gputypes.Color
	scenegraph.Walk(f.node.Root(), func(n scenegraph.Node, _ int) bool {
		if r, ok := n.(scenegraph.RectangleNode); ok {
			colors = append(colors, r.Color())
		}
		return true
	})
	assert.Equal(t, []gputypes.Color{green, red}, colors, "the first quad is drawn last")

	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	f.node.Draw(func(root scenegraph.Node) { memory.NewRenderer().Draw(root, dst) })
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, dst.RGBAAt(5, 5))
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, dst.RGBAAt(15, 15))
}

func TestSharedStateChain(t *testing.T) {
	f := newFixture()
	pass := rootPass(50, 50)
	sqs := pass.CreateAndAppendSharedQuadState()
	sqs.QuadToTargetTransform = geom.Translation(10, 10)
	sqs.ClipRect = rect(0, 0, 15, 15)
	sqs.IsClipped = true
	sqs.Opacity = 0.5
	appendQuad(pass, rect(0, 0, 20, 20), &quad.SolidColor{Color: red})
	f.node.Commit(frameOf(pass), 2)

	assert.Equal(t, []scenegraph.NodeType{
		scenegraph.TypeTransform,
		scenegraph.TypeClip,
		scenegraph.TypeTransform,
		scenegraph.TypeOpacity,
		scenegraph.TypeRectangle,
	}, nodeTypes(f.node.Root()))
	assert.Equal(t, geom.Scaling(0.5, 0.5), f.node.Root().Matrix())

	dst := image.NewRGBA(image.Rect(0, 0, 50, 50))
	f.node.Draw(func(root scenegraph.Node) { memory.NewRenderer().Draw(root, dst) })
	assert.Equal(t, uint8(0x80), dst.RGBAAt(6, 6).A, "half opacity inside the clip")
	assert.Zero(t, dst.RGBAAt(9, 9).A, "clipped away")
	assert.Zero(t, dst.RGBAAt(2, 2).A, "outside the translated quad")
}

func TestMailboxImportCountsAndReturns(t *testing.T) {
	f := newFixture()
	var returned [][]quad.ReturnedResource
	f.node.SetReturnedResourcesHandler(func(r []quad.ReturnedResource) {
		returned = append(returned, r)
	})
	a := f.produce(1, 4, 4, color.RGBA{R: 0xff, A: 0xff})
	b := f.produce(2, 4, 4, color.RGBA{G: 0xff, A: 0xff})

	pass := rootPass(20, 20)
	pass.CreateAndAppendSharedQuadState()
	textureQuad(pass, rect(0, 0, 10, 10), a.ID)
	textureQuad(pass, rect(10, 0, 10, 10), b.ID)
	frame := frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{a, b}
	require.NoError(t, f.node.SubmitFrame(frame))
	assert.Empty(t, returned)
	assert.Equal(t, 2, f.mailboxes.FetchCount())

	// a is transferred again; only a stays referenced.
	pass = rootPass(20, 20)
	pass.CreateAndAppendSharedQuadState()
	textureQuad(pass, rect(0, 0, 10, 10), a.ID)
	frame = frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{a}
	require.NoError(t, f.node.SubmitFrame(frame))
	require.Len(t, returned, 1)
	assert.Equal(t, []quad.ReturnedResource{{ID: b.ID, SyncToken: b.SyncToken, Count: 1}}, returned[0])
	assert.Equal(t, 2, f.node.ImportCount(a.ID))
	assert.Equal(t, 2, f.mailboxes.FetchCount(), "a known mailbox is not fetched again")

	pass = rootPass(20, 20)
	pass.CreateAndAppendSharedQuadState()
	appendQuad(pass, rect(0, 0, 10, 10), &quad.SolidColor{Color: red})
	require.NoError(t, f.node.SubmitFrame(frameOf(pass)))
	require.Len(t, returned, 2)
	assert.Equal(t, []quad.ReturnedResource{{ID: a.ID, SyncToken: a.SyncToken, Count: 2}}, returned[1])
	assert.Zero(t, f.node.HeldResources())
}

func TestMissingMailboxLeavesTextureEmpty(t *testing.T) {
	f := newFixture()
	res := f.produce(1, 4, 4, color.RGBA{R: 0xff, A: 0xff})
	f.mailboxes.Delete(res.Mailbox)

	pass := rootPass(10, 10)
	pass.CreateAndAppendSharedQuadState()
	textureQuad(pass, rect(0, 0, 10, 10), res.ID)
	textureQuad(pass, rect(0, 0, 10, 10), 99)
	frame := frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{res}
	f.node.Commit(frame, 1)

	var textures []scenegraph.TextureNode
	scenegraph.Walk(f.node.Root(), func(n scenegraph.Node, _ int) bool {
		if tn, ok := n.(scenegraph.TextureNode); ok {
			textures = append(textures, tn)
		}
		return true
	})
	require.Len(t, textures, 2)
	for _, tn := range textures {
		assert.Nil(t, tn.Texture())
	}
	assert.Equal(t, 2, f.node.Stats().MissingTextures)
	assert.Zero(t, scenegraph.Count(f.node.Root(), scenegraph.TypeFence), "nothing to wait for")

	r := memory.NewRenderer()
	f.node.Draw(func(root scenegraph.Node) { r.Draw(root, image.NewRGBA(image.Rect(0, 0, 10, 10))) })
	assert.Equal(t, 2, r.Stats().EmptyTextures)
}

func TestFenceBeforeFirstTextureUse(t *testing.T) {
	f := newFixture()
	res := f.produce(1, 4, 4, color.RGBA{G: 0xff, A: 0xff})
	pass := rootPass(20, 20)
	pass.CreateAndAppendSharedQuadState()
	textureQuad(pass, rect(0, 0, 10, 10), res.ID)
	textureQuad(pass, rect(10, 10, 10, 10), res.ID)
	frame := frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{res}
	f.node.Commit(frame, 1)

	types := nodeTypes(f.node.Root())
	fence := -1
	var textures []int
	for i, typ := range types {
		switch typ {
		case scenegraph.TypeFence:
			require.Equal(t, -1, fence, "one fence per resource and frame")
			fence = i
		case scenegraph.TypeTexture:
			textures = append(textures, i)
		}
	}
	require.NotEqual(t, -1, fence)
	require.Len(t, textures, 2)
	assert.Less(t, fence, textures[0])

	var waited []quad.SyncToken
	r := memory.NewRenderer()
	r.WaitSyncToken = func(tok quad.SyncToken) { waited = append(waited, tok) }
	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	f.node.Draw(func(root scenegraph.Node) { r.Draw(root, dst) })
	assert.Equal(t, []quad.SyncToken{res.SyncToken}, waited)
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, dst.RGBAAt(15, 15))
}

func TestRenderTargetsAreReusedByPassID(t *testing.T) {
	f := newFixture()
	child := quad.RenderPassID{LayerID: 7}
	build := func(size int, withChild bool) *quad.CompositorFrame {
		var passes []*quad.RenderPass
		root := rootPass(40, 40)
		root.CreateAndAppendSharedQuadState()
		if withChild {
			cr := rect(0, 0, size, size)
			cp := quad.NewRenderPass(child, cr, cr, geom.Identity())
			cp.CreateAndAppendSharedQuadState()
			appendQuad(cp, cr, &quad.SolidColor{Color: red})
			passes = append(passes, cp)
			appendQuad(root, cr, &quad.RenderPassRef{PassID: child})
		}
		appendQuad(root, rect(0, 0, 40, 40), &quad.SolidColor{Color: green})
		return frameOf(append(passes, root)...)
	}

	f.node.Commit(build(10, true), 1)
	assert.Equal(t, 1, f.ctx.LiveRenderTargets())
	assert.Equal(t, 1, f.node.Stats().TargetsCreated)
	assert.Equal(t, 1, scenegraph.Count(f.node.Root(), scenegraph.TypeRenderTarget))

	f.node.Commit(build(10, true), 1)
	assert.Equal(t, 1, f.ctx.AllocatedRenderTargets())
	assert.Equal(t, 1, f.node.Stats().TargetsReused)

	dst := image.NewRGBA(image.Rect(0, 0, 40, 40))
	r := memory.NewRenderer()
	f.node.Draw(func(root scenegraph.Node) { r.Draw(root, dst) })
	assert.Equal(t, 1, r.Stats().Targets)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, dst.RGBAAt(5, 5))
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, dst.RGBAAt(20, 20))

	f.node.Commit(build(20, true), 1)
	assert.Equal(t, 2, f.ctx.AllocatedRenderTargets(), "a resized pass gets a new target")
	assert.Equal(t, 1, f.ctx.LiveRenderTargets())

	f.node.Commit(build(20, false), 1)
	assert.Zero(t, f.ctx.LiveRenderTargets())
}

func TestQuadsThatCannotBeBuiltAreSkipped(t *testing.T) {
	f := newFixture()
	pass := rootPass(20, 20)
	pass.CreateAndAppendSharedQuadState()
	appendQuad(pass, rect(0, 0, 10, 10), &quad.RenderPassRef{PassID: quad.RenderPassID{LayerID: 42}})
	pass.AppendQuad(&quad.DrawQuad{Rect: rect(0, 0, 5, 5)})
	appendQuad(pass, rect(0, 0, 20, 20), &quad.SolidColor{Color: green})
	f.node.Commit(frameOf(pass), 1)

	assert.Equal(t, 2, f.node.Stats().SkippedQuads)
	assert.Zero(t, scenegraph.Count(f.node.Root(), scenegraph.TypeRenderTarget))
	assert.Equal(t, 1, scenegraph.Count(f.node.Root(), scenegraph.TypeRectangle))
}

func TestFetchesRunOnTheGPURunner(t *testing.T) {
	gpu := taskrunner.New("gpu")
	defer gpu.Stop()

	mailboxes := memory.NewMailboxManager()
	var mu sync.Mutex
	onGPU := 0
	fetcher := delegated.TextureFetcherFunc(func(r quad.TransferableResource) (gpucontext.Texture, error) {
		mu.Lock()
		if gpu.BelongsToCurrentThread() {
			onGPU++
		}
		mu.Unlock()
		return mailboxes.FetchTexture(r)
	})
	node := delegated.NewFrameNode(memory.NewContext(), fetcher, delegated.WithGPURunner(gpu))

	var resources []quad.TransferableResource
	pass := rootPass(30, 10)
	pass.CreateAndAppendSharedQuadState()
	for i := range 3 {
		mb, tok := mailboxes.ProduceTexture(solidImage(2, 2, color.RGBA{B: 0xff, A: 0xff}))
		res := quad.TransferableResource{ID: quad.ResourceID(i + 1), Mailbox: mb, SyncToken: tok}
		resources = append(resources, res)
		textureQuad(pass, rect(i*10, 0, 10, 10), res.ID)
	}
	frame := frameOf(pass)
	frame.ResourceList = resources
	node.Commit(frame, 1)

	mu.Lock()
	assert.Equal(t, 3, onGPU)
	mu.Unlock()
	scenegraph.Walk(node.Root(), func(n scenegraph.Node, _ int) bool {
		if tn, ok := n.(scenegraph.TextureNode); ok {
			assert.NotNil(t, tn.Texture(), "textures are resolved before Commit returns")
		}
		return true
	})
}

func TestFetchFailureIsNotFatal(t *testing.T) {
	fetcher := delegated.TextureFetcherFunc(func(quad.TransferableResource) (gpucontext.Texture, error) {
		return nil, errors.New("context lost")
	})
	node := delegated.NewFrameNode(memory.NewContext(), fetcher)
	pass := rootPass(10, 10)
	pass.CreateAndAppendSharedQuadState()
	textureQuad(pass, rect(0, 0, 10, 10), 1)
	frame := frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{{ID: 1, Mailbox: quad.Mailbox{Name: "gone"}}}
	assert.Empty(t, node.Commit(frame, 1))
	assert.Equal(t, 1, node.Stats().MissingTextures)
}

func TestCloseReturnsEverything(t *testing.T) {
	f := newFixture()
	var returned []quad.ReturnedResource
	f.node.SetReturnedResourcesHandler(func(r []quad.ReturnedResource) { returned = append(returned, r...) })
	res := f.produce(1, 2, 2, color.RGBA{A: 0xff})
	pass := rootPass(10, 10)
	pass.CreateAndAppendSharedQuadState()
	textureQuad(pass, rect(0, 0, 10, 10), res.ID)
	frame := frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{res}
	f.node.Commit(frame, 1)

	f.node.Close()
	assert.Equal(t, []quad.ReturnedResource{{ID: 1, SyncToken: res.SyncToken, Count: 1}}, returned)
	assert.Zero(t, f.node.Root().ChildCount())

	later := f.node.Commit(frame, 1)
	assert.Equal(t, quad.ReturnAll(frame.ResourceList, false), later)
}

type surfaceClient struct {
	swaps     int
	reclaimed []quad.ReturnedResource
}

func (c *surfaceClient) Bitmap(quad.ResourceID) (*image.RGBA, bool) { return nil, false }
func (c *surfaceClient) DidSwapBuffersComplete()                    { c.swaps++ }
func (c *surfaceClient) DidLoseOutputSurface()                      {}
func (c *surfaceClient) ReclaimResources(r []quad.ReturnedResource) {
	c.reclaimed = append(c.reclaimed, r...)
}

func TestDelegatingOutputSurfaceFeedsFrameNode(t *testing.T) {
	f := newFixture()
	out := surface.NewDelegatingOutputSurface(f.node)
	client := &surfaceClient{}
	require.NoError(t, out.BindToClient(client))
	defer out.Close()

	res := f.produce(3, 2, 2, color.RGBA{R: 0xff, A: 0xff})
	pass := rootPass(10, 10)
	pass.CreateAndAppendSharedQuadState()
	textureQuad(pass, rect(0, 0, 10, 10), res.ID)
	frame := frameOf(pass)
	frame.ResourceList = []quad.TransferableResource{res}
	require.NoError(t, out.SwapBuffers(frame))

	empty := rootPass(10, 10)
	empty.CreateAndAppendSharedQuadState()
	appendQuad(empty, rect(0, 0, 10, 10), &quad.SolidColor{Color: red})
	require.NoError(t, out.SwapBuffers(frameOf(empty)))

	assert.Equal(t, 2, client.swaps)
	assert.Equal(t, []quad.ReturnedResource{{ID: 3, SyncToken: res.SyncToken, Count: 1}}, client.reclaimed)
}

func TestVideoProgramsCompile(t *testing.T) {
	for _, m := range []quad.Material{quad.MaterialYUVVideo, quad.MaterialStreamVideo} {
		t.Run(m.String(), func(t *testing.T) {
			spirv, err := delegated.Program(m)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(spirv), 20)
			assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(spirv), "SPIR-V magic")

			again, err := delegated.Program(m)
			require.NoError(t, err)
			assert.Equal(t, spirv, again)
		})
	}

	_, err := delegated.Program(quad.MaterialSolidColor)
	assert.ErrorIs(t, err, delegated.ErrNoProgram)
}
