package resource

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

type releaseLog struct {
	calls int
	token quad.SyncToken
	lost  bool
}

func (r *releaseLog) callback() *ReleaseCallback {
	return NewReleaseCallback(func(token quad.SyncToken, lost bool) {
		r.calls++
		r.token = token
		r.lost = lost
	})
}

func TestExportOnlyNewResources(t *testing.T) {
	p := NewProvider()
	a := p.CreateBitmap(geom.Size{Width: 4, Height: 4}, nil)
	b := p.CreateBitmap(geom.Size{Width: 2, Height: 2}, nil)

	sent := p.PrepareSendToParent([]quad.ResourceID{a, b})
	require.Len(t, sent, 2)
	assert.True(t, sent[0].IsSoftware)

	// Second frame references a again: counted, not resent.
	sent = p.PrepareSendToParent([]quad.ResourceID{a})
	assert.Empty(t, sent)
	assert.Equal(t, 2, p.ExportCount(a))

	p.ReceiveReturnsFromParent([]quad.ReturnedResource{{ID: a, Count: 2}})
	assert.Equal(t, 0, p.ExportCount(a))
	assert.Len(t, p.PrepareSendToParent([]quad.ResourceID{a}), 1)
}

func TestDeleteDeferredWhileExported(t *testing.T) {
	p := NewProvider()
	var log releaseLog
	id := p.CreateFromTextureMailbox(TextureMailbox{Mailbox: quad.Mailbox{Name: "m"}, Size: geom.Size{Width: 8, Height: 8}}, log.callback())

	p.PrepareSendToParent([]quad.ResourceID{id})
	p.DeleteResource(id)
	assert.Equal(t, 0, log.calls, "still held by the parent")
	assert.True(t, p.InUseByConsumer(id))

	token := quad.SyncToken{Release: 42}
	p.ReceiveReturnsFromParent([]quad.ReturnedResource{{ID: id, SyncToken: token, Count: 1}})
	assert.Equal(t, 1, log.calls)
	assert.Equal(t, token, log.token)
	assert.False(t, log.lost)
	assert.Equal(t, 0, p.Len())
}

func TestDeleteDeferredWhileLocked(t *testing.T) {
	p := NewProvider()
	var log releaseLog
	id := p.CreateFromTextureMailbox(TextureMailbox{Mailbox: quad.Mailbox{Name: "m"}}, log.callback())
	require.NoError(t, p.LockForRead(id))
	p.DeleteResource(id)
	assert.Equal(t, 1, p.Len())
	p.UnlockForRead(id)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 1, log.calls)
}

func TestLostOutputSurfaceReleasesAsLost(t *testing.T) {
	p := NewProvider()
	var log releaseLog
	id := p.CreateFromTextureMailbox(TextureMailbox{Mailbox: quad.Mailbox{Name: "m"}}, log.callback())
	p.PrepareSendToParent([]quad.ResourceID{id})
	p.DeleteResource(id)

	p.DidLoseOutputSurface()
	assert.Equal(t, 1, log.calls)
	assert.True(t, log.lost)
}

func TestSetPixels(t *testing.T) {
	p := NewProvider()
	id := p.CreateBitmap(geom.Size{Width: 1, Height: 1}, nil)
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	require.NoError(t, p.SetPixels(id, img))
	info, ok := p.Info(id)
	require.True(t, ok)
	assert.Equal(t, geom.Size{Width: 3, Height: 2}, info.Size)

	got, ok := p.Bitmap(id)
	require.True(t, ok)
	assert.Same(t, img, got)

	require.NoError(t, p.LockForRead(id))
	assert.ErrorIs(t, p.SetPixels(id, img), ErrResourceLocked)
	assert.ErrorIs(t, p.SetPixels(99, img), ErrUnknownResource)
}

func TestReleaseCallbackOnce(t *testing.T) {
	var log releaseLog
	cb := log.callback()
	cb.Run(quad.SyncToken{Release: 1}, false)
	cb.Run(quad.SyncToken{Release: 2}, true)
	assert.Equal(t, 1, log.calls)
	assert.False(t, log.lost)

	var nilCB *ReleaseCallback
	assert.NotPanics(t, func() { nilCB.Run(quad.SyncToken{}, false) })
}

type solidClient struct {
	lostCalls int
}

func (c *solidClient) UIResourceBitmap(_ UIResourceID, lost bool) UIResourceBitmap {
	if lost {
		c.lostCalls++
	}
	return UIResourceBitmap{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), Opaque: true}
}

func TestUIResourceLifecycle(t *testing.T) {
	mgr := NewUIResourceManager()
	provider := NewProvider()
	table := NewUIResourceTable(provider)
	client := &solidClient{}

	id := mgr.Create(client)
	assert.True(t, mgr.HasRequests())
	table.Apply(mgr.TakeRequests())
	assert.False(t, mgr.HasRequests())

	rid, ok := table.ResourceID(id)
	require.True(t, ok)
	info, ok := provider.Info(rid)
	require.True(t, ok)
	assert.Equal(t, geom.Size{Width: 4, Height: 4}, info.Size)

	// Output surface lost: impl evicts, producer recreates.
	table.EvictAll()
	assert.Equal(t, 0, table.Len())
	mgr.RecreateAll()
	table.Apply(mgr.TakeRequests())
	assert.Equal(t, 1, client.lostCalls)
	_, ok = table.ResourceID(id)
	assert.True(t, ok)

	mgr.Delete(id)
	mgr.Delete(id)
	reqs := mgr.TakeRequests()
	require.Len(t, reqs, 1)
	table.Apply(reqs)
	_, ok = table.ResourceID(id)
	assert.False(t, ok)
	assert.Equal(t, 0, mgr.Len())
	assert.Equal(t, 0, provider.Len())
}
