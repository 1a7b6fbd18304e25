package layer

import (
	"github.com/gogpu/cc/impl"
)

// synchronizeTrees makes the structure of t mirror the tree under root.
// Impl layers are matched by id; the ones no longer reachable from root
// are released.
func synchronizeTrees(root *Layer, t *impl.LayerTreeImpl, hi *impl.LayerTreeHostImpl) {
	t.BeginSync()
	var rootImpl *impl.LayerImpl
	if root != nil {
		rootImpl = synchronizeLayer(root, t, hi)
	}
	t.SetRoot(rootImpl)
	t.FinishSync()
}

func synchronizeLayer(l *Layer, t *impl.LayerTreeImpl, hi *impl.LayerTreeHostImpl) *impl.LayerImpl {
	li := t.GetOrCreateLayer(l.id, l.newContentFunc(hi))
	var children []*impl.LayerImpl
	if len(l.children) > 0 {
		children = make([]*impl.LayerImpl, 0, len(l.children))
		for _, c := range l.children {
			children = append(children, synchronizeLayer(c, t, hi))
		}
	}
	li.SetChildren(children)

	var mask, replica *impl.LayerImpl
	if l.mask != nil {
		mask = synchronizeLayer(l.mask, t, hi)
	}
	if l.replica != nil {
		replica = synchronizeLayer(l.replica, t, hi)
	}
	li.SetMaskLayer(mask)
	li.SetReplicaLayer(replica)
	li.SetPropertyTreeIndices(l.transformIndex, l.effectIndex, l.clipIndex, l.scrollIndex)
	return li
}

// pushProperties copies the properties of the layers that need a push
// into t and clears their needs-push state. Subtrees without pending
// pushes are skipped. When the synchronization created layers every
// layer is pushed.
func pushProperties(root *Layer, t *impl.LayerTreeImpl) {
	if root == nil {
		return
	}
	pushLayer(root, t, t.CreatedLayers())
}

func pushLayer(l *Layer, t *impl.LayerTreeImpl, all bool) {
	if all || l.needsPush {
		if li := t.LayerByID(l.id); li != nil {
			l.pushPropertiesTo(li)
			t.NotePushed(l.id)
		}
	}
	if all || l.numDependentsNeedPush > 0 {
		l.forEachOwned(func(c *Layer) { pushLayer(c, t, all) })
	}
	if !l.persistNeedsPush {
		l.needsPush = false
	}
	l.recomputeDependents()
}
