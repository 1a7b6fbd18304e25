package layer

import (
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/quad"
)

// buildContext is the state inherited by the children of a layer.
type buildContext struct {
	transform int
	effect    int
	clip      int
	scroll    int
}

// buildPropertyTrees rebuilds pt from the tree under root and assigns the
// property tree indices of every layer.
//
// Node 0 of each tree belongs to the device: its transform scales to
// device pixels, its effect is the root render surface and its clip is
// the viewport. Every layer gets a transform and an effect node. Only
// layers that clip their children get a clip node, and only scrollable
// layers a scroll node. Mask and replica layers share the nodes of the
// layer they are attached to.
func buildPropertyTrees(root *Layer, pt *property.PropertyTrees, deviceScale float64, frame int) {
	pt.Clear()
	pt.SourceFrameNumber = frame

	device := property.NewTransformNode(0)
	device.Local = geom.Scaling(deviceScale, deviceScale)
	pt.InsertTransform(device, property.InvalidNodeID)

	deviceEffect := property.NewEffectNode(0)
	deviceEffect.HasRenderSurface = true
	pt.InsertEffect(deviceEffect, property.InvalidNodeID)

	pt.InsertClip(property.ClipNode{}, property.InvalidNodeID)
	pt.InsertScroll(property.NewScrollNode(0), property.InvalidNodeID)

	if root == nil {
		return
	}
	counts := make(map[*Layer]int)
	countDrawingLayers(root, counts)
	buildLayer(root, pt, buildContext{}, counts)
}

// countDrawingLayers records for every layer the number of layers in its
// subtree that draw content, the layer included.
func countDrawingLayers(l *Layer, counts map[*Layer]int) int {
	n := 0
	if l.DrawsContent() {
		n++
	}
	for _, c := range l.children {
		n += countDrawingLayers(c, counts)
	}
	counts[l] = n
	return n
}

func needsRenderSurface(l *Layer, drawing int) bool {
	switch {
	case l.forceRenderSurface, l.mask != nil, l.replica != nil:
		return true
	case len(l.filters) > 0, len(l.copyRequests) > 0:
		return true
	case l.blendMode != quad.BlendNormal:
		return true
	}
	return l.opacity < 1 && drawing > 1
}

func buildLayer(l *Layer, pt *property.PropertyTrees, ctx buildContext, counts map[*Layer]int) {
	tn := property.NewTransformNode(l.id)
	tn.Local = l.transform
	tn.PostLocalOffset = l.position
	if l.scrollable {
		tn.ScrollOffset = l.scrollOffset
	}
	tn.ValueStamp = l.transformStamp
	transformID := pt.InsertTransform(tn, ctx.transform)

	en := property.NewEffectNode(l.id)
	en.Opacity = l.opacity
	en.Filters = l.filters
	if l.mask != nil {
		en.MaskLayerID = l.mask.id
	}
	en.HasCopyRequest = len(l.copyRequests) > 0
	en.HasRenderSurface = needsRenderSurface(l, counts[l])
	en.HiddenByBackfaceOrHide = l.hidden
	en.TransformID = transformID
	en.ClipID = ctx.clip
	en.ValueStamp = l.opacityStamp
	en.FilterStamp = l.filterStamp
	effectID := pt.InsertEffect(en, ctx.effect)

	scrollID := ctx.scroll
	if l.scrollable {
		sn := property.NewScrollNode(l.id)
		sn.Scrollable = true
		sn.ContainerBounds = l.scrollContainer
		sn.ContentBounds = l.bounds
		sn.ScrollOffset = l.scrollOffset
		sn.TransformID = transformID
		sn.ValueStamp = l.scrollStamp
		scrollID = pt.InsertScroll(sn, ctx.scroll)
	}

	l.setPropertyTreeIndices(transformID, effectID, ctx.clip, scrollID)
	if l.mask != nil {
		l.mask.setPropertyTreeIndices(transformID, effectID, ctx.clip, scrollID)
	}
	if l.replica != nil {
		l.replica.setPropertyTreeIndices(transformID, effectID, ctx.clip, scrollID)
	}

	child := buildContext{transform: transformID, effect: effectID, clip: ctx.clip, scroll: scrollID}
	if l.masksToBounds {
		child.clip = pt.InsertClip(property.ClipNode{
			OwnerID:     l.id,
			ClipRect:    geom.RectFromSize(l.bounds),
			TransformID: transformID,
		}, ctx.clip)
	}
	for _, c := range l.children {
		buildLayer(c, pt, child, counts)
	}
}

func (l *Layer) setPropertyTreeIndices(transform, effect, clip, scroll int) {
	l.transformIndex, l.effectIndex, l.clipIndex, l.scrollIndex = transform, effect, clip, scroll
}
