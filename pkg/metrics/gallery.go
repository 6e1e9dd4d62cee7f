package metrics

import "github.com/prometheus/client_golang/prometheus"

// GalleryMetrics counts the interesting edges of the gallery engine.
type GalleryMetrics struct {
	overlayDiscards     prometheus.Counter
	resolverExhaustions prometheus.Counter
	batchFailures       *prometheus.CounterVec
	orderBatches        prometheus.Counter
}

// NewGalleryMetrics registers gallery engine metrics on the provided registerer.
func NewGalleryMetrics(reg prometheus.Registerer) *GalleryMetrics {
	if reg == nil {
		return &GalleryMetrics{}
	}
	overlayDiscards := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gallery_overlay_discards_total",
		Help: "Optimistic overlays discarded because collection membership changed.",
	})
	resolverExhaustions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gallery_resolver_exhaustions_total",
		Help: "Upload resolutions that exhausted every retry attempt.",
	})
	batchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_batch_item_failures_total",
		Help: "Per-item failures inside batch mutations.",
	}, []string{"op"})
	orderBatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gallery_order_batches_total",
		Help: "Batched display-order writes submitted.",
	})
	reg.MustRegister(overlayDiscards, resolverExhaustions, batchFailures, orderBatches)
	return &GalleryMetrics{
		overlayDiscards:     overlayDiscards,
		resolverExhaustions: resolverExhaustions,
		batchFailures:       batchFailures,
		orderBatches:        orderBatches,
	}
}

// IncOverlayDiscard records one membership-driven overlay discard.
func (g *GalleryMetrics) IncOverlayDiscard() {
	if g == nil || g.overlayDiscards == nil {
		return
	}
	g.overlayDiscards.Inc()
}

// IncResolverExhaustion records one resolver giving up after all attempts.
func (g *GalleryMetrics) IncResolverExhaustion() {
	if g == nil || g.resolverExhaustions == nil {
		return
	}
	g.resolverExhaustions.Inc()
}

// IncBatchItemFailure records one failed item inside the named batch operation.
func (g *GalleryMetrics) IncBatchItemFailure(op string) {
	if g == nil || g.batchFailures == nil {
		return
	}
	g.batchFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncOrderBatch records one submitted order batch.
func (g *GalleryMetrics) IncOrderBatch() {
	if g == nil || g.orderBatches == nil {
		return
	}
	g.orderBatches.Inc()
}
