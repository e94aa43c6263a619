package metrics

import (
	"time"
)

// RecordBuild records the terminal outcome of a build request.
func (r *Registry) RecordBuild(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.BuildsTotal.WithLabelValues(status).Inc()
}

// RecordStage records how long a build stage took.
func (r *Registry) RecordStage(stage string, duration time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordCoalesced counts a request that shared another request's result.
func (r *Registry) RecordCoalesced() {
	r.CoalescedTotal.Inc()
}

// RecordCacheLookup records an analysis cache hit or miss.
func (r *Registry) RecordCacheLookup(hit bool) {
	if hit {
		r.CacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		r.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordSource records the size of a resolved source tree.
func (r *Registry) RecordSource(files, edges, degraded int) {
	r.FilesWalked.Observe(float64(files))
	r.ImportEdges.Observe(float64(edges))
	r.ParseDegradedTotal.Add(float64(degraded))
}

// RecordGraph records the size of both views of a reduced graph.
func (r *Registry) RecordGraph(dirNodes, dirLinks, fileNodes, fileLinks int) {
	r.GraphNodes.WithLabelValues("directory").Set(float64(dirNodes))
	r.GraphLinks.WithLabelValues("directory").Set(float64(dirLinks))
	r.GraphNodes.WithLabelValues("file").Set(float64(fileNodes))
	r.GraphLinks.WithLabelValues("file").Set(float64(fileLinks))
}
