// Package network implements graph-based analysis over linear
// features: shortest paths, centrality and service areas.
package network

import (
	"container/heap"
	"context"
	"math"
	"sort"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
)

// Register adds the network methods to the catalog.
func Register(r *analysis.Registry) error {
	for _, d := range []*analysis.Descriptor{
		shortestPathDescriptor(),
		centralityDescriptor(),
		serviceAreaDescriptor(),
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func weightFieldSpec() analysis.ParamSpec {
	return analysis.ParamSpec{
		Type:        "string",
		FieldRef:    true,
		Description: "numeric field supplying edge weights; geometric length when absent",
	}
}

func shortestPathDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryNetwork,
		Name:        "shortest-path",
		Description: "Dijkstra shortest path between two coordinates snapped to the derived graph",
		Geometry:    []geom.Type{geom.TypeLineString},
		MinFeatures: 1,
		Schema: analysis.ParamSchema{
			"source_x":     {Type: "number", Required: true},
			"source_y":     {Type: "number", Required: true},
			"target_x":     {Type: "number", Required: true},
			"target_y":     {Type: "number", Required: true},
			"weight_field": weightFieldSpec(),
		},
		Merge:   analysis.MergeNone,
		Compute: computeShortestPath,
	}
}

func computeShortestPath(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	g, err := buildGraph(d, p.StringOr("weight_field", ""))
	if err != nil {
		return nil, err
	}
	progress(0.3, "graph built")

	source := g.nearest(geom.Point{X: p.FloatOr("source_x", 0), Y: p.FloatOr("source_y", 0)})
	target := g.nearest(geom.Point{X: p.FloatOr("target_x", 0), Y: p.FloatOr("target_y", 0)})

	dist, prev := g.dijkstra(source)
	if math.IsInf(dist[target], 1) {
		return nil, analysis.ErrDisconnectedGraph(
			"no path between source node %d and target node %d", source, target)
	}
	progress(0.9, "path found")

	var path []any
	for at := target; at != -1; at = prev[at] {
		path = append(path, map[string]any{"x": g.nodes[at].X, "y": g.nodes[at].Y})
	}
	// prev walks target -> source; flip to travel order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return map[string]any{
		"distance": dist[target],
		"path":     path,
		"hops":     len(path) - 1,
		"nodes":    len(g.nodes),
		"edges":    g.edges,
	}, nil
}

func centralityDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryNetwork,
		Name:        "centrality",
		Description: "betweenness or closeness centrality over the derived graph",
		Geometry:    []geom.Type{geom.TypeLineString},
		MinFeatures: 2,
		LongRunning: true,
		Schema: analysis.ParamSchema{
			"kind": {Type: "string", Enum: []string{"betweenness", "closeness"},
				Default: "closeness"},
			"weight_field": weightFieldSpec(),
		},
		Merge:   analysis.MergeNone,
		Compute: computeCentrality,
	}
}

func computeCentrality(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	g, err := buildGraph(d, p.StringOr("weight_field", ""))
	if err != nil {
		return nil, err
	}

	kind := p.StringOr("kind", "closeness")
	scores := make([]float64, len(g.nodes))

	switch kind {
	case "closeness":
		for i := range g.nodes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			dist, _ := g.dijkstra(i)
			var sum float64
			var reachable int
			for j, dj := range dist {
				if j == i || math.IsInf(dj, 1) {
					continue
				}
				sum += dj
				reachable++
			}
			if sum > 0 {
				scores[i] = float64(reachable) / sum
			}
			progress(float64(i+1)/float64(len(g.nodes)), "closeness")
		}
	case "betweenness":
		if err := betweenness(ctx, g, scores, progress); err != nil {
			return nil, err
		}
	}

	coords := make([]any, len(g.nodes))
	for i, n := range g.nodes {
		coords[i] = map[string]any{"x": n.X, "y": n.Y}
	}
	return map[string]any{
		"kind":   kind,
		"scores": scores,
		"nodes":  coords,
	}, nil
}

// betweenness runs Brandes' accumulation with Dijkstra orderings.
func betweenness(ctx context.Context, g *graph, scores []float64, progress analysis.Progress) error {
	n := len(g.nodes)
	for s := 0; s < n; s++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		dist := make([]float64, n)
		sigma := make([]float64, n)
		preds := make([][]int, n)
		for i := range dist {
			dist[i] = math.Inf(1)
		}
		dist[s] = 0
		sigma[s] = 1

		pq := &priorityQueue{{node: s, dist: 0}}
		var order []int
		settled := make([]bool, n)

		for pq.Len() > 0 {
			item := heap.Pop(pq).(pqItem)
			if settled[item.node] {
				continue
			}
			settled[item.node] = true
			order = append(order, item.node)

			for _, e := range g.adj[item.node] {
				next := dist[item.node] + e.weight
				switch {
				case next < dist[e.to]:
					dist[e.to] = next
					sigma[e.to] = sigma[item.node]
					preds[e.to] = []int{item.node}
					heap.Push(pq, pqItem{node: e.to, dist: next})
				case next == dist[e.to]:
					sigma[e.to] += sigma[item.node]
					preds[e.to] = append(preds[e.to], item.node)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				scores[w] += delta[w]
			}
		}
		progress(float64(s+1)/float64(n), "betweenness")
	}

	// Undirected graph: every pair was counted twice.
	for i := range scores {
		scores[i] /= 2
	}
	return nil
}

func serviceAreaDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryNetwork,
		Name:        "service-area",
		Description: "nested isochrone polygons around one or more sources, bounded by break values",
		Geometry:    []geom.Type{geom.TypeLineString},
		MinFeatures: 1,
		Schema: analysis.ParamSchema{
			"source_x": {Type: "number"},
			"source_y": {Type: "number"},
			"sources": {Type: "array", Items: "number",
				Description: "flat [x1,y1,x2,y2,...] multi-source coordinates"},
			"breaks":       {Type: "array", Items: "number", Required: true},
			"weight_field": weightFieldSpec(),
		},
		Merge:   analysis.MergeNone,
		Compute: computeServiceArea,
	}
}

func computeServiceArea(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	breaks, ok := p.Floats("breaks")
	if !ok || len(breaks) == 0 {
		return nil, analysis.ErrInvalidParameter("breaks must be a non-empty number array")
	}
	if !sort.Float64sAreSorted(breaks) {
		return nil, analysis.ErrInvalidParameter("breaks must be ascending")
	}

	g, err := buildGraph(d, p.StringOr("weight_field", ""))
	if err != nil {
		return nil, err
	}

	var sources []int
	if flat, ok := p.Floats("sources"); ok && len(flat) > 0 {
		if len(flat)%2 != 0 {
			return nil, analysis.ErrInvalidParameter("sources must hold x,y pairs")
		}
		for i := 0; i < len(flat); i += 2 {
			sources = append(sources, g.nearest(geom.Point{X: flat[i], Y: flat[i+1]}))
		}
	} else {
		sx, okX := p.Float("source_x")
		sy, okY := p.Float("source_y")
		if !okX || !okY {
			return nil, analysis.ErrInvalidParameter("either sources or source_x/source_y is required")
		}
		sources = append(sources, g.nearest(geom.Point{X: sx, Y: sy}))
	}

	dist, _ := g.dijkstra(sources...)
	progress(0.6, "expansion complete")

	// Bands are nested: each break's hull covers every node reachable
	// within it, ordered ascending by break value.
	bands := make([]any, 0, len(breaks))
	for _, brk := range breaks {
		var reached []geom.Point
		for i, di := range dist {
			if di <= brk {
				reached = append(reached, g.nodes[i])
			}
		}
		hull := geom.ConvexHull(reached)
		ring := make([]any, len(hull))
		for i, pt := range hull {
			ring[i] = map[string]any{"x": pt.X, "y": pt.Y}
		}
		bands = append(bands, map[string]any{
			"break":           brk,
			"reachable_nodes": len(reached),
			"ring":            ring,
		})
	}

	return map[string]any{
		"bands":   bands,
		"sources": len(sources),
		"nodes":   len(g.nodes),
	}, nil
}
