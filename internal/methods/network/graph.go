package network

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
)

// graph is the undirected weighted graph derived from a line dataset:
// every linear feature becomes an edge between its endpoints, weighted
// by the configured attribute field or, absent one, geometric length.
type graph struct {
	nodes []geom.Point
	adj   [][]halfEdge
	edges int
}

type halfEdge struct {
	to     int
	weight float64
}

func nodeKey(p geom.Point) string {
	return fmt.Sprintf("%.9f,%.9f", p.X, p.Y)
}

func buildGraph(d *dataset.Dataset, weightField string) (*graph, error) {
	g := &graph{}
	index := make(map[string]int)

	nodeAt := func(p geom.Point) int {
		key := nodeKey(p)
		if i, ok := index[key]; ok {
			return i
		}
		i := len(g.nodes)
		index[key] = i
		g.nodes = append(g.nodes, p)
		g.adj = append(g.adj, nil)
		return i
	}

	for _, f := range d.Features() {
		pts := f.Geometry.Points
		if len(pts) < 2 {
			continue
		}
		weight := f.Geometry.Length()
		if weightField != "" {
			v, ok := analysis.Params(f.Attributes).Float(weightField)
			if !ok {
				return nil, analysis.ErrInvalidParameter(
					"feature %s has no numeric value for weight field %q", f.ID, weightField)
			}
			weight = v
		}
		if weight < 0 {
			return nil, analysis.ErrInvalidParameter(
				"feature %s has negative edge weight %v", f.ID, weight)
		}

		from := nodeAt(pts[0])
		to := nodeAt(pts[len(pts)-1])
		if from == to {
			continue
		}
		g.adj[from] = append(g.adj[from], halfEdge{to: to, weight: weight})
		g.adj[to] = append(g.adj[to], halfEdge{to: from, weight: weight})
		g.edges++
	}

	if len(g.nodes) == 0 {
		return nil, analysis.ErrInvalidParameter("no usable linear features to build a graph from")
	}
	return g, nil
}

// nearest snaps an arbitrary coordinate to the closest graph node.
func (g *graph) nearest(p geom.Point) int {
	best := 0
	bestDist := math.Inf(1)
	for i, n := range g.nodes {
		if d := p.DistanceTo(n); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// pqItem is a priority queue entry for Dijkstra.
type pqItem struct {
	node int
	dist float64
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int           { return len(q) }
func (q priorityQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q priorityQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)        { *q = append(*q, x.(pqItem)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// dijkstra computes shortest distances from the given sources (virtual
// multi-source: every source starts at distance zero). prev allows
// path reconstruction from single-source runs.
func (g *graph) dijkstra(sources ...int) (dist []float64, prev []int) {
	dist = make([]float64, len(g.nodes))
	prev = make([]int, len(g.nodes))
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}

	pq := &priorityQueue{}
	for _, s := range sources {
		dist[s] = 0
		heap.Push(pq, pqItem{node: s, dist: 0})
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if item.dist > dist[item.node] {
			continue // stale entry
		}
		for _, e := range g.adj[item.node] {
			next := item.dist + e.weight
			if next < dist[e.to] {
				dist[e.to] = next
				prev[e.to] = item.node
				heap.Push(pq, pqItem{node: e.to, dist: next})
			}
		}
	}
	return dist, prev
}
