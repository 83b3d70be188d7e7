package schema

import (
	"container/heap"
	"fmt"
)

// GraphNode is one (subgraph, type[, field]) vertex in the cost graph
// the planner's Dijkstra solver walks.
type GraphNode struct {
	ID        string
	SubGraph  *SubGraph
	TypeName  string
	FieldName string
	Edges     map[string]int
	ShortCut  map[string]int // @provides shortcuts, always weight 0
}

// WeightedDirectedGraph is the cost graph over every subgraph's fields.
type WeightedDirectedGraph struct {
	Nodes map[string]*GraphNode
}

func NewWeightedDirectedGraph() *WeightedDirectedGraph {
	return &WeightedDirectedGraph{Nodes: make(map[string]*GraphNode)}
}

func (g *WeightedDirectedGraph) AddNode(id string, sg *SubGraph, typeName, fieldName string) *GraphNode {
	if n, ok := g.Nodes[id]; ok {
		return n
	}
	n := &GraphNode{
		ID:        id,
		SubGraph:  sg,
		TypeName:  typeName,
		FieldName: fieldName,
		Edges:     make(map[string]int),
		ShortCut:  make(map[string]int),
	}
	g.Nodes[id] = n
	return n
}

func (g *WeightedDirectedGraph) AddEdge(srcID, dstID string, weight int) {
	src, ok := g.Nodes[srcID]
	if !ok {
		return
	}
	if existing, exists := src.Edges[dstID]; !exists || weight < existing {
		src.Edges[dstID] = weight
	}
}

func (g *WeightedDirectedGraph) AddShortCut(srcID, dstID string) {
	src, ok := g.Nodes[srcID]
	if !ok {
		return
	}
	src.ShortCut[dstID] = 0
}

// NodeKey builds the graph vertex identifier for a (subgraph, type[, field]).
func NodeKey(subGraphName, typeName, fieldName string) string {
	if fieldName == "" {
		return fmt.Sprintf("%s:%s", subGraphName, typeName)
	}
	return fmt.Sprintf("%s:%s.%s", subGraphName, typeName, fieldName)
}

type dijkstraItem struct {
	nodeID string
	cost   int
	index  int
}

type dijkstraPQ []*dijkstraItem

func (pq dijkstraPQ) Len() int            { return len(pq) }
func (pq dijkstraPQ) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq dijkstraPQ) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *dijkstraPQ) Push(x any) {
	item := x.(*dijkstraItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *dijkstraPQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// DijkstraResult is the shortest-cost table from a solver run.
type DijkstraResult struct {
	Dist map[string]int
	Prev map[string]string
}

// Dijkstra finds the minimum-cost path from any of entryPoints to every
// reachable node, treating @provides shortcuts as zero-cost edges.
func (g *WeightedDirectedGraph) Dijkstra(entryPoints []string) *DijkstraResult {
	const inf = int(^uint(0) >> 1)
	dist := make(map[string]int, len(g.Nodes))
	prev := make(map[string]string, len(g.Nodes))
	for id := range g.Nodes {
		dist[id] = inf
	}

	pq := &dijkstraPQ{}
	heap.Init(pq)
	for _, ep := range entryPoints {
		if _, ok := g.Nodes[ep]; ok {
			dist[ep] = 0
			heap.Push(pq, &dijkstraItem{nodeID: ep, cost: 0})
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*dijkstraItem)
		u := item.nodeID
		if item.cost > dist[u] {
			continue
		}
		node := g.Nodes[u]
		for v, w := range node.Edges {
			if nc := dist[u] + w; nc < dist[v] {
				dist[v] = nc
				prev[v] = u
				heap.Push(pq, &dijkstraItem{nodeID: v, cost: nc})
			}
		}
		for v := range node.ShortCut {
			if nc := dist[u]; nc < dist[v] {
				dist[v] = nc
				prev[v] = u
				heap.Push(pq, &dijkstraItem{nodeID: v, cost: nc})
			}
		}
	}

	return &DijkstraResult{Dist: dist, Prev: prev}
}

// ReconstructPath walks Prev back from dstID to its entry point.
func (r *DijkstraResult) ReconstructPath(dstID string) []string {
	const inf = int(^uint(0) >> 1)
	if cost, ok := r.Dist[dstID]; !ok || cost == inf {
		return nil
	}
	var path []string
	visited := make(map[string]bool)
	for cur := dstID; cur != ""; {
		if visited[cur] {
			break
		}
		visited[cur] = true
		path = append([]string{cur}, path...)
		p, ok := r.Prev[cur]
		if !ok {
			break
		}
		cur = p
	}
	return path
}

// BuildGraph constructs the cost graph from every subgraph's entities:
// same-subgraph type->field edges cost 0, cross-subgraph type->type
// edges (shared @key entities) cost 1, and @provides adds zero-cost
// shortcuts from the providing field straight to the provided field.
func BuildGraph(subGraphs []*SubGraph) *WeightedDirectedGraph {
	g := NewWeightedDirectedGraph()

	for _, sg := range subGraphs {
		for typeName, entity := range sg.GetEntities() {
			typeKey := NodeKey(sg.Name, typeName, "")
			g.AddNode(typeKey, sg, typeName, "")

			for fieldName, field := range entity.Fields {
				fieldKey := NodeKey(sg.Name, typeName, fieldName)
				g.AddNode(fieldKey, sg, typeName, fieldName)
				g.AddEdge(typeKey, fieldKey, 0)

				for _, provided := range field.Provides {
					placeholder := fmt.Sprintf("%s:%s.%s:%s", sg.Name, typeName, fieldName, provided)
					g.AddShortCut(fieldKey, placeholder)
				}
			}
		}
	}

	entitySubGraphs := make(map[string][]*SubGraph)
	for _, sg := range subGraphs {
		for typeName := range sg.GetEntities() {
			entitySubGraphs[typeName] = append(entitySubGraphs[typeName], sg)
		}
	}

	for typeName, sgs := range entitySubGraphs {
		if len(sgs) < 2 {
			continue
		}
		for i, a := range sgs {
			for _, b := range sgs[i+1:] {
				keyA := NodeKey(a.Name, typeName, "")
				keyB := NodeKey(b.Name, typeName, "")
				g.AddEdge(keyA, keyB, 1)
				g.AddEdge(keyB, keyA, 1)
			}
		}
	}

	g.resolveProvideShortCuts()
	return g
}

func (g *WeightedDirectedGraph) resolveProvideShortCuts() {
	for _, node := range g.Nodes {
		if len(node.ShortCut) == 0 {
			continue
		}
		resolved := make(map[string]int)
		for placeholder := range node.ShortCut {
			lastColon := -1
			for i := len(placeholder) - 1; i >= 0; i-- {
				if placeholder[i] == ':' {
					lastColon = i
					break
				}
			}
			providedField := placeholder[lastColon+1:]

			found := false
			for key, other := range g.Nodes {
				if other.FieldName == providedField && other.SubGraph.Name != node.SubGraph.Name {
					resolved[key] = 0
					found = true
					break
				}
			}
			if !found {
				resolved[placeholder] = 0
			}
		}
		node.ShortCut = resolved
	}
}
