// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"container/heap"
	"slices"

	"github.com/gviegas/taa/driver"
	"github.com/gviegas/taa/engine/internal/resource"
	"github.com/gviegas/taa/internal/bitvec"
)

// group is a maximal run of accesses to one resource
// that need no barrier between them.
type group struct {
	batch  int
	layout driver.Layout
	sync   driver.Sync
	access driver.Access
	write  bool
}

// resPlan is the barrier plan of a single resource.
type resPlan struct {
	id     resource.ID
	kind   resource.Kind
	groups []group
}

// Graph is a compiled task graph.
type Graph struct {
	reg     *resource.Registry
	name    string
	tasks   []*task
	edges   []Edge
	out     [][]int
	reach   []bitvec.V[uint32]
	order   []int
	batches [][]int
	res     []resPlan
	index   map[resource.ID]int
	// at[i] lists the resPlan indices with a group
	// starting at batch i.
	at   [][]int
	phys []*resource.Physical
	// prev holds the states replaced by the last
	// Execute call, for Revert.
	prev    []prevState
	planned int
	state   State
}

func classify(a, b *use) Hazard {
	switch {
	case a.write && b.write:
		return WAW
	case a.write:
		return RAW
	case b.write:
		return WAR
	case a.layout != b.layout:
		return LayoutChange
	}
	return NoHazard
}

func compile(b *Builder) (*Graph, error) {
	n := len(b.tasks)
	g := &Graph{
		reg:   b.reg,
		name:  b.opts.Name,
		tasks: b.tasks,
		out:   make([][]int, n),
		index: make(map[resource.ID]int),
		state: Compiled,
	}
	linked := make(map[[2]int]bool)
	link := func(from, to int, hz Hazard, id resource.ID) {
		if linked[[2]int{from, to}] {
			return
		}
		linked[[2]int{from, to}] = true
		g.out[from] = append(g.out[from], to)
		g.edges = append(g.edges, Edge{
			From:   g.tasks[from].Name,
			To:     g.tasks[to].Name,
			Hazard: hz,
			Res:    id,
		})
	}

	for j := 1; j < n; j++ {
		for i := range j {
			for k := range g.tasks[j].uses {
				uj := &g.tasks[j].uses[k]
				ui := g.tasks[i].find(uj.res)
				if ui == nil {
					continue
				}
				if hz := classify(ui, uj); hz != NoHazard {
					link(i, j, hz, uj.res)
					break
				}
			}
		}
	}
	for j, t := range g.tasks {
		for _, name := range t.After {
			i, ok := b.names[name]
			if !ok {
				return nil, constructionErr("task %q depends on unknown task %q", t.Name, name)
			}
			if i == j {
				return nil, &Error{Kind: ErrCycle, Msg: "dependency cycle", Cycle: []string{t.Name, t.Name}}
			}
			link(i, j, NoHazard, -1)
		}
	}

	order, ok := g.sort()
	if !ok {
		return nil, &Error{Kind: ErrCycle, Msg: "dependency cycle", Cycle: g.cycle()}
	}
	g.order = order
	g.closure()
	g.schedule(b.opts.Reorder)
	g.plan()
	return g, nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// sort computes a topological order that prefers
// lower declaration indices.
func (g *Graph) sort() ([]int, bool) {
	n := len(g.tasks)
	indeg := make([]int, n)
	for _, out := range g.out {
		for _, v := range out {
			indeg[v]++
		}
	}
	h := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			*h = append(*h, i)
		}
	}
	heap.Init(h)
	order := make([]int, 0, n)
	for h.Len() > 0 {
		u := heap.Pop(h).(int)
		order = append(order, u)
		for _, v := range g.out[u] {
			if indeg[v]--; indeg[v] == 0 {
				heap.Push(h, v)
			}
		}
	}
	return order, len(order) == n
}

// cycle finds one cycle in the graph.
// The search visits nodes and edges in declaration
// order, so the result is deterministic.
func (g *Graph) cycle() []string {
	const (
		white = iota
		gray
		black
	)
	n := len(g.tasks)
	color := make([]int, n)
	parent := make([]int, n)
	var start, end = -1, -1
	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = gray
		out := slices.Sorted(slices.Values(g.out[u]))
		for _, v := range out {
			switch color[v] {
			case white:
				parent[v] = u
				if visit(v) {
					return true
				}
			case gray:
				start, end = v, u
				return true
			}
		}
		color[u] = black
		return false
	}
	for u := range n {
		if color[u] == white && visit(u) {
			break
		}
	}
	if start < 0 {
		return nil
	}
	var path []string
	for v := end; v != start; v = parent[v] {
		path = append(path, g.tasks[v].Name)
	}
	path = append(path, g.tasks[start].Name)
	slices.Reverse(path)
	return append(path, g.tasks[start].Name)
}

// closure computes the transitive closure of the
// dependency relation.
func (g *Graph) closure() {
	n := len(g.tasks)
	g.reach = make([]bitvec.V[uint32], n)
	for i := range g.reach {
		g.reach[i].GrowBits(n)
	}
	for _, u := range slices.Backward(g.order) {
		for _, v := range g.out[u] {
			g.reach[u].Set(v)
			g.reach[u].Or(&g.reach[v])
		}
	}
}

// schedule groups tasks into batches.
// Without reordering, every task is its own batch.
// Otherwise tasks are batched by their depth in the
// dependency graph.
func (g *Graph) schedule(reorder bool) {
	if !reorder {
		g.batches = make([][]int, len(g.order))
		for i, t := range g.order {
			g.batches[i] = []int{t}
		}
		return
	}
	depth := make([]int, len(g.tasks))
	maxDepth := 0
	for _, u := range g.order {
		for _, v := range g.out[u] {
			depth[v] = max(depth[v], depth[u]+1)
		}
		maxDepth = max(maxDepth, depth[u])
	}
	g.batches = make([][]int, maxDepth+1)
	for i := range g.tasks {
		g.batches[depth[i]] = append(g.batches[depth[i]], i)
	}
	g.order = g.order[:0]
	for _, b := range g.batches {
		g.order = append(g.order, b...)
	}
}

// plan splits the accesses of every resource into
// groups. A barrier is needed before every group.
func (g *Graph) plan() {
	g.at = make([][]int, len(g.batches))
	for bi, batch := range g.batches {
		for _, ti := range batch {
			for _, u := range g.tasks[ti].uses {
				ri, ok := g.index[u.res]
				if !ok {
					ri = len(g.res)
					g.index[u.res] = ri
					g.res = append(g.res, resPlan{id: u.res, kind: g.reg.Kind(u.res)})
				}
				rp := &g.res[ri]
				if k := len(rp.groups); k > 0 {
					last := &rp.groups[k-1]
					if !last.write && !u.write && last.layout == u.layout {
						last.sync |= u.sync
						last.access |= u.access
						continue
					}
				}
				rp.groups = append(rp.groups, group{
					batch:  bi,
					layout: u.layout,
					sync:   u.sync,
					access: u.access,
					write:  u.write,
				})
				g.at[bi] = append(g.at[bi], ri)
			}
		}
	}
	for _, rp := range g.res {
		g.planned += len(rp.groups) - 1
	}
	g.phys = make([]*resource.Physical, len(g.res))
}

// Name returns the name given in Options.
func (g *Graph) Name() string { return g.name }

// State returns the current state of the graph.
func (g *Graph) State() State { return g.state }

// Order returns the task names in execution order.
func (g *Graph) Order() []string {
	s := make([]string, len(g.order))
	for i, t := range g.order {
		s[i] = g.tasks[t].Name
	}
	return s
}

// Batches returns the task names of every batch, in
// execution order.
// Barriers are only recorded between batches.
func (g *Graph) Batches() [][]string {
	s := make([][]string, len(g.batches))
	for i, b := range g.batches {
		for _, t := range b {
			s[i] = append(s[i], g.tasks[t].Name)
		}
	}
	return s
}

// Edges returns the direct dependencies between tasks.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Reduced returns the transitive reduction of Edges,
// i.e., the dependencies that are not implied by
// other dependencies.
func (g *Graph) Reduced() []Edge {
	var s []Edge
	for _, e := range g.edges {
		u, v := g.find(e.From), g.find(e.To)
		implied := false
		for _, w := range g.out[u] {
			if w != v && g.reach[w].IsSet(v) {
				implied = true
				break
			}
		}
		if !implied {
			s = append(s, e)
		}
	}
	return s
}

// Ordered reports whether task a must run before task b,
// either directly or through other tasks.
func (g *Graph) Ordered(a, b string) bool {
	i, j := g.find(a), g.find(b)
	if i < 0 || j < 0 {
		return false
	}
	return g.reach[i].IsSet(j)
}

func (g *Graph) find(name string) int {
	for i, t := range g.tasks {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// Barriers returns the number of barriers and
// transitions recorded between tasks of the graph.
// It does not count the barriers that synchronize with
// commands recorded before the graph executes, since
// these depend on the state of the physical resources.
func (g *Graph) Barriers() int { return g.planned }
