package vectorindex

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
)

// GraphConfig configures the HNSW candidate graph.
type GraphConfig struct {
	M              int     // Max connections per node (default 16)
	EfConstruction int     // Construction search depth (default 200)
	EfSearch       int     // Query search depth (default 50)
	LevelMult      float64 // Level multiplier (default 1/ln(M))
}

func (c GraphConfig) withDefaults() GraphConfig {
	if c.M <= 1 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 50
	}
	if c.LevelMult <= 0 {
		c.LevelMult = 1.0 / math.Log(float64(c.M))
	}
	return c
}

// graph is a Hierarchical Navigable Small World graph over the vectors of an
// index. Nodes are chunk positions. It is immutable once built.
type graph struct {
	cfg        GraphConfig
	vectors    [][]float32
	levels     []int
	neighbors  [][][]uint32 // neighbors[node][level]
	entryPoint int32        // -1 if empty
	maxLevel   int
}

// graphSeed derives the level generator seed from the document id, so the
// same document always produces the same graph.
func graphSeed(documentID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(documentID))
	return int64(h.Sum64())
}

func buildGraph(vectors [][]float32, cfg GraphConfig, seed int64) *graph {
	g := &graph{
		cfg:        cfg.withDefaults(),
		vectors:    vectors,
		levels:     make([]int, 0, len(vectors)),
		neighbors:  make([][][]uint32, 0, len(vectors)),
		entryPoint: -1,
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range vectors {
		g.insert(uint32(i), g.randomLevel(rng))
	}
	return g
}

func (g *graph) randomLevel(rng *rand.Rand) int {
	r := rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(-math.Log(r) * g.cfg.LevelMult)
}

func (g *graph) insert(idx uint32, level int) {
	links := make([][]uint32, level+1)
	for i := range links {
		links[i] = make([]uint32, 0, g.cfg.M)
	}
	g.levels = append(g.levels, level)
	g.neighbors = append(g.neighbors, links)

	if g.entryPoint < 0 {
		g.entryPoint = int32(idx)
		g.maxLevel = level
		return
	}

	query := g.vectors[idx]

	// Find entry point at top level and descend
	curr := uint32(g.entryPoint)
	for l := g.maxLevel; l > level; l-- {
		curr = g.greedy(query, curr, l)
	}

	// Insert at each level from level down to 0
	for l := min(level, g.maxLevel); l >= 0; l-- {
		nearest := g.searchLayer(query, curr, g.cfg.EfConstruction, l)
		g.connect(idx, nearest, l)
		if len(nearest) > 0 {
			curr = nearest[0]
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = int32(idx)
	}
}

// greedy walks a single layer towards the query until no neighbor is closer.
func (g *graph) greedy(query []float32, entry uint32, level int) uint32 {
	curr := distItem{idx: entry, dist: SquaredL2(query, g.vectors[entry])}
	for {
		changed := false
		if level < len(g.neighbors[curr.idx]) {
			for _, n := range g.neighbors[curr.idx][level] {
				cand := distItem{idx: n, dist: SquaredL2(query, g.vectors[n])}
				if cand.less(curr) {
					curr = cand
					changed = true
				}
			}
		}
		if !changed {
			return curr.idx
		}
	}
}

// searchLayer returns up to ef nodes nearest to query on one layer, closest
// first.
func (g *graph) searchLayer(query []float32, entry uint32, ef, level int) []uint32 {
	visited := map[uint32]bool{entry: true}
	candidates := &distHeap{}
	results := &nearestList{limit: ef}

	start := distItem{idx: entry, dist: SquaredL2(query, g.vectors[entry])}
	candidates.push(start)
	results.offer(start)

	for candidates.len() > 0 {
		curr := candidates.pop()
		if results.full() && results.worst().less(curr) {
			break
		}
		if level >= len(g.neighbors[curr.idx]) {
			continue
		}
		for _, n := range g.neighbors[curr.idx][level] {
			if visited[n] {
				continue
			}
			visited[n] = true

			item := distItem{idx: n, dist: SquaredL2(query, g.vectors[n])}
			if results.offer(item) {
				candidates.push(item)
			}
		}
	}

	out := make([]uint32, len(results.items))
	for i, it := range results.items {
		out[i] = it.idx
	}
	return out
}

func (g *graph) maxLinks(level int) int {
	if level == 0 {
		return g.cfg.M * 2
	}
	return g.cfg.M
}

func (g *graph) connect(idx uint32, nearest []uint32, level int) {
	m := g.maxLinks(level)

	selected := nearest
	if len(selected) > m {
		selected = selected[:m]
	}

	// Connect bidirectionally
	g.neighbors[idx][level] = append(g.neighbors[idx][level], selected...)
	for _, n := range selected {
		if level >= len(g.neighbors[n]) {
			continue
		}
		g.neighbors[n][level] = append(g.neighbors[n][level], idx)
		if len(g.neighbors[n][level]) > m {
			g.prune(n, level, m)
		}
	}
}

// prune keeps the m links of idx closest to it.
func (g *graph) prune(idx uint32, level, m int) {
	links := g.neighbors[idx][level]
	items := make([]distItem, len(links))
	for i, n := range links {
		items[i] = distItem{idx: n, dist: SquaredL2(g.vectors[idx], g.vectors[n])}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].less(items[j]) })

	kept := make([]uint32, m)
	for i := range kept {
		kept[i] = items[i].idx
	}
	g.neighbors[idx][level] = kept
}

// search returns up to ef candidate positions for query.
func (g *graph) search(query []float32, ef int) []uint32 {
	if g.entryPoint < 0 {
		return nil
	}
	curr := uint32(g.entryPoint)
	for l := g.maxLevel; l > 0; l-- {
		curr = g.greedy(query, curr, l)
	}
	return g.searchLayer(query, curr, ef, 0)
}
