package boosted

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/inferloop/tsforecast/pkg/constants"
)

// GBMConfig contains gradient boosting hyperparameters
type GBMConfig struct {
	Estimators     int     `json:"estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Lambda         float64 `json:"lambda"`
	MinChildWeight float64 `json:"min_child_weight"`
	Subsample      float64 `json:"subsample"`
	Seed           int64   `json:"seed"`
}

// Node is one split or leaf of a regression tree. Rows with
// x[Feature] <= Threshold go left.
type Node struct {
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a regression tree stored as a flat node list rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for one row
func (t *Tree) Predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of split levels
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}

// Ensemble is a fitted additive model: Base + LearningRate * sum(trees)
type Ensemble struct {
	Base         float64 `json:"base"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []*Tree `json:"trees"`
}

// Predict scores one row
func (e *Ensemble) Predict(row []float64) float64 {
	sum := 0.0
	for _, t := range e.Trees {
		sum += t.Predict(row)
	}
	return e.Base + e.LearningRate*sum
}

// TrainGBM fits squared-error gradient boosted trees. Splits are found by
// exact greedy search over sorted feature values and leaf weights are
// -G/(H+lambda). Training is deterministic for a given seed.
func TrainGBM(x [][]float64, y []float64, config *GBMConfig) (*Ensemble, error) {
	if config == nil {
		config = defaultGBMConfig()
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("cannot train on empty matrix")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("matrix has %d rows but %d targets", len(x), len(y))
	}
	if config.Estimators <= 0 || config.MaxDepth <= 0 {
		return nil, fmt.Errorf("estimators and max depth must be positive")
	}

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	ensemble := &Ensemble{
		Base:         base,
		LearningRate: config.LearningRate,
		Trees:        make([]*Tree, 0, config.Estimators),
	}

	rng := rand.New(rand.NewSource(config.Seed))
	pred := make([]float64, len(y))
	grad := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}

	for round := 0; round < config.Estimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}

		b := &treeBuilder{x: x, grad: grad, config: config}
		b.build(sampleRows(len(y), config.Subsample, rng), 0)
		tree := &Tree{Nodes: b.nodes}
		ensemble.Trees = append(ensemble.Trees, tree)

		for i, row := range x {
			pred[i] += config.LearningRate * tree.Predict(row)
		}
	}

	return ensemble, nil
}

// sampleRows draws the row subset for one tree; a fraction >= 1 keeps every row
func sampleRows(n int, fraction float64, rng *rand.Rand) []int {
	rows := make([]int, 0, n)
	if fraction <= 0 || fraction >= 1 {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
		return rows
	}
	for i := 0; i < n; i++ {
		if rng.Float64() < fraction {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

type treeBuilder struct {
	x      [][]float64
	grad   []float64
	config *GBMConfig
	nodes  []Node
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(rows []int, depth int) int {
	g := 0.0
	for _, i := range rows {
		g += b.grad[i]
	}
	h := float64(len(rows))

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Value: -g / (h + b.config.Lambda)})

	if depth >= b.config.MaxDepth || len(rows) < 2 {
		return id
	}

	best, ok := b.bestSplit(rows, g, h)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range rows {
		if b.x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id] = Node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      l,
		Right:     r,
	}
	return id
}

func (b *treeBuilder) bestSplit(rows []int, g, h float64) (split, bool) {
	lambda := b.config.Lambda
	minChild := math.Max(b.config.MinChildWeight, 1)
	parent := g * g / (h + lambda)

	best := split{gain: 1e-9}
	found := false

	sorted := make([]int, len(rows))
	width := len(b.x[rows[0]])
	for j := 0; j < width; j++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.x[sorted[a]][j] < b.x[sorted[c]][j]
		})

		gl, hl := 0.0, 0.0
		for k := 0; k < len(sorted)-1; k++ {
			gl += b.grad[sorted[k]]
			hl++

			lo, hi := b.x[sorted[k]][j], b.x[sorted[k+1]][j]
			if lo == hi {
				continue
			}
			hr := h - hl
			if hl < minChild || hr < minChild {
				continue
			}
			gr := g - gl

			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > best.gain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: j, threshold: threshold, gain: gain}
				found = true
			}
		}
	}

	return best, found
}

func defaultGBMConfig() *GBMConfig {
	return &GBMConfig{
		Estimators:     constants.DefaultEstimators,
		MaxDepth:       constants.DefaultMaxDepth,
		LearningRate:   constants.DefaultLearningRate,
		Lambda:         constants.DefaultLambda,
		MinChildWeight: 1,
		Subsample:      1,
		Seed:           constants.DefaultBoostSeed,
	}
}
