package classifier

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Node is a CART tree node. Leaves carry the fraction of positive samples.
type Node struct {
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
	Proba     float64 `json:"proba"`
}

func (n *Node) leaf() bool { return n.Left == nil }

func (n *Node) predict(x []float64) float64 {
	for !n.leaf() {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Proba
}

// ForestConfig controls fitting.
type ForestConfig struct {
	Trees           int
	Seed            int64
	MaxDepth        int // 0 grows until leaves are pure
	MinSamplesSplit int
	Workers         int
}

// Forest is a bagged ensemble of CART trees using gini impurity and a random
// sqrt(features) subset at every split.
type Forest struct {
	Features int     `json:"features"`
	Trees    []*Node `json:"trees"`
}

var ErrEmptyTrainingSet = errors.New("empty training set")

const maxDepthCap = 64

// Fit trains a forest. Each tree draws from its own seeded source so results
// do not depend on scheduling.
func Fit(ctx context.Context, x [][]float64, y []int, cfg ForestConfig) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, ErrEmptyTrainingSet
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MaxDepth <= 0 || cfg.MaxDepth > maxDepthCap {
		cfg.MaxDepth = maxDepthCap
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	seeder := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15))
	seeds := make([]uint64, cfg.Trees)
	for i := range seeds {
		seeds[i] = seeder.Uint64()
	}

	nf := len(x[0])
	f := &Forest{Features: nf, Trees: make([]*Node, cfg.Trees)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range cfg.Trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := &treeBuilder{
				x:        x,
				y:        y,
				r:        rand.New(rand.NewPCG(seeds[i], uint64(i))),
				mtry:     max(1, int(math.Sqrt(float64(nf)))),
				minSplit: cfg.MinSamplesSplit,
				maxDepth: cfg.MaxDepth,
			}
			f.Trees[i] = b.build(b.bootstrap(), 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// PredictProba returns the mean positive-class probability across trees.
func (f *Forest) PredictProba(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.Trees))
}

// Predict returns 1 when the conflict class is more likely.
func (f *Forest) Predict(x []float64) int {
	if f.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}

// Accuracy is the fraction of rows predicted correctly.
func (f *Forest) Accuracy(x [][]float64, y []int) float64 {
	if len(x) == 0 {
		return 0
	}
	correct := 0
	for i := range x {
		if f.Predict(x[i]) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}

type treeBuilder struct {
	x        [][]float64
	y        []int
	r        *rand.Rand
	mtry     int
	minSplit int
	maxDepth int
}

func (b *treeBuilder) bootstrap() []int {
	idx := make([]int, len(b.x))
	for i := range idx {
		idx[i] = b.r.IntN(len(b.x))
	}
	return idx
}

func (b *treeBuilder) build(idx []int, depth int) *Node {
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	node := &Node{Proba: float64(pos) / float64(len(idx))}
	if pos == 0 || pos == len(idx) || len(idx) < b.minSplit || depth >= b.maxDepth {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx, pos)
	if !ok {
		return node
	}
	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.Feature = feature
	node.Threshold = threshold
	node.Left = b.build(left, depth+1)
	node.Right = b.build(right, depth+1)
	return node
}

// bestSplit searches mtry random features for the threshold with the lowest
// weighted gini impurity. Features are drawn until one yields a valid split.
func (b *treeBuilder) bestSplit(idx []int, pos int) (int, float64, bool) {
	nf := len(b.x[0])
	order := b.r.Perm(nf)
	n := float64(len(idx))
	bestScore := gini(float64(pos), n)
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, len(idx))
	for tried, feature := range order {
		if tried >= b.mtry && found {
			break
		}
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][feature] < b.x[sorted[j]][feature] })

		leftPos := 0.0
		for k := 0; k < len(sorted)-1; k++ {
			leftPos += float64(b.y[sorted[k]])
			cur, next := b.x[sorted[k]][feature], b.x[sorted[k+1]][feature]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			score := (nl*gini(leftPos, nl) + nr*gini(float64(pos)-leftPos, nr)) / n
			if score < bestScore {
				bestScore = score
				bestFeature = feature
				bestThreshold = cur + (next-cur)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func gini(pos, n float64) float64 {
	if n == 0 {
		return 0
	}
	p := pos / n
	return 2 * p * (1 - p)
}
