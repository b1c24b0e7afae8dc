package service

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// ForestConfig задает параметры isolation forest
type ForestConfig struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// DefaultForestConfig возвращает параметры по умолчанию: 100 деревьев, выборка 256, contamination 0.1, seed 42
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:         100,
		SampleSize:    256,
		Contamination: 0.1,
		Seed:          42,
	}
}

// IsolationForest - ансамбль деревьев изоляции для одномерного ряда.
// После обучения модель неизменяема и безопасна для конкурентного чтения.
type IsolationForest struct {
	trees      []*isolationNode
	sampleSize int
	threshold  float64
}

type isolationNode struct {
	split       float64
	left, right *isolationNode
	size        int
}

// TrainIsolationForest обучает модель на data.
// Порог аномальности - квантиль обучающих оценок на уровне 1-contamination.
func TrainIsolationForest(data []float64, cfg ForestConfig) (*IsolationForest, error) {
	if len(data) < 2 {
		return nil, errors.New("isolation forest needs at least 2 points")
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 256
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 0.5 {
		return nil, errors.New("contamination must be in (0, 0.5)")
	}

	psi := cfg.SampleSize
	if psi > len(data) {
		psi = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))

	rng := rand.New(rand.NewSource(cfg.Seed))
	forest := &IsolationForest{
		trees:      make([]*isolationNode, 0, cfg.Trees),
		sampleSize: psi,
	}

	sample := make([]float64, psi)
	for i := 0; i < cfg.Trees; i++ {
		for j, idx := range rng.Perm(len(data))[:psi] {
			sample[j] = data[idx]
		}
		forest.trees = append(forest.trees, buildIsolationTree(sample, 0, heightLimit, rng))
	}

	scores := make([]float64, len(data))
	for i, v := range data {
		scores[i] = forest.Score(v)
	}
	forest.threshold = percentile(scores, 1-cfg.Contamination)

	return forest, nil
}

func buildIsolationTree(points []float64, depth, limit int, rng *rand.Rand) *isolationNode {
	if len(points) <= 1 || depth >= limit {
		return &isolationNode{size: len(points)}
	}

	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	if lo == hi {
		return &isolationNode{size: len(points)}
	}

	split := lo + rng.Float64()*(hi-lo)
	left := make([]float64, 0, len(points))
	right := make([]float64, 0, len(points))
	for _, p := range points {
		if p < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}

	return &isolationNode{
		split: split,
		left:  buildIsolationTree(left, depth+1, limit, rng),
		right: buildIsolationTree(right, depth+1, limit, rng),
	}
}

// Score возвращает оценку аномальности в (0, 1]; чем ближе к 1, тем аномальнее
func (f *IsolationForest) Score(x float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}

	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, x, 0)
	}
	mean := total / float64(len(f.trees))

	norm := averagePathLength(f.sampleSize)
	if norm == 0 {
		return 0
	}
	return math.Pow(2, -mean/norm)
}

// IsAnomaly сообщает, что оценка x строго выше порога обучения
func (f *IsolationForest) IsAnomaly(x float64) bool {
	return f.Score(x) > f.threshold
}

// Threshold возвращает порог, вычисленный при обучении
func (f *IsolationForest) Threshold() float64 {
	return f.threshold
}

func pathLength(node *isolationNode, x float64, depth int) float64 {
	for node.left != nil {
		if x < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// averagePathLength - средняя длина пути неуспешного поиска в BST из n элементов
func averagePathLength(n int) float64 {
	switch {
	case n > 2:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	case n == 2:
		return 1
	default:
		return 0
	}
}

// percentile с линейной интерполяцией, q в [0, 1]
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
