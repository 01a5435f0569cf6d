// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knn

import (
	"math"
	"sort"

	"github.com/gorse-io/usercf/dataset"
)

// Similarity computes the symmetric similarity of two normalized rating vectors.
type Similarity interface {
	// IsSparse reports whether items missing from a vector are treated as unknown rather
	// than as zero ratings.
	IsSparse() bool
	Similarity(userA int64, a dataset.RatingVector, userB int64, b dataset.RatingVector) float64
}

// CosineSimilarity computes the cosine of the angle between two vectors.
type CosineSimilarity struct{}

func (CosineSimilarity) IsSparse() bool {
	return true
}

func (CosineSimilarity) Similarity(_ int64, a dataset.RatingVector, _ int64, b dataset.RatingVector) float64 {
	dot := 0.0
	a.Intersect(b, func(_ int64, x, y float64) {
		dot += x * y
	})
	return dot / (a.Norm() * b.Norm())
}

// PearsonSimilarity computes the Pearson correlation over co-rated items.
type PearsonSimilarity struct{}

func (PearsonSimilarity) IsSparse() bool {
	return true
}

func (PearsonSimilarity) Similarity(_ int64, a dataset.RatingVector, _ int64, b dataset.RatingVector) float64 {
	var xs, ys []float64
	a.Intersect(b, func(_ int64, x, y float64) {
		xs = append(xs, x)
		ys = append(ys, y)
	})
	return pearson(xs, ys)
}

// MSDSimilarity computes the Mean Squared Difference similarity over co-rated items.
type MSDSimilarity struct{}

func (MSDSimilarity) IsSparse() bool {
	return true
}

func (MSDSimilarity) Similarity(_ int64, a dataset.RatingVector, _ int64, b dataset.RatingVector) float64 {
	count, sum := 0.0, 0.0
	a.Intersect(b, func(_ int64, x, y float64) {
		sum += (x - y) * (x - y)
		count++
	})
	return 1.0 / (sum/count + 1)
}

// SpearmanSimilarity computes the Pearson correlation of the ranks of co-rated items.
type SpearmanSimilarity struct{}

func (SpearmanSimilarity) IsSparse() bool {
	return true
}

func (SpearmanSimilarity) Similarity(_ int64, a dataset.RatingVector, _ int64, b dataset.RatingVector) float64 {
	var xs, ys []float64
	a.Intersect(b, func(_ int64, x, y float64) {
		xs = append(xs, x)
		ys = append(ys, y)
	})
	return pearson(rank(xs), rank(ys))
}

func pearson(xs, ys []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	meanX, meanY := 0.0, 0.0
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= float64(len(xs))
	meanY /= float64(len(ys))
	m, n, l := .0, .0, .0
	for i := range xs {
		x, y := xs[i]-meanX, ys[i]-meanY
		m += x * x
		n += y * y
		l += x * y
	}
	return l / (math.Sqrt(m) * math.Sqrt(n))
}

// rank returns fractional ranks starting from 1. Tied values share their average rank.
func rank(values []float64) []float64 {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return values[order[i]] < values[order[j]]
	})
	ranks := make([]float64, len(values))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && values[order[j+1]] == values[order[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = r
		}
		i = j + 1
	}
	return ranks
}
