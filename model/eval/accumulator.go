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

package eval

import (
	"math"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// RunningStat is an online mean of a stream of values.
type RunningStat struct {
	Count int
	Sum   float64
}

// Add adds a value.
func (s *RunningStat) Add(value float64) {
	s.Count++
	s.Sum += value
}

// Merge adds all values of another stat.
func (s *RunningStat) Merge(other RunningStat) {
	s.Count += other.Count
	s.Sum += other.Sum
}

// Mean returns the mean of values, NaN if no value has been added.
func (s RunningStat) Mean() float64 {
	if s.Count == 0 {
		return math.NaN()
	}
	return s.Sum / float64(s.Count)
}

// ScoredItem is a test item with its estimated and actual ratings.
type ScoredItem struct {
	ItemId   int64
	Estimate float64
	Actual   float64
}

// DCG is the discounted cumulative gain of actual ratings with items ranked by estimates.
//
//	DCG = \sum^{N}_{r=1} \frac {actual_r} {\log_2(r+1)}
//
// Items with equal estimates keep their input order.
func DCG(items []ScoredItem) float64 {
	ranked := make([]ScoredItem, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Estimate > ranked[j].Estimate
	})
	return discountedGain(ranked)
}

// IdealDCG is the DCG of items ranked by actual ratings.
func IdealDCG(items []ScoredItem) float64 {
	ranked := make([]ScoredItem, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Actual > ranked[j].Actual
	})
	return discountedGain(ranked)
}

func discountedGain(ranked []ScoredItem) float64 {
	gain := 0.0
	for i, item := range ranked {
		gain += item.Actual / math.Log2(float64(i)+2)
	}
	return gain
}

// Accumulator collects rating prediction metrics. It is not safe for concurrent use.
type Accumulator struct {
	MAE           RunningStat
	DCG           RunningStat
	NDCG          RunningStat
	NeighborCount RunningStat
}

// AddError records the absolute error of one prediction made from n neighbors.
func (a *Accumulator) AddError(estimate, actual float64, neighborCount int) {
	a.MAE.Add(math.Abs(estimate - actual))
	a.NeighborCount.Add(float64(neighborCount))
}

// AddUser records ranking metrics of the predicted items of a user. A user without
// predictions is ignored. NDCG is skipped if the ideal DCG is zero.
func (a *Accumulator) AddUser(items []ScoredItem) {
	if len(items) == 0 {
		return
	}
	dcg := DCG(items)
	a.DCG.Add(dcg)
	if idealDCG := IdealDCG(items); idealDCG != 0 {
		a.NDCG.Add(dcg / idealDCG)
	}
}

// Merge adds all records of another accumulator.
func (a *Accumulator) Merge(other *Accumulator) {
	a.MAE.Merge(other.MAE)
	a.DCG.Merge(other.DCG)
	a.NDCG.Merge(other.NDCG)
	a.NeighborCount.Merge(other.NeighborCount)
}

// Precision is the fraction of relevant items among the recommended items.
//
//	\frac{|relevant documents| \cap |retrieved documents|} {|{retrieved documents}|}
func Precision(targetSet mapset.Set[int64], rankList []int64) float64 {
	if len(rankList) == 0 {
		return 0
	}
	return float64(hits(targetSet, rankList)) / float64(len(rankList))
}

// Recall is the fraction of relevant items that have been recommended.
//
//	\frac{|relevant documents| \cap |retrieved documents|} {|{relevant documents}|}
func Recall(targetSet mapset.Set[int64], rankList []int64) float64 {
	if targetSet.Cardinality() == 0 {
		return 0
	}
	return float64(hits(targetSet, rankList)) / float64(targetSet.Cardinality())
}

// F1 is the harmonic mean of precision and recall, 0 if both are 0.
func F1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// TopNDCG is the normalized discounted cumulative gain of a ranking with binary relevance.
func TopNDCG(targetSet mapset.Set[int64], rankList []int64) float64 {
	// IDCG = \sum^{|REL|}_{i=1} \frac {1} {\log_2(i+1)}
	idcg := 0.0
	for i := 0; i < targetSet.Cardinality() && i < len(rankList); i++ {
		idcg += 1.0 / math.Log2(float64(i)+2.0)
	}
	if idcg == 0 {
		return 0
	}
	// DCG = \sum^{N}_{i=1} \frac {rel_i} {\log_2(i+1)}
	dcg := 0.0
	for i, itemId := range rankList {
		if targetSet.Contains(itemId) {
			dcg += 1.0 / math.Log2(float64(i)+2.0)
		}
	}
	return dcg / idcg
}

func hits(targetSet mapset.Set[int64], rankList []int64) int {
	hit := 0
	for _, itemId := range rankList {
		if targetSet.Contains(itemId) {
			hit++
		}
	}
	return hit
}

// TopNAccumulator collects top-N recommendation metrics. It is not safe for concurrent use.
type TopNAccumulator struct {
	Precision RunningStat
	Recall    RunningStat
	NDCG      RunningStat
}

// AddUser records the metrics of the recommendations of a user.
func (a *TopNAccumulator) AddUser(targetSet mapset.Set[int64], rankList []int64) {
	a.Precision.Add(Precision(targetSet, rankList))
	a.Recall.Add(Recall(targetSet, rankList))
	a.NDCG.Add(TopNDCG(targetSet, rankList))
}

func (a *TopNAccumulator) Merge(other *TopNAccumulator) {
	a.Precision.Merge(other.Precision)
	a.Recall.Merge(other.Recall)
	a.NDCG.Merge(other.NDCG)
}
