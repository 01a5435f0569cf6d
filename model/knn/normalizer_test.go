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
	"context"
	"math"
	"testing"

	"github.com/gorse-io/usercf/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	a := dataset.RatingVector{1: 1, 2: 2, 3: 3}
	b := dataset.RatingVector{1: 2, 2: 4, 3: 6, 4: 1}
	c := dataset.RatingVector{5: 1}

	assert.InDelta(t, 1, PearsonSimilarity{}.Similarity(1, a, 2, b), epsilon)
	assert.True(t, math.IsNaN(PearsonSimilarity{}.Similarity(1, a, 3, c)))

	assert.InDelta(t, 28/(math.Sqrt(14)*math.Sqrt(57)), CosineSimilarity{}.Similarity(1, a, 2, b), epsilon)
	assert.Zero(t, CosineSimilarity{}.Similarity(1, a, 3, c))

	assert.InDelta(t, 1.0/(14.0/3+1), MSDSimilarity{}.Similarity(1, a, 2, b), epsilon)
	assert.InDelta(t, 1, MSDSimilarity{}.Similarity(1, a, 1, a), epsilon)
	assert.True(t, math.IsNaN(MSDSimilarity{}.Similarity(1, a, 3, c)))

	d := dataset.RatingVector{1: 1, 2: 10, 3: 100}
	assert.InDelta(t, 1, SpearmanSimilarity{}.Similarity(1, a, 4, d), epsilon)
	e := dataset.RatingVector{1: 3, 2: 2, 3: 1}
	assert.InDelta(t, -1, SpearmanSimilarity{}.Similarity(1, a, 5, e), epsilon)

	for _, sim := range []Similarity{PearsonSimilarity{}, CosineSimilarity{}, MSDSimilarity{}, SpearmanSimilarity{}} {
		assert.True(t, sim.IsSparse())
		// symmetric
		assert.InDelta(t, sim.Similarity(1, a, 2, b), sim.Similarity(2, b, 1, a), epsilon)
	}
}

func TestRank(t *testing.T) {
	assert.Equal(t, []float64{3.5, 1, 3.5, 2}, rank([]float64{3, 1, 3, 2}))
	assert.Empty(t, rank(nil))
}

func TestThreshold(t *testing.T) {
	assert.True(t, RealThreshold{Value: 0.1}.Accept(0.2))
	assert.False(t, RealThreshold{Value: 0.1}.Accept(0.1))
	assert.False(t, RealThreshold{Value: 0.1}.Accept(-0.5))
	assert.True(t, AbsoluteThreshold{Value: 0.1}.Accept(-0.5))
	assert.False(t, AbsoluteThreshold{Value: 0.1}.Accept(0.05))
	assert.True(t, NoThreshold{}.Accept(-1))
}

func TestBaselineNormalizer(t *testing.T) {
	store := dataset.NewDatasetFromRatings([]dataset.Rating{
		{UserId: 1, ItemId: 1, Value: 5},
		{UserId: 1, ItemId: 2, Value: 3},
		{UserId: 2, ItemId: 1, Value: 4},
	})
	normalizer, err := FitBaselineNormalizer(context.Background(), store, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4, normalizer.GlobalMean, epsilon)
	assert.InDelta(t, 0.5, normalizer.ItemBias[1], epsilon)
	assert.InDelta(t, -1, normalizer.ItemBias[2], epsilon)

	reference := dataset.RatingVector{1: 5, 2: 3}
	normalized := normalizer.Normalize(1, reference, nil)
	assert.InDelta(t, 0.25, normalized[1], epsilon)
	assert.InDelta(t, -0.25, normalized[2], epsilon)
	// item dependent inverse
	restored := normalizer.InverseTransform(1, reference).Apply(dataset.RatingVector{1: 0, 2: 0})
	assert.InDelta(t, 4.75, restored[1], epsilon)
	assert.InDelta(t, 3.25, restored[2], epsilon)

	empty, err := FitBaselineNormalizer(context.Background(), dataset.NewDataset(), 5)
	require.NoError(t, err)
	assert.Zero(t, empty.GlobalMean)
}

func TestNormalizerRoundTrip(t *testing.T) {
	store := dataset.NewDatasetFromRatings([]dataset.Rating{
		{UserId: 1, ItemId: 1, Value: 5},
		{UserId: 1, ItemId: 2, Value: 3},
		{UserId: 2, ItemId: 1, Value: 4},
		{UserId: 2, ItemId: 3, Value: 1},
	})
	baseline, err := FitBaselineNormalizer(context.Background(), store, 2)
	require.NoError(t, err)
	reference := dataset.RatingVector{1: 5, 2: 3, 3: 1}
	target := dataset.RatingVector{1: 2, 3: 4}
	for _, normalizer := range []Normalizer{IdentityNormalizer{}, MeanCenteringNormalizer{}, ZScoreNormalizer{}, baseline} {
		normalized := normalizer.Normalize(1, reference, target)
		assert.Len(t, normalized, 2)
		restored := normalizer.InverseTransform(1, reference).Apply(normalized)
		assert.InDelta(t, 2, restored[1], epsilon)
		assert.InDelta(t, 4, restored[3], epsilon)
		// inputs are untouched
		assert.Equal(t, dataset.RatingVector{1: 2, 3: 4}, target)
		// nil target normalizes the reference
		assert.Len(t, normalizer.Normalize(1, reference, nil), 3)
	}
	normalized := MeanCenteringNormalizer{}.Normalize(1, reference, nil)
	assert.Equal(t, dataset.RatingVector{1: 2, 2: 0, 3: -2}, normalized)
}

func TestRegistry(t *testing.T) {
	for _, name := range []SimilarityName{Pearson, Cosine, MSD, Spearman} {
		_, err := NewSimilarity(name)
		assert.NoError(t, err)
	}
	_, err := NewSimilarity("jaccard")
	assert.True(t, IsConfigurationError(err))

	for _, name := range []NormalizerName{Identity, MeanCentering, ZScore, Baseline} {
		_, err := NewNormalizer(context.Background(), name, dataset.NewDataset(), 0)
		assert.NoError(t, err)
	}
	_, err = NewNormalizer(context.Background(), "minmax", dataset.NewDataset(), 0)
	assert.True(t, IsConfigurationError(err))

	for _, name := range []ThresholdName{RealThresholdName, AbsoluteThresholdName, NoThresholdName} {
		_, err := NewThreshold(name, 0)
		assert.NoError(t, err)
	}
	_, err = NewThreshold("top", 0)
	assert.True(t, IsConfigurationError(err))
}
