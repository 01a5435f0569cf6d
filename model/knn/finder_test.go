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
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 0.00001

// mockStore serves fixed vectors. Users listed without ratings have empty vectors.
type mockStore struct {
	users   []int64
	ratings map[int64]dataset.RatingVector
	err     error
}

func (s *mockStore) UserRatings(_ context.Context, userId int64) (dataset.RatingVector, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.ratings[userId]; ok {
		return v.Clone(), nil
	}
	return dataset.RatingVector{}, nil
}

func (s *mockStore) UserIds(context.Context) ([]int64, error) {
	return s.users, nil
}

func (s *mockStore) ItemIds(context.Context) ([]int64, error) {
	return nil, nil
}

// fixedSimilarity returns a preset similarity for each candidate.
type fixedSimilarity struct {
	sims   map[int64]float64
	dense  bool
	called []int64
}

func (s *fixedSimilarity) IsSparse() bool {
	return !s.dense
}

func (s *fixedSimilarity) Similarity(_ int64, _ dataset.RatingVector, userB int64, _ dataset.RatingVector) float64 {
	s.called = append(s.called, userB)
	return s.sims[userB]
}

func collect(t *testing.T, neighbors Neighbors) []Neighbor {
	var result []Neighbor
	for neighbors.Next() {
		result = append(result, neighbors.Neighbor())
	}
	require.NoError(t, neighbors.Err())
	return result
}

func TestLiveNeighborFinder(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{
		users: []int64{1, 2, 3, 4, 5, 6},
		ratings: map[int64]dataset.RatingVector{
			1: {10: 4},
			2: {10: 5},
			3: {10: 3},
			4: {10: 1},
			6: {10: 2},
		},
	}
	sim := &fixedSimilarity{sims: map[int64]float64{2: 0.9, 3: math.NaN(), 4: -0.5, 5: 0.8, 6: math.Inf(1)}}
	finder, err := NewLiveNeighborFinder(store, sim, IdentityNormalizer{}, RealThreshold{})
	require.NoError(t, err)
	neighbors, err := finder.FindCandidates(ctx, 1, nil)
	require.NoError(t, err)
	result := collect(t, neighbors)
	// the target, users without ratings, non-finite and rejected similarities are skipped
	assert.Equal(t, []Neighbor{{UserId: 2, Ratings: dataset.RatingVector{10: 5}, Similarity: 0.9}}, result)
	assert.Equal(t, []int64{2, 3, 4, 6}, sim.called)
	// single pass
	assert.False(t, neighbors.Next())

	// empty history
	neighbors, err = finder.FindCandidates(ctx, 5, nil)
	require.NoError(t, err)
	assert.False(t, neighbors.Next())
	assert.NoError(t, neighbors.Err())
}

func TestLiveNeighborFinderLazy(t *testing.T) {
	store := &mockStore{
		users:   []int64{1, 2, 3, 4},
		ratings: map[int64]dataset.RatingVector{1: {10: 4}, 2: {10: 5}, 3: {10: 3}, 4: {10: 1}},
	}
	sim := &fixedSimilarity{sims: map[int64]float64{2: 0.9, 3: 0.7, 4: 0.5}}
	finder, err := NewLiveNeighborFinder(store, sim, IdentityNormalizer{}, NoThreshold{})
	require.NoError(t, err)
	neighbors, err := finder.FindCandidates(context.Background(), 1, []int64{10})
	require.NoError(t, err)
	assert.True(t, neighbors.Next())
	assert.Equal(t, int64(2), neighbors.Neighbor().UserId)
	// abandoned iteration leaves remaining candidates untouched
	assert.Equal(t, []int64{2}, sim.called)
}

func TestLiveNeighborFinderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &mockStore{
		users:   []int64{1, 2, 3},
		ratings: map[int64]dataset.RatingVector{1: {10: 4}, 2: {10: 5}, 3: {10: 3}},
	}
	finder, err := NewLiveNeighborFinder(store, &fixedSimilarity{}, IdentityNormalizer{}, NoThreshold{})
	require.NoError(t, err)
	neighbors, err := finder.FindCandidates(ctx, 1, nil)
	require.NoError(t, err)
	cancel()
	assert.False(t, neighbors.Next())
	assert.ErrorIs(t, neighbors.Err(), context.Canceled)
}

func TestLiveNeighborFinderStoreError(t *testing.T) {
	store := &mockStore{err: errors.New("connection refused")}
	finder, err := NewLiveNeighborFinder(store, &fixedSimilarity{}, IdentityNormalizer{}, NoThreshold{})
	require.NoError(t, err)
	_, err = finder.FindCandidates(context.Background(), 1, nil)
	assert.ErrorContains(t, err, "connection refused")
}

func TestNonSparseSimilarity(t *testing.T) {
	_, err := NewLiveNeighborFinder(&mockStore{}, &fixedSimilarity{dense: true}, IdentityNormalizer{}, NoThreshold{})
	assert.True(t, IsConfigurationError(err))
}

func TestNeighborhoodPool(t *testing.T) {
	pool := NewNeighborhoodPool(3)
	for i, sim := range []float64{0.1, 0.5, 0.3, 0.9, 0.2, 0.7} {
		pool.Add(Neighbor{UserId: int64(i), Similarity: sim})
		assert.LessOrEqual(t, pool.Len(), 3)
	}
	neighbors := pool.Neighbors()
	assert.Equal(t, []int64{3, 5, 1}, []int64{neighbors[0].UserId, neighbors[1].UserId, neighbors[2].UserId})
	assert.Equal(t, []float64{0.9, 0.7, 0.5}, []float64{neighbors[0].Similarity, neighbors[1].Similarity, neighbors[2].Similarity})
}
