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

	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// NeighborFinder finds candidate neighbors of a target user.
type NeighborFinder interface {
	// FindCandidates returns the candidate neighbors of a user. The item scope is a hint;
	// implementations may ignore it.
	FindCandidates(ctx context.Context, userId int64, items []int64) (Neighbors, error)
}

// Neighbors is a single-pass cursor over candidate neighbors.
//
//	for neighbors.Next() {
//		n := neighbors.Neighbor()
//	}
//	if err := neighbors.Err(); err != nil { ... }
type Neighbors interface {
	Next() bool
	Neighbor() Neighbor
	Err() error
}

// LiveNeighborFinder computes similarities against every other user on demand.
type LiveNeighborFinder struct {
	store      RatingStore
	similarity Similarity
	normalizer Normalizer
	threshold  Threshold
}

// NewLiveNeighborFinder creates a finder. Only sparse similarity functions are supported.
func NewLiveNeighborFinder(store RatingStore, similarity Similarity, normalizer Normalizer, threshold Threshold) (*LiveNeighborFinder, error) {
	if !similarity.IsSparse() {
		return nil, errors.NotValidf("non-sparse similarity %T", similarity)
	}
	return &LiveNeighborFinder{
		store:      store,
		similarity: similarity,
		normalizer: normalizer,
		threshold:  threshold,
	}, nil
}

// FindCandidates scans every known user other than the target. Neighbors are computed
// lazily while the returned cursor advances. A user without ratings has no candidates.
// The candidate set does not depend on items.
func (f *LiveNeighborFinder) FindCandidates(ctx context.Context, userId int64, _ []int64) (Neighbors, error) {
	history, err := f.store.UserRatings(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(history) == 0 {
		return &liveNeighbors{}, nil
	}
	users, err := f.store.UserIds(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	candidates := make([]int64, 0, len(users))
	for _, candidate := range users {
		if candidate != userId {
			candidates = append(candidates, candidate)
		}
	}
	log.Logger().Debug("found candidate neighbors",
		zap.Int64("user_id", userId), zap.Int("n_candidates", len(candidates)))
	return &liveNeighbors{
		ctx:        ctx,
		finder:     f,
		userId:     userId,
		target:     f.normalizer.Normalize(userId, history, nil),
		candidates: candidates,
	}, nil
}

type liveNeighbors struct {
	ctx        context.Context
	finder     *LiveNeighborFinder
	userId     int64
	target     dataset.RatingVector
	candidates []int64
	pos        int
	current    Neighbor
	err        error
}

func (it *liveNeighbors) Next() bool {
	for it.err == nil && it.pos < len(it.candidates) {
		if err := it.ctx.Err(); err != nil {
			it.err = errors.Trace(err)
			break
		}
		candidate := it.candidates[it.pos]
		it.pos++
		ratings, err := it.finder.store.UserRatings(it.ctx, candidate)
		if err != nil {
			it.err = errors.Trace(err)
			break
		}
		if len(ratings) == 0 {
			continue
		}
		normalized := it.finder.normalizer.Normalize(candidate, ratings, ratings)
		sim := it.finder.similarity.Similarity(it.userId, it.target, candidate, normalized)
		if math.IsNaN(sim) || math.IsInf(sim, 0) || !it.finder.threshold.Accept(sim) {
			continue
		}
		it.current = Neighbor{UserId: candidate, Ratings: ratings, Similarity: sim}
		return true
	}
	it.current = Neighbor{}
	it.pos = len(it.candidates)
	return false
}

func (it *liveNeighbors) Neighbor() Neighbor {
	return it.current
}

func (it *liveNeighbors) Err() error {
	return it.err
}
