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
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Prediction is the predicted rating of an item together with its diagnostics.
type Prediction struct {
	ItemId int64
	// RawScore is the weighted average in the normalized space.
	RawScore float64
	// Score is RawScore mapped back to the rating scale of the target user.
	Score         float64
	NeighborCount int
	TotalWeight   float64
}

// Predictor predicts ratings from one neighborhood of the most similar users.
type Predictor struct {
	store            RatingStore
	finder           NeighborFinder
	normalizer       Normalizer
	neighborhoodSize int
	minNeighbors     int
}

// NewPredictor creates a predictor. The neighborhood size must be positive and the minimum
// number of neighbors must not be negative.
func NewPredictor(store RatingStore, finder NeighborFinder, normalizer Normalizer, neighborhoodSize, minNeighbors int) (*Predictor, error) {
	if neighborhoodSize <= 0 {
		return nil, errors.NotValidf("neighborhood size %d", neighborhoodSize)
	}
	if minNeighbors < 0 {
		return nil, errors.NotValidf("minimum number of neighbors %d", minNeighbors)
	}
	return &Predictor{
		store:            store,
		finder:           finder,
		normalizer:       normalizer,
		neighborhoodSize: neighborhoodSize,
		minNeighbors:     minNeighbors,
	}, nil
}

// Predict predicts ratings of items for a user. Items lacking enough neighbors or with zero
// total weight are absent from the result. A user without ratings gets an empty result.
func (p *Predictor) Predict(ctx context.Context, userId int64, items []int64) (map[int64]Prediction, error) {
	results := make(map[int64]Prediction)
	history, err := p.store.UserRatings(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(history) == 0 || len(items) == 0 {
		return results, nil
	}

	// select the global neighborhood
	candidates, err := p.finder.FindCandidates(ctx, userId, items)
	if err != nil {
		return nil, errors.Trace(err)
	}
	pool := NewNeighborhoodPool(p.neighborhoodSize)
	for candidates.Next() {
		pool.Add(candidates.Neighbor())
	}
	if err = candidates.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	neighbors := pool.Neighbors()

	// normalize each neighbor once
	normalized := make(map[int64]dataset.RatingVector, len(neighbors))
	for _, n := range neighbors {
		if _, ok := normalized[n.UserId]; !ok {
			normalized[n.UserId] = p.normalizer.Normalize(n.UserId, n.Ratings, n.Ratings)
		}
	}

	rawScores := make(dataset.RatingVector)
	for _, itemId := range lo.Uniq(items) {
		weight, sum, count := 0.0, 0.0, 0
		for _, n := range neighbors {
			value, ok := normalized[n.UserId][itemId]
			if !ok {
				continue
			}
			weight += math.Abs(n.Similarity)
			sum += n.Similarity * value
			count++
		}
		if count < p.minNeighbors || weight <= 0 {
			continue
		}
		rawScores[itemId] = sum / weight
		results[itemId] = Prediction{
			ItemId:        itemId,
			RawScore:      sum / weight,
			NeighborCount: count,
			TotalWeight:   weight,
		}
	}

	scores := p.normalizer.InverseTransform(userId, history).Apply(rawScores)
	for itemId, prediction := range results {
		prediction.Score = scores[itemId]
		results[itemId] = prediction
		log.Logger().Debug("predicted rating",
			zap.Int64("user_id", userId),
			zap.Int64("item_id", itemId),
			zap.Float64("score", prediction.Score),
			zap.Int("n_neighbors", prediction.NeighborCount))
	}
	return results, nil
}
