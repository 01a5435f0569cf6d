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

	"github.com/gorse-io/usercf/common/heap"
	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Config is the configuration of a user-based nearest neighbor model.
type Config struct {
	NeighborhoodSize int
	MinNeighbors     int
	Similarity       SimilarityName
	Normalizer       NormalizerName
	Threshold        ThresholdName
	ThresholdValue   float64
	BaselineDamping  float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		NeighborhoodSize: 30,
		MinNeighbors:     2,
		Similarity:       Pearson,
		Normalizer:       MeanCentering,
		Threshold:        RealThresholdName,
		BaselineDamping:  5,
	}
}

// Recommendation is an item recommended to a user.
type Recommendation struct {
	ItemId int64
	Score  float64
}

// Recommender is a model trained on a fixed dataset. It is safe for concurrent use.
type Recommender struct {
	train     *dataset.Dataset
	predictor *Predictor
}

// Builder trains recommenders.
type Builder struct {
	config Config
}

func NewBuilder(config Config) *Builder {
	return &Builder{config: config}
}

// Build trains a recommender on a dataset. The dataset must not be modified afterwards.
func (b *Builder) Build(ctx context.Context, train *dataset.Dataset) (*Recommender, error) {
	similarity, err := NewSimilarity(b.config.Similarity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	normalizer, err := NewNormalizer(ctx, b.config.Normalizer, train, b.config.BaselineDamping)
	if err != nil {
		return nil, errors.Trace(err)
	}
	threshold, err := NewThreshold(b.config.Threshold, b.config.ThresholdValue)
	if err != nil {
		return nil, errors.Trace(err)
	}
	finder, err := NewLiveNeighborFinder(train, similarity, normalizer, threshold)
	if err != nil {
		return nil, errors.Trace(err)
	}
	predictor, err := NewPredictor(train, finder, normalizer, b.config.NeighborhoodSize, b.config.MinNeighbors)
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("build user-based recommender",
		zap.Int("n_users", train.CountUsers()),
		zap.Int("n_items", train.CountItems()),
		zap.Int("n_ratings", train.CountRatings()),
		zap.Any("config", b.config))
	return &Recommender{train: train, predictor: predictor}, nil
}

// Predict predicts ratings of items for a user in the training data. Items missing from
// the training data are skipped.
func (r *Recommender) Predict(ctx context.Context, userId int64, items []int64) (map[int64]Prediction, error) {
	if !r.train.ContainsUser(userId) {
		return nil, errors.NotFoundf("user %d", userId)
	}
	known := make([]int64, 0, len(items))
	for _, itemId := range items {
		if r.train.ContainsItem(itemId) {
			known = append(known, itemId)
		}
	}
	return r.predictor.Predict(ctx, userId, known)
}

// Recommend returns at most n items the user has not rated, ordered by predicted score.
func (r *Recommender) Recommend(ctx context.Context, userId int64, n int) ([]Recommendation, error) {
	if !r.train.ContainsUser(userId) {
		return nil, errors.NotFoundf("user %d", userId)
	}
	history, err := r.train.UserRatings(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var candidates []int64
	for _, itemId := range r.train.Items() {
		if !history.Contains(itemId) {
			candidates = append(candidates, itemId)
		}
	}
	predictions, err := r.predictor.Predict(ctx, userId, candidates)
	if err != nil {
		return nil, errors.Trace(err)
	}
	filter := heap.NewTopKFilter[int64, float64](n)
	for _, itemId := range candidates {
		if prediction, ok := predictions[itemId]; ok {
			filter.Push(itemId, prediction.Score)
		}
	}
	elems := filter.PopAll()
	recommendations := make([]Recommendation, len(elems))
	for i, elem := range elems {
		recommendations[i] = Recommendation{ItemId: elem.Value, Score: elem.Weight}
	}
	return recommendations, nil
}
