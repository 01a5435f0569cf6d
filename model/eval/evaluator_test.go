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
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/gorse-io/usercf/dataset"
	"github.com/gorse-io/usercf/model/knn"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type mockModel struct {
	predictions     map[int64]map[int64]float64
	recommendations map[int64][]int64
	failUser        int64
	delay           time.Duration
	ignoreCancel    bool
	calls           atomic.Int32
}

func (m *mockModel) Predict(ctx context.Context, userId int64, items []int64) (map[int64]knn.Prediction, error) {
	m.calls.Inc()
	if m.delay > 0 {
		if m.ignoreCancel {
			time.Sleep(m.delay)
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.delay):
			}
		}
	}
	if userId == m.failUser {
		return nil, errors.New("disk failure")
	}
	scores, ok := m.predictions[userId]
	if !ok {
		return nil, errors.NotFoundf("user %d", userId)
	}
	results := make(map[int64]knn.Prediction)
	for _, itemId := range items {
		if score, ok := scores[itemId]; ok {
			results[itemId] = knn.Prediction{ItemId: itemId, Score: score, RawScore: score, NeighborCount: 3, TotalWeight: 1}
		}
	}
	return results, nil
}

func (m *mockModel) Recommend(_ context.Context, userId int64, n int) ([]knn.Recommendation, error) {
	items, ok := m.recommendations[userId]
	if !ok {
		return nil, errors.NotFoundf("user %d", userId)
	}
	var recommendations []knn.Recommendation
	for i, itemId := range items {
		if i < n {
			recommendations = append(recommendations, knn.Recommendation{ItemId: itemId, Score: float64(len(items) - i)})
		}
	}
	return recommendations, nil
}

func builderOf(model *mockModel) ModelBuilder {
	return func(context.Context, *dataset.Dataset) (Model, error) {
		return model, nil
	}
}

func testDataset() *dataset.Dataset {
	test := dataset.NewDataset()
	for _, userId := range []int64{1, 2} {
		test.AddRating(userId, 1001, 4)
		test.AddRating(userId, 1002, 5)
		test.AddRating(userId, 1003, 3)
		test.AddRating(userId, 1004, 3)
	}
	test.AddRating(3, 1001, 4)
	test.AddRating(4, 2001, 2)
	return test
}

func testModel() *mockModel {
	return &mockModel{
		predictions: map[int64]map[int64]float64{
			1: {1001: 4.2, 1002: 4.3, 1003: 4.5, 1004: 2.8},
			2: {1001: 4.2, 1002: 6.0, 1003: 4.0, 1004: 2.8},
			4: {},
		},
		recommendations: map[int64][]int64{
			1: {1001, 5000, 1002},
			2: {},
		},
	}
}

func TestEvaluate(t *testing.T) {
	evaluator := NewEvaluator()
	evaluator.MinPreference = 1
	evaluator.MaxPreference = 5
	evaluator.Jobs = 4
	var mu sync.Mutex
	done := 0
	evaluator.OnUserDone = func() {
		mu.Lock()
		defer mu.Unlock()
		done++
	}
	result, err := evaluator.Evaluate(context.Background(), builderOf(testModel()), dataset.NewDataset(), testDataset())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Users)
	assert.Equal(t, 4, done)
	assert.InDelta(t, 0.5, result.MAE, evalEpsilon)
	assert.InDelta(t, 9.88121, result.DCG, evalEpsilon)
	assert.InDelta(t, 0.95788, result.NDCG, evalEpsilon)
	assert.Equal(t, int64(2), result.NoEstimates)
	assert.Equal(t, 8, result.Ratings)
	assert.InDelta(t, 3, result.MeanNeighborCount, evalEpsilon)
}

func TestEvaluateManyWorkers(t *testing.T) {
	test := dataset.NewDataset()
	model := &mockModel{predictions: make(map[int64]map[int64]float64)}
	for userId := int64(1); userId <= 8; userId++ {
		model.predictions[userId] = make(map[int64]float64)
		for itemId := int64(1); itemId <= 1000; itemId++ {
			test.AddRating(userId, itemId, 3)
			model.predictions[userId][itemId] = 4
		}
	}
	evaluator := NewEvaluator()
	evaluator.Jobs = 8
	result, err := evaluator.Evaluate(context.Background(), builderOf(model), dataset.NewDataset(), test)
	require.NoError(t, err)
	assert.Equal(t, 8, result.Users)
	assert.Equal(t, 8000, result.Ratings)
	assert.Zero(t, result.NoEstimates)
	assert.InDelta(t, 1, result.MAE, evalEpsilon)
	assert.InDelta(t, 3, result.MeanNeighborCount, evalEpsilon)
}

func TestEvaluateSequential(t *testing.T) {
	evaluator := NewEvaluator()
	evaluator.MinPreference = 1
	evaluator.MaxPreference = 5
	evaluator.Jobs = 1
	result, err := evaluator.Evaluate(context.Background(), builderOf(testModel()), dataset.NewDataset(), testDataset())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.MAE, evalEpsilon)
	assert.Equal(t, int64(2), result.NoEstimates)
}

func TestEvaluateUnbounded(t *testing.T) {
	result, err := NewEvaluator().Evaluate(context.Background(), builderOf(testModel()), dataset.NewDataset(), testDataset())
	require.NoError(t, err)
	// 6.0 is not clamped: (2.6 + 0.2 + 1.0 + 1.0 + 0.2) / 8
	assert.InDelta(t, 0.625, result.MAE, evalEpsilon)
}

func TestEvaluateFailure(t *testing.T) {
	model := testModel()
	model.failUser = 2
	_, err := NewEvaluator().Evaluate(context.Background(), builderOf(model), dataset.NewDataset(), testDataset())
	assert.ErrorContains(t, err, "disk failure")
	// remaining tasks still run
	assert.Equal(t, int32(4), model.calls.Load())

	_, err = NewEvaluator().Evaluate(context.Background(), func(context.Context, *dataset.Dataset) (Model, error) {
		return nil, errors.NotValidf("neighborhood size 0")
	}, dataset.NewDataset(), testDataset())
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestEvaluateCancel(t *testing.T) {
	// running tasks stop after the grace period
	synctest.Test(t, func(t *testing.T) {
		model := testModel()
		model.delay = time.Hour
		evaluator := NewEvaluator()
		evaluator.Jobs = 2
		evaluator.GracePeriod = 10 * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		start := time.Now()
		_, err := evaluator.Evaluate(ctx, builderOf(model), dataset.NewDataset(), testDataset())
		assert.ErrorIs(t, err, ErrEvaluationAborted)
		assert.Equal(t, 11*time.Second, time.Since(start))
		synctest.Wait()
		assert.Equal(t, int32(2), model.calls.Load())
	})
	// running tasks finish within the grace period
	synctest.Test(t, func(t *testing.T) {
		model := testModel()
		model.delay = 2 * time.Second
		model.ignoreCancel = true
		evaluator := NewEvaluator()
		evaluator.Jobs = 2
		evaluator.GracePeriod = 10 * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		start := time.Now()
		_, err := evaluator.Evaluate(ctx, builderOf(model), dataset.NewDataset(), testDataset())
		assert.ErrorIs(t, err, ErrEvaluationAborted)
		assert.Equal(t, 2*time.Second, time.Since(start))
		assert.Equal(t, int32(2), model.calls.Load())
	})
}

func TestEvaluateCallbackAfterAbort(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		model := testModel()
		model.delay = time.Hour
		model.ignoreCancel = true
		evaluator := NewEvaluator()
		evaluator.Jobs = 2
		evaluator.GracePeriod = 10 * time.Second
		var done atomic.Int32
		evaluator.OnUserDone = func() { done.Inc() }
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := evaluator.Evaluate(ctx, builderOf(model), dataset.NewDataset(), testDataset())
		assert.ErrorIs(t, err, ErrEvaluationAborted)
		// tasks still running report to the callback set when the run started
		evaluator.OnUserDone = nil
		time.Sleep(time.Hour)
		synctest.Wait()
		assert.Equal(t, int32(2), done.Load())
	})
}

func TestEvaluateTopN(t *testing.T) {
	test := dataset.NewDataset()
	test.AddRating(1, 1001, 5)
	test.AddRating(1, 1002, 5)
	test.AddRating(1, 1003, 4)
	test.AddRating(2, 7, 5)
	evaluator := NewEvaluator()
	evaluator.Jobs = 2
	result, err := evaluator.EvaluateTopN(context.Background(), builderOf(testModel()), dataset.NewDataset(), test, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Users)
	assert.InDelta(t, 1.0/3, result.Precision, evalEpsilon)
	assert.InDelta(t, 1.0/3, result.Recall, evalEpsilon)
	assert.InDelta(t, 1.0/3, result.F1, evalEpsilon)
	assert.InDelta(t, 0.35196, result.NDCG, evalEpsilon)

	// unknown users get empty lists
	test.AddRating(3, 1001, 5)
	result, err = evaluator.EvaluateTopN(context.Background(), builderOf(testModel()), dataset.NewDataset(), test, 10)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/9, result.Precision, evalEpsilon)
}

func TestEvaluateTopNSplit(t *testing.T) {
	data := dataset.NewDatasetFromRatings([]dataset.Rating{
		{UserId: 1, ItemId: 1, Value: 1},
		{UserId: 1, ItemId: 2, Value: 1},
		{UserId: 1, ItemId: 3, Value: 1},
		{UserId: 1, ItemId: 4, Value: 5},
		{UserId: 2, ItemId: 1, Value: 5},
		{UserId: 2, ItemId: 2, Value: 4},
		{UserId: 3, ItemId: 1, Value: 3},
		{UserId: 3, ItemId: 2, Value: 3},
		{UserId: 3, ItemId: 3, Value: 3},
		{UserId: 3, ItemId: 4, Value: 3},
	})
	train, test := dataset.SplitTopN(data, 2)
	model := &mockModel{recommendations: map[int64][]int64{
		1: {4, 9},
		2: {3},
		3: {1, 2},
	}}
	var trained *dataset.Dataset
	result, err := NewEvaluator().EvaluateTopN(context.Background(), func(_ context.Context, train *dataset.Dataset) (Model, error) {
		trained = train
		return model, nil
	}, train, test, 2)
	require.NoError(t, err)
	// users with few ratings are only used for training
	ratings, err := trained.UserRatings(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, ratings.Len())
	assert.False(t, test.ContainsUser(2))
	assert.Equal(t, 2, result.Users)
	assert.InDelta(t, 0.75, result.Precision, evalEpsilon)
	assert.InDelta(t, 1, result.Recall, evalEpsilon)
	assert.InDelta(t, 6.0/7, result.F1, evalEpsilon)
}

func TestEvaluateKNN(t *testing.T) {
	var ratings []dataset.Rating
	for u := int64(1); u <= 20; u++ {
		for i := int64(1); i <= 15; i++ {
			if (u+i)%3 != 0 {
				ratings = append(ratings, dataset.Rating{UserId: u, ItemId: i, Value: float64((u*i)%5 + 1)})
			}
		}
	}
	folds, err := dataset.SplitKFold(ratings, 5, 0)
	require.NoError(t, err)
	train := dataset.NewDatasetFromRatings(folds[0].Train)
	test := dataset.NewDatasetFromRatings(folds[0].Test)
	config := knn.DefaultConfig()
	config.Threshold = knn.NoThresholdName
	config.MinNeighbors = 1
	builder := knn.NewBuilder(config)
	evaluator := NewEvaluator()
	evaluator.MinPreference = 1
	evaluator.MaxPreference = 5
	result, err := evaluator.Evaluate(context.Background(), func(ctx context.Context, train *dataset.Dataset) (Model, error) {
		return builder.Build(ctx, train)
	}, train, test)
	require.NoError(t, err)
	assert.Equal(t, test.CountUsers(), result.Users)
	assert.GreaterOrEqual(t, result.MAE, 0.0)
	assert.LessOrEqual(t, result.MAE, 4.0)
	assert.Greater(t, result.MeanNeighborCount, 0.0)

	topN, err := evaluator.EvaluateTopN(context.Background(), func(ctx context.Context, train *dataset.Dataset) (Model, error) {
		return builder.Build(ctx, train)
	}, train, test, 5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, topN.Precision, 0.0)
	assert.LessOrEqual(t, topN.Precision, 1.0)
}
