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
	"math"
	"runtime"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/common/parallel"
	"github.com/gorse-io/usercf/dataset"
	"github.com/gorse-io/usercf/model/knn"
	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrEvaluationAborted is returned when an evaluation is cancelled before completion.
var ErrEvaluationAborted = errors.New("evaluation aborted")

// Model is a trained recommender. It must be safe for concurrent use.
type Model interface {
	// Predict predicts ratings of items. An error satisfying knn.IsUnknownUser means the
	// user cannot be predicted. Items that cannot be predicted are absent from the result.
	Predict(ctx context.Context, userId int64, items []int64) (map[int64]knn.Prediction, error)
	// Recommend returns at most n items ordered by score.
	Recommend(ctx context.Context, userId int64, n int) ([]knn.Recommendation, error)
}

// ModelBuilder trains a model on a dataset.
type ModelBuilder func(ctx context.Context, train *dataset.Dataset) (Model, error)

// Result is the result of a rating prediction evaluation.
type Result struct {
	MAE               float64
	DCG               float64
	NDCG              float64
	NoEstimates       int64
	MeanNeighborCount float64
	// Ratings is the number of test ratings with an estimate.
	Ratings           int
	Users             int
	Duration          time.Duration
}

// TopNResult is the result of a top-N recommendation evaluation.
type TopNResult struct {
	Precision float64
	Recall    float64
	F1        float64
	NDCG      float64
	Users     int
	Duration  time.Duration
}

// Evaluator evaluates models on held-out test data with a pool of workers, one task per
// test user.
type Evaluator struct {
	// MinPreference and MaxPreference bound estimates. Infinite bounds are ignored.
	MinPreference float64
	MaxPreference float64
	// Jobs is the number of workers.
	Jobs int
	// GracePeriod is how long running tasks may continue after the context is cancelled.
	GracePeriod time.Duration
	// OnUserDone is called after each test user, possibly from several goroutines.
	OnUserDone func()
}

// NewEvaluator creates an evaluator with unbounded estimates and one worker per CPU.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		MinPreference: math.Inf(-1),
		MaxPreference: math.Inf(1),
		Jobs:          runtime.NumCPU(),
		GracePeriod:   10 * time.Second,
	}
}

func (e *Evaluator) clamp(estimate float64) float64 {
	if !math.IsInf(e.MaxPreference, 0) && !math.IsNaN(e.MaxPreference) && estimate > e.MaxPreference {
		return e.MaxPreference
	}
	if !math.IsInf(e.MinPreference, 0) && !math.IsNaN(e.MinPreference) && estimate < e.MinPreference {
		return e.MinPreference
	}
	return estimate
}

// userDone returns the callback run after each evaluated user. OnUserDone is read once so
// that it may be reassigned while a run is in progress.
func (e *Evaluator) userDone() func() {
	onUserDone := e.OnUserDone
	return func() {
		EvaluatedUsersTotal.Inc()
		if onUserDone != nil {
			onUserDone()
		}
	}
}

// Evaluate trains a model on train and measures its rating predictions on test. The model is
// built once before any task starts. Predictions for unknown users or missing predictions
// count as no estimate. The first task failure fails the whole run after all tasks finish.
func (e *Evaluator) Evaluate(ctx context.Context, build ModelBuilder, train, test *dataset.Dataset) (*Result, error) {
	start := time.Now()
	logger := log.RunLogger(uuid.NewString())
	model, err := build(ctx, train)
	if err != nil {
		return nil, errors.Annotate(err, "failed to build model")
	}

	users := test.Users()
	jobs := max(e.Jobs, 1)
	userDone := e.userDone()
	partial := make([]Accumulator, jobs)
	var noEstimates atomic.Int64
	logger.Info("start evaluation", zap.Int("n_users", len(users)), zap.Int("n_jobs", jobs))
	err = e.run(ctx, len(users), jobs, func(taskCtx context.Context, workerId, jobId int) error {
		defer userDone()
		userId := users[jobId]
		truth, err := test.UserRatings(taskCtx, userId)
		if err != nil {
			return errors.Trace(err)
		}
		items := truth.Keys()
		predictStart := time.Now()
		predictions, err := model.Predict(taskCtx, userId, items)
		PredictUserSeconds.Observe(time.Since(predictStart).Seconds())
		if knn.IsUnknownUser(err) {
			logger.Debug("user exists in test data but not training data", zap.Int64("user_id", userId))
			noEstimates.Add(int64(len(items)))
			NoEstimatesTotal.Add(float64(len(items)))
			return nil
		} else if err != nil {
			return errors.Annotatef(err, "failed to predict ratings for user %d", userId)
		}
		acc := &partial[workerId]
		scored := make([]ScoredItem, 0, len(items))
		for _, itemId := range items {
			prediction, ok := predictions[itemId]
			if !ok || math.IsNaN(prediction.Score) {
				noEstimates.Inc()
				NoEstimatesTotal.Inc()
				continue
			}
			estimate := e.clamp(prediction.Score)
			acc.AddError(estimate, truth[itemId], prediction.NeighborCount)
			scored = append(scored, ScoredItem{ItemId: itemId, Estimate: estimate, Actual: truth[itemId]})
		}
		acc.AddUser(scored)
		return nil
	})
	if err != nil {
		logger.Error("evaluation failed", zap.Error(err))
		return nil, errors.Trace(err)
	}

	var total Accumulator
	for i := range partial {
		total.Merge(&partial[i])
	}
	result := &Result{
		MAE:               total.MAE.Mean(),
		DCG:               total.DCG.Mean(),
		NDCG:              total.NDCG.Mean(),
		NoEstimates:       noEstimates.Load(),
		MeanNeighborCount: total.NeighborCount.Mean(),
		Ratings:           total.MAE.Count,
		Users:             len(users),
		Duration:          time.Since(start),
	}
	EvaluationSeconds.WithLabelValues("evaluation").Set(result.Duration.Seconds())
	EvaluationScore.WithLabelValues("mae").Set(result.MAE)
	EvaluationScore.WithLabelValues("dcg").Set(result.DCG)
	EvaluationScore.WithLabelValues("ndcg").Set(result.NDCG)
	logger.Info("complete evaluation",
		zap.Float64("mae", result.MAE),
		zap.Float64("dcg", result.DCG),
		zap.Float64("ndcg", result.NDCG),
		zap.Int64("no_estimates", result.NoEstimates),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// EvaluateTopN trains a model on train and measures its top-n recommendations against the
// items of each user in test. Users unknown to the model get empty recommendation lists.
func (e *Evaluator) EvaluateTopN(ctx context.Context, build ModelBuilder, train, test *dataset.Dataset, n int) (*TopNResult, error) {
	start := time.Now()
	logger := log.RunLogger(uuid.NewString())
	model, err := build(ctx, train)
	if err != nil {
		return nil, errors.Annotate(err, "failed to build model")
	}

	users := test.Users()
	jobs := max(e.Jobs, 1)
	userDone := e.userDone()
	partial := make([]TopNAccumulator, jobs)
	logger.Info("start top-n evaluation", zap.Int("n_users", len(users)), zap.Int("n", n))
	err = e.run(ctx, len(users), jobs, func(taskCtx context.Context, workerId, jobId int) error {
		defer userDone()
		userId := users[jobId]
		truth, err := test.UserRatings(taskCtx, userId)
		if err != nil {
			return errors.Trace(err)
		}
		recommendations, err := model.Recommend(taskCtx, userId, n)
		if err != nil && !knn.IsUnknownUser(err) {
			return errors.Annotatef(err, "failed to recommend items for user %d", userId)
		}
		rankList := make([]int64, len(recommendations))
		for i, recommendation := range recommendations {
			rankList[i] = recommendation.ItemId
		}
		partial[workerId].AddUser(mapset.NewThreadUnsafeSet(truth.Keys()...), rankList)
		return nil
	})
	if err != nil {
		logger.Error("top-n evaluation failed", zap.Error(err))
		return nil, errors.Trace(err)
	}

	var total TopNAccumulator
	for i := range partial {
		total.Merge(&partial[i])
	}
	result := &TopNResult{
		Precision: total.Precision.Mean(),
		Recall:    total.Recall.Mean(),
		NDCG:      total.NDCG.Mean(),
		Users:     len(users),
		Duration:  time.Since(start),
	}
	result.F1 = F1(result.Precision, result.Recall)
	EvaluationSeconds.WithLabelValues("f1").Set(result.Duration.Seconds())
	EvaluationScore.WithLabelValues("precision").Set(result.Precision)
	EvaluationScore.WithLabelValues("recall").Set(result.Recall)
	EvaluationScore.WithLabelValues("f1").Set(result.F1)
	logger.Info("complete top-n evaluation",
		zap.Float64("precision", result.Precision),
		zap.Float64("recall", result.Recall),
		zap.Float64("f1", result.F1),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// run executes tasks on the worker pool. Tasks receive a context that outlives ctx by the
// grace period. Once ctx is done no new task starts, and the run fails with
// ErrEvaluationAborted whether or not the running tasks finish in time.
func (e *Evaluator) run(ctx context.Context, nJobs, nWorkers int, task func(taskCtx context.Context, workerId, jobId int) error) error {
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()
	done := make(chan error, 1)
	go func() {
		done <- parallel.Parallel(taskCtx, nJobs, nWorkers, func(workerId, jobId int) error {
			if ctx.Err() != nil {
				return nil
			}
			return task(taskCtx, workerId, jobId)
		})
	}()
	select {
	case err := <-done:
		if ctx.Err() != nil {
			return errors.Trace(ErrEvaluationAborted)
		}
		return err
	case <-ctx.Done():
	}
	timer := time.NewTimer(e.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
		log.Logger().Warn("evaluation cancelled", zap.Error(ctx.Err()))
	case <-timer.C:
		cancelTasks()
		log.Logger().Warn("evaluation forced to shut down",
			zap.Error(ctx.Err()), zap.Duration("grace_period", e.GracePeriod))
	}
	return errors.Trace(ErrEvaluationAborted)
}
