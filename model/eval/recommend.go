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
	"time"

	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/common/parallel"
	"github.com/gorse-io/usercf/model/knn"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// RecommendResult holds the top-n lists of a batch of users.
type RecommendResult struct {
	Users           []int64
	Recommendations [][]knn.Recommendation
	Duration        time.Duration
}

// SampleUsers returns every step-th user starting with the first.
func SampleUsers(users []int64, step int) []int64 {
	if step <= 1 {
		return users
	}
	return lo.Filter(users, func(_ int64, i int) bool {
		return i%step == 0
	})
}

// Recommend generates top-n lists for users in parallel. Users unknown to the model get
// empty lists.
func (e *Evaluator) Recommend(ctx context.Context, model Model, users []int64, n int) (*RecommendResult, error) {
	start := time.Now()
	result := &RecommendResult{
		Users:           users,
		Recommendations: make([][]knn.Recommendation, len(users)),
	}
	onUserDone := e.OnUserDone
	errs := make([]error, len(users))
	err := parallel.ForEach(ctx, users, max(e.Jobs, 1), func(i int, userId int64) {
		if onUserDone != nil {
			defer onUserDone()
		}
		recommendations, err := model.Recommend(ctx, userId, n)
		if err != nil && !knn.IsUnknownUser(err) {
			errs[i] = errors.Annotatef(err, "failed to recommend items for user %d", userId)
			return
		}
		result.Recommendations[i] = recommendations
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, err := range errs {
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	result.Duration = time.Since(start)
	EvaluationSeconds.WithLabelValues("recommendation").Set(result.Duration.Seconds())
	log.Logger().Info("complete recommendation",
		zap.Int("n_users", len(users)),
		zap.Duration("duration", result.Duration))
	return result, nil
}
