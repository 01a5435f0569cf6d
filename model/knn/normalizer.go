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

	"github.com/gorse-io/usercf/dataset"
	"github.com/juju/errors"
)

// Normalizer maps rating vectors into a normalized space and back.
type Normalizer interface {
	// Normalize normalizes target using statistics of the reference vector of a user. A nil
	// target normalizes the reference itself. The result is a new vector.
	Normalize(userId int64, reference, target dataset.RatingVector) dataset.RatingVector
	// InverseTransform returns the mapping from normalized space back to ratings of a user,
	// derived from the reference vector.
	InverseTransform(userId int64, reference dataset.RatingVector) VectorTransform
}

// VectorTransform maps a whole vector at once. It may depend on item ids.
type VectorTransform interface {
	Apply(normalized dataset.RatingVector) dataset.RatingVector
}

// VectorTransformFunc adapts a per-entry function into a VectorTransform.
type VectorTransformFunc func(itemId int64, value float64) float64

func (f VectorTransformFunc) Apply(normalized dataset.RatingVector) dataset.RatingVector {
	result := make(dataset.RatingVector, len(normalized))
	for itemId, value := range normalized {
		result[itemId] = f(itemId, value)
	}
	return result
}

func normalizeWith(reference, target dataset.RatingVector, f func(itemId int64, value float64) float64) dataset.RatingVector {
	if target == nil {
		target = reference
	}
	return VectorTransformFunc(f).Apply(target)
}

// IdentityNormalizer leaves ratings unchanged.
type IdentityNormalizer struct{}

func (IdentityNormalizer) Normalize(_ int64, reference, target dataset.RatingVector) dataset.RatingVector {
	return normalizeWith(reference, target, func(_ int64, value float64) float64 {
		return value
	})
}

func (IdentityNormalizer) InverseTransform(int64, dataset.RatingVector) VectorTransform {
	return VectorTransformFunc(func(_ int64, value float64) float64 {
		return value
	})
}

// MeanCenteringNormalizer subtracts the mean rating of a user.
type MeanCenteringNormalizer struct{}

func (MeanCenteringNormalizer) Normalize(_ int64, reference, target dataset.RatingVector) dataset.RatingVector {
	mean := reference.Mean()
	return normalizeWith(reference, target, func(_ int64, value float64) float64 {
		return value - mean
	})
}

func (MeanCenteringNormalizer) InverseTransform(_ int64, reference dataset.RatingVector) VectorTransform {
	mean := reference.Mean()
	return VectorTransformFunc(func(_ int64, value float64) float64 {
		return value + mean
	})
}

// ZScoreNormalizer subtracts the mean rating of a user and divides by the standard deviation.
type ZScoreNormalizer struct{}

func zScoreStats(reference dataset.RatingVector) (mean, scale float64) {
	return reference.Mean(), reference.StdDev() + 1e-5
}

func (ZScoreNormalizer) Normalize(_ int64, reference, target dataset.RatingVector) dataset.RatingVector {
	mean, scale := zScoreStats(reference)
	return normalizeWith(reference, target, func(_ int64, value float64) float64 {
		return (value - mean) / scale
	})
}

func (ZScoreNormalizer) InverseTransform(_ int64, reference dataset.RatingVector) VectorTransform {
	mean, scale := zScoreStats(reference)
	return VectorTransformFunc(func(_ int64, value float64) float64 {
		return value*scale + mean
	})
}

// BaselineNormalizer subtracts the baseline estimate mu + b_u + b_i. Item biases are learned
// from training data. The user bias is derived from the reference vector.
type BaselineNormalizer struct {
	GlobalMean float64
	ItemBias   map[int64]float64
	Damping    float64
}

// FitBaselineNormalizer learns the global mean and damped item biases from a rating store.
func FitBaselineNormalizer(ctx context.Context, store RatingStore, damping float64) (*BaselineNormalizer, error) {
	users, err := store.UserIds(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	vectors := make([]dataset.RatingVector, 0, len(users))
	sum, count := 0.0, 0
	for _, userId := range users {
		vector, err := store.UserRatings(ctx, userId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		vectors = append(vectors, vector)
		sum += vector.Sum()
		count += vector.Len()
	}
	normalizer := &BaselineNormalizer{ItemBias: make(map[int64]float64), Damping: damping}
	if count == 0 {
		return normalizer, nil
	}
	normalizer.GlobalMean = sum / float64(count)
	itemSum := make(map[int64]float64)
	itemCount := make(map[int64]int)
	for _, vector := range vectors {
		for itemId, value := range vector {
			itemSum[itemId] += value - normalizer.GlobalMean
			itemCount[itemId]++
		}
	}
	for itemId, s := range itemSum {
		normalizer.ItemBias[itemId] = s / (float64(itemCount[itemId]) + damping)
	}
	return normalizer, nil
}

func (b *BaselineNormalizer) userBias(reference dataset.RatingVector) float64 {
	if len(reference) == 0 {
		return 0
	}
	sum := 0.0
	for itemId, value := range reference {
		sum += value - b.GlobalMean - b.ItemBias[itemId]
	}
	return sum / (float64(len(reference)) + b.Damping)
}

func (b *BaselineNormalizer) baseline(userBias float64, itemId int64) float64 {
	return b.GlobalMean + userBias + b.ItemBias[itemId]
}

func (b *BaselineNormalizer) Normalize(_ int64, reference, target dataset.RatingVector) dataset.RatingVector {
	userBias := b.userBias(reference)
	return normalizeWith(reference, target, func(itemId int64, value float64) float64 {
		return value - b.baseline(userBias, itemId)
	})
}

func (b *BaselineNormalizer) InverseTransform(_ int64, reference dataset.RatingVector) VectorTransform {
	userBias := b.userBias(reference)
	return VectorTransformFunc(func(itemId int64, value float64) float64 {
		return value + b.baseline(userBias, itemId)
	})
}
