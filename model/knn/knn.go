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

// Package knn implements user-based nearest neighbor rating prediction.
//
// A target user's neighbors are found by scanning every other user, normalizing both rating
// vectors and scoring their similarity. The best K neighbors form one neighborhood shared by
// all requested items, and the weighted average of their normalized ratings is mapped back
// to the rating scale of the target user.
package knn

import (
	"context"

	"github.com/gorse-io/usercf/dataset"
	"github.com/juju/errors"
)

// RatingStore supplies rating vectors and enumerates users and items.
type RatingStore interface {
	// UserRatings returns the ratings of a user. An unknown user has an empty vector.
	UserRatings(ctx context.Context, userId int64) (dataset.RatingVector, error)
	UserIds(ctx context.Context) ([]int64, error)
	ItemIds(ctx context.Context) ([]int64, error)
}

// IsConfigurationError checks whether an error is caused by an invalid configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, errors.NotValid)
}

// IsUnknownUser checks whether an error is caused by a user missing from the training data.
func IsUnknownUser(err error) bool {
	return errors.Is(err, errors.NotFound)
}
