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

package dataset

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// Rating is a single (user, item, value) triple.
type Rating struct {
	UserId int64
	ItemId int64
	Value  float64
}

// RatingVector is a sparse mapping from item id to rating. An absent item is unrated.
// Vectors handed to algorithms are snapshots and must not be modified in place.
type RatingVector map[int64]float64

// Len returns the number of rated items.
func (v RatingVector) Len() int {
	return len(v)
}

// Contains checks whether the item is rated.
func (v RatingVector) Contains(itemId int64) bool {
	_, ok := v[itemId]
	return ok
}

// Clone returns a copy of the vector.
func (v RatingVector) Clone() RatingVector {
	c := make(RatingVector, len(v))
	for itemId, value := range v {
		c[itemId] = value
	}
	return c
}

// Keys returns rated items in ascending order.
func (v RatingVector) Keys() []int64 {
	keys := lo.Keys(v)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Sum returns the sum of ratings.
func (v RatingVector) Sum() float64 {
	sum := 0.0
	for _, value := range v {
		sum += value
	}
	return sum
}

// Mean returns the mean of ratings, 0 for an empty vector.
func (v RatingVector) Mean() float64 {
	if len(v) == 0 {
		return 0
	}
	return v.Sum() / float64(len(v))
}

// StdDev returns the population standard deviation of ratings, 0 for an empty vector.
func (v RatingVector) StdDev() float64 {
	if len(v) == 0 {
		return 0
	}
	mean := v.Mean()
	sum := 0.0
	for _, value := range v {
		sum += (value - mean) * (value - mean)
	}
	return math.Sqrt(sum / float64(len(v)))
}

// Norm returns the euclidean norm.
func (v RatingVector) Norm() float64 {
	sum := 0.0
	for _, value := range v {
		sum += value * value
	}
	return math.Sqrt(sum)
}

// Intersect calls f for each item rated in both vectors, in ascending item order.
func (v RatingVector) Intersect(other RatingVector, f func(itemId int64, a, b float64)) {
	small, large, swapped := v, other, false
	if len(other) < len(v) {
		small, large, swapped = other, v, true
	}
	for _, itemId := range small.Keys() {
		if b, ok := large[itemId]; ok {
			if swapped {
				f(itemId, b, small[itemId])
			} else {
				f(itemId, small[itemId], b)
			}
		}
	}
}
