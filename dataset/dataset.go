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
	"context"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

// Dataset is an in-memory sparse rating matrix. It serves rating vectors by user and
// enumerates known users and items.
type Dataset struct {
	users map[int64]RatingVector
	items mapset.Set[int64]
	count int
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		users: make(map[int64]RatingVector),
		items: mapset.NewThreadUnsafeSet[int64](),
	}
}

// NewDatasetFromRatings creates a dataset from ratings. A later rating of the same
// (user, item) pair replaces the earlier one.
func NewDatasetFromRatings(ratings []Rating) *Dataset {
	d := NewDataset()
	for _, r := range ratings {
		d.AddRating(r.UserId, r.ItemId, r.Value)
	}
	return d
}

// AddRating inserts or replaces a rating.
func (d *Dataset) AddRating(userId, itemId int64, value float64) {
	vector, ok := d.users[userId]
	if !ok {
		vector = make(RatingVector)
		d.users[userId] = vector
	}
	if !vector.Contains(itemId) {
		d.count++
	}
	vector[itemId] = value
	d.items.Add(itemId)
}

// UserRatings returns a snapshot of the ratings of a user. An unknown user has an empty vector.
func (d *Dataset) UserRatings(_ context.Context, userId int64) (RatingVector, error) {
	vector, ok := d.users[userId]
	if !ok {
		return RatingVector{}, nil
	}
	return vector.Clone(), nil
}

// UserIds returns all users in ascending order.
func (d *Dataset) UserIds(_ context.Context) ([]int64, error) {
	return d.Users(), nil
}

// ItemIds returns all items in ascending order.
func (d *Dataset) ItemIds(_ context.Context) ([]int64, error) {
	return d.Items(), nil
}

// Users returns all users in ascending order.
func (d *Dataset) Users() []int64 {
	users := lo.Keys(d.users)
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Items returns all items in ascending order.
func (d *Dataset) Items() []int64 {
	items := d.items.ToSlice()
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

func (d *Dataset) ContainsUser(userId int64) bool {
	_, ok := d.users[userId]
	return ok
}

func (d *Dataset) ContainsItem(itemId int64) bool {
	return d.items.Contains(itemId)
}

func (d *Dataset) CountUsers() int {
	return len(d.users)
}

func (d *Dataset) CountItems() int {
	return d.items.Cardinality()
}

func (d *Dataset) CountRatings() int {
	return d.count
}

// Ratings returns all ratings ordered by user and then by item.
func (d *Dataset) Ratings() []Rating {
	ratings := make([]Rating, 0, d.count)
	for _, userId := range d.Users() {
		vector := d.users[userId]
		for _, itemId := range vector.Keys() {
			ratings = append(ratings, Rating{UserId: userId, ItemId: itemId, Value: vector[itemId]})
		}
	}
	return ratings
}
