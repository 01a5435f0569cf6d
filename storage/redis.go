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

package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/gorse-io/usercf/dataset"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// Redis stores the ratings of each user in a hash keyed by item.
// User and item ids are kept in two sets.
type Redis struct {
	client      *redis.Client
	tablePrefix string
}

func (r *Redis) ratingsKey(userId int64) string {
	return r.tablePrefix + "ratings/" + strconv.FormatInt(userId, 10)
}

func (r *Redis) usersKey() string {
	return r.tablePrefix + "users"
}

func (r *Redis) itemsKey() string {
	return r.tablePrefix + "items"
}

// Init nothing.
func (r *Redis) Init(context.Context) error {
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Purge deletes all keys with the table prefix.
func (r *Redis) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.tablePrefix+"*", 1000).Result()
		if err != nil {
			return errors.Trace(err)
		}
		if len(keys) > 0 {
			if err = r.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Trace(err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Redis) BatchInsertRatings(ctx context.Context, ratings []dataset.Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	start := time.Now()
	p := r.client.Pipeline()
	for _, rating := range ratings {
		userId := strconv.FormatInt(rating.UserId, 10)
		itemId := strconv.FormatInt(rating.ItemId, 10)
		p.HSet(ctx, r.ratingsKey(rating.UserId), itemId, strconv.FormatFloat(rating.Value, 'g', -1, 64))
		p.SAdd(ctx, r.usersKey(), userId)
		p.SAdd(ctx, r.itemsKey(), itemId)
	}
	_, err := p.Exec(ctx)
	BatchInsertRatingsSeconds.Observe(time.Since(start).Seconds())
	return errors.Trace(err)
}

func (r *Redis) UserRatings(ctx context.Context, userId int64) (dataset.RatingVector, error) {
	start := time.Now()
	fields, err := r.client.HGetAll(ctx, r.ratingsKey(userId)).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	vector := make(dataset.RatingVector, len(fields))
	for field, value := range fields {
		itemId, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, errors.Trace(err)
		}
		vector[itemId], err = strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	GetUserRatingsSeconds.Observe(time.Since(start).Seconds())
	return vector, nil
}

func (r *Redis) UserIds(ctx context.Context) ([]int64, error) {
	return r.members(ctx, r.usersKey())
}

func (r *Redis) ItemIds(ctx context.Context) ([]int64, error) {
	return r.members(ctx, r.itemsKey())
}

func (r *Redis) members(ctx context.Context, key string) ([]int64, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]int64, len(members))
	for i, member := range members {
		if ids[i], err = strconv.ParseInt(member, 10, 64); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return sortIds(ids), nil
}
