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
	"time"

	"github.com/gorse-io/usercf/dataset"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRating struct {
	UserId int64   `bson:"user_id"`
	ItemId int64   `bson:"item_id"`
	Rating float64 `bson:"rating"`
}

// MongoDB is the rating storage based on MongoDB.
type MongoDB struct {
	client      *mongo.Client
	dbName      string
	tablePrefix string
}

func (m *MongoDB) ratings() *mongo.Collection {
	return m.client.Database(m.dbName).Collection(m.tablePrefix + "ratings")
}

// Init creates the ratings collection and its indices.
func (m *MongoDB) Init(ctx context.Context) error {
	d := m.client.Database(m.dbName)
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	hasRatings := false
	for _, name := range collections {
		if name == m.tablePrefix+"ratings" {
			hasRatings = true
		}
	}
	if !hasRatings {
		if err = d.CreateCollection(ctx, m.tablePrefix+"ratings"); err != nil {
			return errors.Trace(err)
		}
	}
	_, err = m.ratings().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = m.ratings().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"item_id": 1},
	})
	return errors.Trace(err)
}

func (m *MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoDB) Purge(ctx context.Context) error {
	_, err := m.ratings().DeleteMany(ctx, bson.M{})
	return errors.Trace(err)
}

func (m *MongoDB) BatchInsertRatings(ctx context.Context, ratings []dataset.Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	start := time.Now()
	var models []mongo.WriteModel
	for _, r := range ratings {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"user_id": r.UserId, "item_id": r.ItemId}).
			SetUpdate(bson.M{"$set": mongoRating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Value}}))
	}
	_, err := m.ratings().BulkWrite(ctx, models)
	BatchInsertRatingsSeconds.Observe(time.Since(start).Seconds())
	return errors.Trace(err)
}

func (m *MongoDB) UserRatings(ctx context.Context, userId int64) (dataset.RatingVector, error) {
	start := time.Now()
	cur, err := m.ratings().Find(ctx, bson.M{"user_id": userId})
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	vector := make(dataset.RatingVector)
	for cur.Next(ctx) {
		var row mongoRating
		if err = cur.Decode(&row); err != nil {
			return nil, errors.Trace(err)
		}
		vector[row.ItemId] = row.Rating
	}
	if err = cur.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	GetUserRatingsSeconds.Observe(time.Since(start).Seconds())
	return vector, nil
}

func (m *MongoDB) UserIds(ctx context.Context) ([]int64, error) {
	return m.distinct(ctx, "user_id")
}

func (m *MongoDB) ItemIds(ctx context.Context) ([]int64, error) {
	return m.distinct(ctx, "item_id")
}

func (m *MongoDB) distinct(ctx context.Context, field string) ([]int64, error) {
	values, err := m.ratings().Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case int64:
			ids = append(ids, v)
		case int32:
			ids = append(ids, int64(v))
		default:
			return nil, errors.Errorf("unexpected %s type %T", field, value)
		}
	}
	return sortIds(ids), nil
}
