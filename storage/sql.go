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
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// SQLRating is the row of the ratings table.
type SQLRating struct {
	UserId int64   `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ItemId int64   `gorm:"column:item_id;primaryKey;autoIncrement:false;index"`
	Rating float64 `gorm:"column:rating;not null"`
}

// SQLDatabase stores ratings in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	gormDB *gorm.DB
	driver SQLDriver
}

// Init creates the ratings table.
func (d *SQLDatabase) Init(ctx context.Context) error {
	return errors.Trace(d.gormDB.WithContext(ctx).AutoMigrate(&SQLRating{}))
}

func (d *SQLDatabase) Close() error {
	db, err := d.gormDB.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(db.Close())
}

// Purge deletes all ratings.
func (d *SQLDatabase) Purge(ctx context.Context) error {
	return errors.Trace(d.gormDB.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&SQLRating{}).Error)
}

// BatchInsertRatings inserts ratings. Existing ratings of the same user and item are replaced.
func (d *SQLDatabase) BatchInsertRatings(ctx context.Context, ratings []dataset.Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	start := time.Now()
	// deduplicate ratings
	rows := lo.Values(lo.SliceToMap(ratings, func(r dataset.Rating) (lo.Tuple2[int64, int64], SQLRating) {
		return lo.Tuple2[int64, int64]{A: r.UserId, B: r.ItemId}, SQLRating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Value}
	}))
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating"}),
	}).Create(&rows).Error
	BatchInsertRatingsSeconds.Observe(time.Since(start).Seconds())
	return errors.Trace(err)
}

func (d *SQLDatabase) UserRatings(ctx context.Context, userId int64) (dataset.RatingVector, error) {
	start := time.Now()
	var rows []SQLRating
	if err := d.gormDB.WithContext(ctx).Where("user_id = ?", userId).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	vector := make(dataset.RatingVector, len(rows))
	for _, row := range rows {
		vector[row.ItemId] = row.Rating
	}
	GetUserRatingsSeconds.Observe(time.Since(start).Seconds())
	return vector, nil
}

func (d *SQLDatabase) UserIds(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := d.gormDB.WithContext(ctx).Model(&SQLRating{}).Distinct("user_id").Order("user_id").Pluck("user_id", &ids).Error
	return ids, errors.Trace(err)
}

func (d *SQLDatabase) ItemIds(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := d.gormDB.WithContext(ctx).Model(&SQLRating{}).Distinct("item_id").Order("item_id").Pluck("item_id", &ids).Error
	return ids, errors.Trace(err)
}
