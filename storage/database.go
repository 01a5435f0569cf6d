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
	"database/sql"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/dataset"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	_ "modernc.org/sqlite"
)

const (
	MySQLPrefix      = "mysql://"
	MongoPrefix      = "mongodb://"
	MongoSrvPrefix   = "mongodb+srv://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
	RedisPrefix      = "redis://"
	RedissPrefix     = "rediss://"
)

// Database stores ratings. It serves rating vectors to the neighbor finder.
type Database interface {
	Init(ctx context.Context) error
	Close() error
	Purge(ctx context.Context) error
	BatchInsertRatings(ctx context.Context, ratings []dataset.Rating) error
	UserRatings(ctx context.Context, userId int64) (dataset.RatingVector, error)
	UserIds(ctx context.Context) ([]int64, error)
	ItemIds(ctx context.Context) ([]int64, error)
}

// Open connects to a database. The backend is selected by the scheme of path.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, MySQLPrefix) {
		name := path[len(MySQLPrefix):]
		database := new(SQLDatabase)
		database.driver = MySQL
		database.gormDB, err = gorm.Open(mysql.Open(name), newGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, PostgresPrefix) || strings.HasPrefix(path, PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.gormDB, err = gorm.Open(postgres.Open(path), newGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, SQLitePrefix) {
		// append parameters
		if path, err = appendURLParams(path, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		name := path[len(SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		client, err := sql.Open("sqlite", name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: client}, newGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, MongoPrefix) || strings.HasPrefix(path, MongoSrvPrefix) {
		database := new(MongoDB)
		database.tablePrefix = tablePrefix
		if database.client, err = mongo.Connect(context.Background(), options.Client().ApplyURI(path)); err != nil {
			return nil, errors.Trace(err)
		}
		// parse DSN and extract database name
		if cs, err := connstring.ParseAndValidate(path); err != nil {
			return nil, errors.Trace(err)
		} else {
			database.dbName = cs.Database
		}
		return database, nil
	} else if strings.HasPrefix(path, RedisPrefix) || strings.HasPrefix(path, RedissPrefix) {
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := new(Redis)
		database.client = redis.NewClient(opt)
		database.tablePrefix = tablePrefix
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}

// LoadDataset reads every rating of a database into memory.
func LoadDataset(ctx context.Context, db Database) (*dataset.Dataset, error) {
	users, err := db.UserIds(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	d := dataset.NewDataset()
	for _, userId := range users {
		vector, err := db.UserRatings(ctx, userId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for itemId, value := range vector {
			d.AddRating(userId, itemId, value)
		}
	}
	log.Logger().Info("load dataset from database",
		zap.Int("n_users", d.CountUsers()),
		zap.Int("n_items", d.CountItems()),
		zap.Int("n_ratings", d.CountRatings()))
	return d, nil
}

func appendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func newGORMConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Logger()), logger.Config{
			SlowThreshold: 10 * time.Second,
			LogLevel:      logger.Warn,
		}),
		CreateBatchSize:        1000,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   tablePrefix,
			SingularTable: true,
			NameReplacer:  strings.NewReplacer("SQLRating", "Ratings"),
		},
	}
}

func sortIds(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
