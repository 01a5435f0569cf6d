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

package main

import (
	"context"
	"os"

	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/dataset"
	"github.com/gorse-io/usercf/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const batchSize = 10000

var importCommand = &cobra.Command{
	Use:   "import <ratings.csv>",
	Short: "Import ratings from a CSV file into the database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		header, _ := cmd.Flags().GetBool("header")
		purge, _ := cmd.Flags().GetBool("purge")
		if err := importRatings(context.Background(), args[0], header, purge, conf.Database.DataStore, conf.Database.TablePrefix); err != nil {
			log.Logger().Fatal("failed to import ratings", zap.Error(err))
		}
	},
}

func init() {
	importCommand.Flags().Bool("header", true, "the CSV file has a header line")
	importCommand.Flags().Bool("purge", false, "delete existing ratings before import")
}

func importRatings(ctx context.Context, path string, header, purge bool, dataStore, tablePrefix string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	ratings, err := dataset.ReadCSV(file, header)
	if err != nil {
		return errors.Annotatef(err, "failed to read %s", path)
	}

	db, err := storage.Open(dataStore, tablePrefix)
	if err != nil {
		return errors.Trace(err)
	}
	defer db.Close()
	if err = db.Init(ctx); err != nil {
		return errors.Trace(err)
	}
	if purge {
		if err = db.Purge(ctx); err != nil {
			return errors.Trace(err)
		}
	}

	bar := newProgressBar(len(ratings), "Importing")
	for _, chunk := range lo.Chunk(ratings, batchSize) {
		if err = db.BatchInsertRatings(ctx, chunk); err != nil {
			return errors.Trace(err)
		}
		_ = bar.Add(len(chunk))
	}
	_ = bar.Finish()
	log.Logger().Info("import ratings",
		zap.String("path", path),
		zap.String("data_store", log.RedactDBURL(dataStore)),
		zap.Int("n_ratings", len(ratings)))
	return nil
}
