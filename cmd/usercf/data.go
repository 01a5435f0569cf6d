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

	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/config"
	"github.com/gorse-io/usercf/dataset"
	"github.com/gorse-io/usercf/storage"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loadDataset reads ratings from the CSV file given by flag, or from the configured database
// when the flag is empty.
func loadDataset(ctx context.Context, cmd *cobra.Command, flag string, conf *config.Config) (*dataset.Dataset, error) {
	path, _ := cmd.Flags().GetString(flag)
	if path != "" {
		header, _ := cmd.Flags().GetBool("header")
		return dataset.LoadCSV(path, header)
	}
	if conf.Database.DataStore == "" {
		return nil, errors.NotValidf("neither --%s nor database.data_store is set", flag)
	}
	log.Logger().Info("load ratings from database",
		zap.String("data_store", log.RedactDBURL(conf.Database.DataStore)))
	db, err := storage.Open(conf.Database.DataStore, conf.Database.TablePrefix)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer db.Close()
	return storage.LoadDataset(ctx, db)
}
