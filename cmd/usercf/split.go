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
	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/dataset"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var splitCommand = &cobra.Command{
	Use:   "split <ratings.csv> <prefix>",
	Short: "Split ratings into k folds of training and test files",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		header, _ := cmd.Flags().GetBool("header")
		data, err := dataset.LoadCSV(args[0], header)
		if err != nil {
			log.Logger().Fatal("failed to load ratings", zap.String("path", args[0]), zap.Error(err))
		}
		folds, err := dataset.SplitKFold(data.Ratings(), conf.Evaluate.Folds, conf.Evaluate.Seed)
		if err != nil {
			log.Logger().Fatal("failed to split ratings", zap.Error(err))
		}
		if err = dataset.SaveFolds(args[1], folds); err != nil {
			log.Logger().Fatal("failed to save folds", zap.Error(err))
		}
		for i, fold := range folds {
			trainPath, testPath := dataset.FoldFileNames(args[1], i)
			log.Logger().Info("save fold",
				zap.String("train", trainPath),
				zap.String("test", testPath),
				zap.Int("n_train", len(fold.Train)),
				zap.Int("n_test", len(fold.Test)))
		}
	},
}

func init() {
	splitCommand.Flags().Bool("header", true, "the CSV file has a header line")
}
