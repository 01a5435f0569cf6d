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
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/config"
	"github.com/gorse-io/usercf/dataset"
	"github.com/gorse-io/usercf/model/eval"
	"github.com/gorse-io/usercf/model/knn"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	TaskEvaluation     = "evaluation"
	TaskRecommendation = "recommendation"
	TaskF1             = "f1"
	TaskAll            = "all"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Evaluate the model or generate recommendations",
	Run: func(cmd *cobra.Command, args []string) {
		task, _ := cmd.Flags().GetString("task")
		if !lo.Contains([]string{TaskEvaluation, TaskRecommendation, TaskF1, TaskAll}, task) {
			log.Logger().Fatal("unknown task", zap.String("task", task))
		}
		conf := loadConfig(cmd)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		builder := knn.NewBuilder(conf.Neighborhood.KNN())
		build := func(ctx context.Context, train *dataset.Dataset) (eval.Model, error) {
			model, err := builder.Build(ctx, train)
			if err != nil {
				return nil, err
			}
			return model, nil
		}
		evaluator := conf.Evaluate.Evaluator()

		if task == TaskEvaluation || task == TaskAll {
			if err := runEvaluation(ctx, cmd, conf, evaluator, build); err != nil {
				log.Logger().Fatal("failed to evaluate", zap.Error(err))
			}
		}
		if task == TaskRecommendation || task == TaskAll || task == TaskF1 {
			data, err := loadDataset(ctx, cmd, "dataset", conf)
			if err != nil {
				log.Logger().Fatal("failed to load dataset", zap.Error(err))
			}
			if task != TaskF1 {
				if err = runRecommendation(ctx, cmd, evaluator, build, data); err != nil {
					log.Logger().Fatal("failed to recommend", zap.Error(err))
				}
			}
			if task != TaskRecommendation {
				if err = runF1(ctx, conf, evaluator, build, data); err != nil {
					log.Logger().Fatal("failed to evaluate top-n recommendation", zap.Error(err))
				}
			}
		}
	},
}

func init() {
	runCommand.Flags().String("task", TaskEvaluation, "task to run: evaluation, recommendation, f1 or all")
	runCommand.Flags().String("dataset", "", "CSV file of all ratings (recommendation and f1 tasks)")
	runCommand.Flags().String("train", "", "CSV file of training ratings (evaluation task)")
	runCommand.Flags().String("test", "", "CSV file of test ratings (evaluation task)")
	runCommand.Flags().Bool("header", true, "CSV files have a header line")
	runCommand.Flags().Int("sample", 10, "recommend for every n-th user")
	runCommand.Flags().Int("n", 10, "number of recommended items per user")
	runCommand.Flags().Bool("print", false, "print recommendations")
}

func newProgressBar(n int, description string) *progressbar.ProgressBar {
	return progressbar.Default(int64(n), description)
}

func runEvaluation(ctx context.Context, cmd *cobra.Command, conf *config.Config, evaluator *eval.Evaluator, build eval.ModelBuilder) error {
	var train, test *dataset.Dataset
	testPath, _ := cmd.Flags().GetString("test")
	if testPath != "" {
		var err error
		if train, err = loadDataset(ctx, cmd, "train", conf); err != nil {
			return errors.Trace(err)
		}
		if test, err = loadDataset(ctx, cmd, "test", conf); err != nil {
			return errors.Trace(err)
		}
	} else {
		// hold out the first fold of the whole dataset
		data, err := loadDataset(ctx, cmd, "dataset", conf)
		if err != nil {
			return errors.Trace(err)
		}
		folds, err := dataset.SplitKFold(data.Ratings(), conf.Evaluate.Folds, conf.Evaluate.Seed)
		if err != nil {
			return errors.Trace(err)
		}
		train = dataset.NewDatasetFromRatings(folds[0].Train)
		test = dataset.NewDatasetFromRatings(folds[0].Test)
	}
	bar := newProgressBar(test.CountUsers(), "Evaluating")
	evaluator.OnUserDone = func() { _ = bar.Add(1) }
	result, err := evaluator.Evaluate(ctx, build, train, test)
	_ = bar.Finish()
	if err != nil {
		return errors.Trace(err)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	for _, row := range [][]string{
		{"MAE", formatFloat(result.MAE)},
		{"DCG", formatFloat(result.DCG)},
		{"nDCG", formatFloat(result.NDCG)},
		{"No estimates", strconv.FormatInt(result.NoEstimates, 10)},
		{"Mean neighbors", formatFloat(result.MeanNeighborCount)},
		{"Users", strconv.Itoa(result.Users)},
		{"Time", result.Duration.String()},
	} {
		if err = table.Append(row); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func runRecommendation(ctx context.Context, cmd *cobra.Command, evaluator *eval.Evaluator, build eval.ModelBuilder, data *dataset.Dataset) error {
	start := time.Now()
	model, err := build(ctx, data)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("LEARNING time=%f\n", time.Since(start).Seconds())

	sample, _ := cmd.Flags().GetInt("sample")
	n, _ := cmd.Flags().GetInt("n")
	users := eval.SampleUsers(data.Users(), sample)
	bar := newProgressBar(len(users), "Recommending")
	evaluator.OnUserDone = func() { _ = bar.Add(1) }
	result, err := evaluator.Recommend(ctx, model, users, n)
	_ = bar.Finish()
	if err != nil {
		return errors.Trace(err)
	}
	if printItems, _ := cmd.Flags().GetBool("print"); printItems {
		for i, userId := range result.Users {
			items := lo.Map(result.Recommendations[i], func(r knn.Recommendation, _ int) string {
				return fmt.Sprintf("('%d', %.3f)", r.ItemId, r.Score)
			})
			fmt.Printf("%d [%s]\n", userId, strings.Join(items, ", "))
		}
	}
	fmt.Printf("RECOMMENDATION time=%f\n", result.Duration.Seconds())
	return nil
}

func runF1(ctx context.Context, conf *config.Config, evaluator *eval.Evaluator, build eval.ModelBuilder, data *dataset.Dataset) error {
	train, test := dataset.SplitTopN(data, conf.Evaluate.TopN)
	bar := newProgressBar(test.CountUsers(), "Evaluating top-n")
	evaluator.OnUserDone = func() { _ = bar.Add(1) }
	result, err := evaluator.EvaluateTopN(ctx, build, train, test, conf.Evaluate.TopN)
	_ = bar.Finish()
	if err != nil {
		return errors.Trace(err)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	for _, row := range [][]string{
		{"F1", formatFloat(result.F1)},
		{"Precision", formatFloat(result.Precision)},
		{"Recall", formatFloat(result.Recall)},
		{"nDCG", formatFloat(result.NDCG)},
		{"Users", strconv.Itoa(result.Users)},
		{"Time", result.Duration.String()},
	} {
		if err = table.Append(row); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}
