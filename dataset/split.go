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
	"fmt"
	"math"
	"math/rand"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Fold is a pair of training and test ratings.
type Fold struct {
	Train []Rating
	Test  []Rating
}

// SplitKFold assigns every rating to one of k folds uniformly at random. Fold i tests on
// the ratings assigned to it and trains on all the others. Input order is preserved.
func SplitKFold(ratings []Rating, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, errors.NotValidf("number of folds %d", k)
	}
	rng := rand.New(rand.NewSource(seed))
	assignment := make([]int, len(ratings))
	for i := range ratings {
		assignment[i] = rng.Intn(k)
	}
	folds := make([]Fold, k)
	for x := 0; x < k; x++ {
		for i, r := range ratings {
			if assignment[i] == x {
				folds[x].Test = append(folds[x].Test, r)
			} else {
				folds[x].Train = append(folds[x].Train, r)
			}
		}
	}
	return folds, nil
}

// FoldFileNames returns the training and test file names of fold i.
func FoldFileNames(prefix string, i int) (train, test string) {
	return fmt.Sprintf("%s%d_training.csv", prefix, i), fmt.Sprintf("%s%d_test.csv", prefix, i)
}

// SaveFolds writes every fold into a pair of rating files named by FoldFileNames.
func SaveFolds(prefix string, folds []Fold) error {
	for i, fold := range folds {
		trainPath, testPath := FoldFileNames(prefix, i)
		if err := SaveCSV(trainPath, DefaultHeader, fold.Train); err != nil {
			return errors.Trace(err)
		}
		if err := SaveCSV(testPath, DefaultHeader, fold.Test); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// SplitTopN withholds up to at relevant items of each user into the test set and keeps the
// rest for training. An item is relevant when its rating is at least the mean plus the sample
// standard deviation of the user's ratings. Relevant items are taken by decreasing rating,
// ties in ascending item order. Users with fewer than 2*at ratings stay wholly in train.
func SplitTopN(d *Dataset, at int) (train, test *Dataset) {
	train, test = NewDataset(), NewDataset()
	for _, userId := range d.Users() {
		vector := d.users[userId]
		items := vector.Keys()
		if at <= 0 || len(items) < 2*at {
			for _, itemId := range items {
				train.AddRating(userId, itemId, vector[itemId])
			}
			continue
		}
		threshold := relevanceThreshold(vector, items)
		relevant := lo.Filter(items, func(itemId int64, _ int) bool {
			return vector[itemId] >= threshold
		})
		sort.SliceStable(relevant, func(i, j int) bool {
			return vector[relevant[i]] > vector[relevant[j]]
		})
		withheld := mapset.NewThreadUnsafeSet(relevant[:min(at, len(relevant))]...)
		for _, itemId := range items {
			if withheld.Contains(itemId) {
				test.AddRating(userId, itemId, vector[itemId])
			} else {
				train.AddRating(userId, itemId, vector[itemId])
			}
		}
	}
	return
}

// relevanceThreshold returns the mean plus the sample standard deviation of ratings.
func relevanceThreshold(vector RatingVector, items []int64) float64 {
	mean := 0.0
	for _, itemId := range items {
		mean += vector[itemId]
	}
	mean /= float64(len(items))
	if len(items) < 2 {
		return mean
	}
	sum := 0.0
	for _, itemId := range items {
		sum += (vector[itemId] - mean) * (vector[itemId] - mean)
	}
	return mean + math.Sqrt(sum/float64(len(items)-1))
}
