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

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gorse-io/usercf/model/knn"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	config, err := LoadConfig("config.toml.template")
	require.NoError(t, err)

	// [neighborhood]
	assert.Equal(t, 30, config.Neighborhood.Size)
	assert.Equal(t, 2, config.Neighborhood.MinNeighbors)
	assert.Equal(t, "pearson", config.Neighborhood.Similarity)
	assert.Equal(t, "mean", config.Neighborhood.Normalizer)
	assert.Equal(t, "real", config.Neighborhood.Threshold)
	assert.Equal(t, 0.0, config.Neighborhood.ThresholdValue)
	assert.Equal(t, 5.0, config.Neighborhood.BaselineDamping)
	// [evaluate]
	assert.Equal(t, lo.ToPtr(1.0), config.Evaluate.MinPreference)
	assert.Equal(t, lo.ToPtr(5.0), config.Evaluate.MaxPreference)
	assert.Equal(t, 4, config.Evaluate.Jobs)
	assert.Equal(t, 10*time.Second, config.Evaluate.GracePeriod)
	assert.Equal(t, 10, config.Evaluate.TopN)
	assert.Equal(t, 5, config.Evaluate.Folds)
	// [database]
	assert.Equal(t, "sqlite://usercf.db", config.Database.DataStore)
	assert.Equal(t, "", config.Database.TablePrefix)

	evaluator := config.Evaluate.Evaluator()
	assert.Equal(t, 1.0, evaluator.MinPreference)
	assert.Equal(t, 5.0, evaluator.MaxPreference)
	assert.Equal(t, 4, evaluator.Jobs)
	assert.Equal(t, knn.DefaultConfig(), config.Neighborhood.KNN())
}

func TestSetDefault(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
	assert.Nil(t, config.Evaluate.MinPreference)
	assert.Nil(t, config.Evaluate.MaxPreference)
	assert.Equal(t, runtime.NumCPU(), config.Evaluate.Jobs)

	evaluator := config.Evaluate.Evaluator()
	assert.True(t, evaluator.MinPreference < -1e300)
	assert.True(t, evaluator.MaxPreference > 1e300)
}

func TestBindEnv(t *testing.T) {
	variables := []lo.Tuple2[string, string]{
		{A: "USERCF_DATA_STORE", B: "redis://localhost:6379/0"},
		{A: "USERCF_TABLE_PREFIX", B: "usercf_"},
		{A: "USERCF_EVALUATE_JOBS", B: "3"},
		{A: "USERCF_MIN_PREFERENCE", B: "0.5"},
		{A: "USERCF_NEIGHBORHOOD_SIZE", B: "50"},
		{A: "USERCF_NEIGHBORHOOD_SIMILARITY", B: "cosine"},
	}
	for _, variable := range variables {
		t.Setenv(variable.A, variable.B)
	}

	config, err := LoadConfig("config.toml.template")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", config.Database.DataStore)
	assert.Equal(t, "usercf_", config.Database.TablePrefix)
	assert.Equal(t, 3, config.Evaluate.Jobs)
	assert.Equal(t, lo.ToPtr(0.5), config.Evaluate.MinPreference)
	assert.Equal(t, 50, config.Neighborhood.Size)
	assert.Equal(t, "cosine", config.Neighborhood.Similarity)
}

func TestValidate(t *testing.T) {
	writeConfig := func(t *testing.T, text string) string {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(text), 0644))
		return path
	}

	_, err := LoadConfig(writeConfig(t, "[neighborhood]\nsize = 0\n"))
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadConfig(writeConfig(t, "[neighborhood]\nmin_neighbors = -1\n"))
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadConfig(writeConfig(t, "[neighborhood]\nsimilarity = \"jaccard\"\n"))
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadConfig(writeConfig(t, "[evaluate]\nmin_preference = 5.0\nmax_preference = 1.0\n"))
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadConfig(writeConfig(t, "[evaluate]\njobs = 0\n"))
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
