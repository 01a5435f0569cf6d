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
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/usercf/model/eval"
	"github.com/gorse-io/usercf/model/knn"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config is the configuration of usercf.
type Config struct {
	Neighborhood NeighborhoodConfig `mapstructure:"neighborhood"`
	Evaluate     EvaluateConfig     `mapstructure:"evaluate"`
	Database     DatabaseConfig     `mapstructure:"database"`
}

// NeighborhoodConfig is the configuration of the nearest neighbor model.
type NeighborhoodConfig struct {
	Size            int     `mapstructure:"size" validate:"gt=0"`
	MinNeighbors    int     `mapstructure:"min_neighbors" validate:"gte=0"`
	Similarity      string  `mapstructure:"similarity" validate:"oneof=pearson cosine msd spearman"`
	Normalizer      string  `mapstructure:"normalizer" validate:"oneof=identity mean zscore baseline"`
	Threshold       string  `mapstructure:"threshold" validate:"oneof=real absolute none"`
	ThresholdValue  float64 `mapstructure:"threshold_value"`
	BaselineDamping float64 `mapstructure:"baseline_damping" validate:"gte=0"`
}

// EvaluateConfig is the configuration of the evaluator.
type EvaluateConfig struct {
	MinPreference *float64      `mapstructure:"min_preference"`
	MaxPreference *float64      `mapstructure:"max_preference"`
	Jobs          int           `mapstructure:"jobs" validate:"gt=0"`
	GracePeriod   time.Duration `mapstructure:"grace_period" validate:"gte=0"`
	TopN          int           `mapstructure:"top_n" validate:"gt=0"`
	Folds         int           `mapstructure:"folds" validate:"gte=2"`
	Seed          int64         `mapstructure:"seed"`
}

// DatabaseConfig is the configuration of the rating storage.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

func GetDefaultConfig() *Config {
	defaultKNN := knn.DefaultConfig()
	return &Config{
		Neighborhood: NeighborhoodConfig{
			Size:            defaultKNN.NeighborhoodSize,
			MinNeighbors:    defaultKNN.MinNeighbors,
			Similarity:      string(defaultKNN.Similarity),
			Normalizer:      string(defaultKNN.Normalizer),
			Threshold:       string(defaultKNN.Threshold),
			ThresholdValue:  defaultKNN.ThresholdValue,
			BaselineDamping: defaultKNN.BaselineDamping,
		},
		Evaluate: EvaluateConfig{
			Jobs:        runtime.NumCPU(),
			GracePeriod: 10 * time.Second,
			TopN:        10,
			Folds:       5,
			Seed:        0,
		},
	}
}

// KNN converts the neighborhood configuration to the model configuration.
func (config *NeighborhoodConfig) KNN() knn.Config {
	return knn.Config{
		NeighborhoodSize: config.Size,
		MinNeighbors:     config.MinNeighbors,
		Similarity:       knn.SimilarityName(config.Similarity),
		Normalizer:       knn.NormalizerName(config.Normalizer),
		Threshold:        knn.ThresholdName(config.Threshold),
		ThresholdValue:   config.ThresholdValue,
		BaselineDamping:  config.BaselineDamping,
	}
}

// Evaluator creates an evaluator. Missing preference bounds are unbounded.
func (config *EvaluateConfig) Evaluator() *eval.Evaluator {
	evaluator := eval.NewEvaluator()
	if config.MinPreference != nil {
		evaluator.MinPreference = *config.MinPreference
	}
	if config.MaxPreference != nil {
		evaluator.MaxPreference = *config.MaxPreference
	}
	evaluator.Jobs = config.Jobs
	evaluator.GracePeriod = config.GracePeriod
	return evaluator
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid configuration")
	}
	if config.Evaluate.MinPreference != nil && config.Evaluate.MaxPreference != nil &&
		*config.Evaluate.MinPreference > *config.Evaluate.MaxPreference {
		return errors.NotValidf("evaluate.min_preference greater than evaluate.max_preference")
	}
	return nil
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [neighborhood]
	viper.SetDefault("neighborhood.size", defaultConfig.Neighborhood.Size)
	viper.SetDefault("neighborhood.min_neighbors", defaultConfig.Neighborhood.MinNeighbors)
	viper.SetDefault("neighborhood.similarity", defaultConfig.Neighborhood.Similarity)
	viper.SetDefault("neighborhood.normalizer", defaultConfig.Neighborhood.Normalizer)
	viper.SetDefault("neighborhood.threshold", defaultConfig.Neighborhood.Threshold)
	viper.SetDefault("neighborhood.threshold_value", defaultConfig.Neighborhood.ThresholdValue)
	viper.SetDefault("neighborhood.baseline_damping", defaultConfig.Neighborhood.BaselineDamping)
	// [evaluate]
	viper.SetDefault("evaluate.jobs", defaultConfig.Evaluate.Jobs)
	viper.SetDefault("evaluate.grace_period", defaultConfig.Evaluate.GracePeriod)
	viper.SetDefault("evaluate.top_n", defaultConfig.Evaluate.TopN)
	viper.SetDefault("evaluate.folds", defaultConfig.Evaluate.Folds)
	viper.SetDefault("evaluate.seed", defaultConfig.Evaluate.Seed)
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
}

type configBinding struct {
	key string
	env string
}

func bindEnv() error {
	bindings := []configBinding{
		{"database.data_store", "USERCF_DATA_STORE"},
		{"database.table_prefix", "USERCF_TABLE_PREFIX"},
		{"evaluate.jobs", "USERCF_EVALUATE_JOBS"},
		{"evaluate.min_preference", "USERCF_MIN_PREFERENCE"},
		{"evaluate.max_preference", "USERCF_MAX_PREFERENCE"},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a TOML, YAML or JSON file. Environment variables
// prefixed with USERCF_ override the file. An empty path loads defaults only.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefault()
	if err := bindEnv(); err != nil {
		return nil, errors.Trace(err)
	}
	viper.SetEnvPrefix("usercf")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if path != "" {
		viper.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); !lo.Contains(viper.SupportedExts, ext) {
			viper.SetConfigType("toml")
		}
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", path)
		}
	}
	var config Config
	if err := viper.Unmarshal(&config, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}
