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

package knn

import (
	"context"

	"github.com/juju/errors"
)

type SimilarityName string

const (
	Pearson  SimilarityName = "pearson"
	Cosine   SimilarityName = "cosine"
	MSD      SimilarityName = "msd"
	Spearman SimilarityName = "spearman"
)

type NormalizerName string

const (
	Identity      NormalizerName = "identity"
	MeanCentering NormalizerName = "mean"
	ZScore        NormalizerName = "zscore"
	Baseline      NormalizerName = "baseline"
)

type ThresholdName string

const (
	RealThresholdName     ThresholdName = "real"
	AbsoluteThresholdName ThresholdName = "absolute"
	NoThresholdName       ThresholdName = "none"
)

// NewSimilarity creates a similarity function by name.
func NewSimilarity(name SimilarityName) (Similarity, error) {
	switch name {
	case Pearson:
		return PearsonSimilarity{}, nil
	case Cosine:
		return CosineSimilarity{}, nil
	case MSD:
		return MSDSimilarity{}, nil
	case Spearman:
		return SpearmanSimilarity{}, nil
	default:
		return nil, errors.NotValidf("similarity %q", name)
	}
}

// NewNormalizer creates a normalizer by name. The baseline normalizer is fitted on store.
func NewNormalizer(ctx context.Context, name NormalizerName, store RatingStore, damping float64) (Normalizer, error) {
	switch name {
	case Identity:
		return IdentityNormalizer{}, nil
	case MeanCentering:
		return MeanCenteringNormalizer{}, nil
	case ZScore:
		return ZScoreNormalizer{}, nil
	case Baseline:
		normalizer, err := FitBaselineNormalizer(ctx, store, damping)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return normalizer, nil
	default:
		return nil, errors.NotValidf("normalizer %q", name)
	}
}

// NewThreshold creates a threshold by name.
func NewThreshold(name ThresholdName, value float64) (Threshold, error) {
	switch name {
	case RealThresholdName:
		return RealThreshold{Value: value}, nil
	case AbsoluteThresholdName:
		return AbsoluteThreshold{Value: value}, nil
	case NoThresholdName:
		return NoThreshold{}, nil
	default:
		return nil, errors.NotValidf("threshold %q", name)
	}
}
