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

package eval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluatedUsersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "usercf",
		Subsystem: "evaluator",
		Name:      "evaluated_users_total",
	})
	NoEstimatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "usercf",
		Subsystem: "evaluator",
		Name:      "no_estimates_total",
	})
	PredictUserSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "usercf",
		Subsystem: "evaluator",
		Name:      "predict_user_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	EvaluationSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "usercf",
		Subsystem: "evaluator",
		Name:      "evaluation_seconds",
	}, []string{"task"})
	EvaluationScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "usercf",
		Subsystem: "evaluator",
		Name:      "evaluation_score",
	}, []string{"metric"})
)
