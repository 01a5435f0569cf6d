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

import "math"

// Threshold decides whether a similarity value is good enough for a neighbor.
type Threshold interface {
	Accept(sim float64) bool
}

// RealThreshold accepts similarities strictly greater than Value.
type RealThreshold struct {
	Value float64
}

func (t RealThreshold) Accept(sim float64) bool {
	return sim > t.Value
}

// AbsoluteThreshold accepts similarities whose magnitude is strictly greater than Value.
type AbsoluteThreshold struct {
	Value float64
}

func (t AbsoluteThreshold) Accept(sim float64) bool {
	return math.Abs(sim) > t.Value
}

// NoThreshold accepts every similarity.
type NoThreshold struct{}

func (NoThreshold) Accept(float64) bool {
	return true
}
