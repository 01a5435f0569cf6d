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
	"github.com/gorse-io/usercf/common/heap"
	"github.com/gorse-io/usercf/dataset"
)

// Neighbor is a candidate user with its raw ratings and its similarity to a target user.
type Neighbor struct {
	UserId     int64
	Ratings    dataset.RatingVector
	Similarity float64
}

// NeighborhoodPool keeps at most k neighbors with the highest similarities. When the pool is
// full, the neighbor with the lowest similarity is evicted first.
type NeighborhoodPool struct {
	filter *heap.TopKFilter[Neighbor, float64]
}

// NewNeighborhoodPool creates a pool of capacity k.
func NewNeighborhoodPool(k int) *NeighborhoodPool {
	return &NeighborhoodPool{filter: heap.NewTopKFilter[Neighbor, float64](k)}
}

// Add offers a neighbor to the pool.
func (p *NeighborhoodPool) Add(n Neighbor) {
	p.filter.Push(n, n.Similarity)
}

func (p *NeighborhoodPool) Len() int {
	return p.filter.Len()
}

// Neighbors drains the pool and returns neighbors by similarity descending. Neighbors with
// equal similarity keep the order they were added in.
func (p *NeighborhoodPool) Neighbors() []Neighbor {
	return p.filter.PopAllValues()
}
