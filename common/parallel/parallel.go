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

package parallel

import (
	"context"
	"sync"

	"github.com/gorse-io/usercf/common/log"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const chanSize = 1024

/* Parallel Schedulers */

// Parallel schedules and runs tasks in parallel. nJobs is the number of tasks. nWorkers is
// the number of executors. worker is the executed function which is passed the id of the
// executor and the id of the task. A failed task does not stop the others: every task runs
// unless ctx is cancelled, and the earliest failure is returned once all executors have
// stopped. A panic in a task is recovered and reported as the failure of that task.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	var (
		mu       sync.Mutex
		firstErr error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if ctx.Err() != nil {
				break
			}
			if err := safeRun(0, i, worker); err != nil {
				record(err)
			}
		}
	} else {
		c := make(chan int, chanSize)
		// producer
		go func() {
			defer close(c)
			for i := 0; i < nJobs; i++ {
				select {
				case <-ctx.Done():
					return
				case c <- i:
				}
			}
		}()
		// consumer
		var wg sync.WaitGroup
		for j := 0; j < nWorkers; j++ {
			workerId := j
			wg.Go(func() {
				for jobId := range c {
					if ctx.Err() != nil {
						continue
					}
					if err := safeRun(workerId, jobId, worker); err != nil {
						record(err)
					}
				}
			})
		}
		wg.Wait()
	}
	if firstErr != nil {
		return errors.Trace(firstErr)
	}
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func safeRun(workerId, jobId int, worker func(workerId, jobId int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("panic recovered", zap.Int("job_id", jobId), zap.Any("panic", r))
			err = errors.Errorf("job %d panicked: %v", jobId, r)
		}
	}()
	return worker(workerId, jobId)
}

// ForEach runs worker on every element of a. It stops handing out elements once ctx is
// cancelled and returns the cancellation cause.
func ForEach[T any](ctx context.Context, a []T, nWorkers int, worker func(int, T)) error {
	if nWorkers <= 1 {
		for i, v := range a {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			worker(i, v)
		}
		return nil
	}
	c := make(chan lo.Tuple2[int, T], chanSize)
	// producer
	go func() {
		defer close(c)
		for i, v := range a {
			select {
			case <-ctx.Done():
				return
			case c <- lo.Tuple2[int, T]{A: i, B: v}:
			}
		}
	}()
	// consumer
	var wg sync.WaitGroup
	for j := 0; j < nWorkers; j++ {
		wg.Go(func() {
			for job := range c {
				if ctx.Err() != nil {
					continue
				}
				worker(job.A, job.B)
			}
		})
	}
	wg.Wait()
	return errors.Trace(ctx.Err())
}

