package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
)

/**
 * @brief Describes a job to be run. OnStart is required, the callbacks are optional.
 */
type JobTask struct {
	InputParams          interface{}
	OnStart              func(params interface{}) error
	OnComplete           func()
	OnFailure            func(err error)
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	if err := job.OnStart(job.InputParams); err != nil {
		core.LogError("job failed: %s", err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete()
	}

	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Shuts the job system down. Queued jobs are drained first.
 */
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() { close(js.jobQueue) })
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution.
 * @param info The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) {
	js.jobQueue <- jt
}

// ParallelFor splits [0, n) into one contiguous range per worker and blocks
// until fn has run over all of them. Returns the first error reported.
func (js *JobSystem) ParallelFor(n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	chunks := js.numWorkers
	if chunks > n {
		chunks = n
	}
	step := (n + chunks - 1) / chunks

	var (
		done     sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < n; start += step {
		end := start + step
		if end > n {
			end = n
		}
		done.Add(1)
		js.Submit(JobTask{
			InputParams: [2]int{start, end},
			OnStart: func(params interface{}) error {
				r := params.([2]int)
				return fn(r[0], r[1])
			},
			OnFailure: func(err error) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			},
			OnCompletionCallback: done.Done,
		})
	}
	done.Wait()
	return firstErr
}
