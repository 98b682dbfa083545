package checkout

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	retrierQueueSize = 64
	retrierAttempts  = 5
	retrierBackoff   = time.Second
	retrierTimeout   = 10 * time.Second
)

type retryTask struct {
	name string
	fn   func(ctx context.Context) error
}

// retrier runs best-effort cleanup work (cart clear, profile sync) out of
// band. Tasks never affect the placement result.
type retrier struct {
	tasks  chan retryTask
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
}

func newRetrier(logger *log.Logger) *retrier {
	r := &retrier{
		tasks:  make(chan retryTask, retrierQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.run()
	return r
}

func (r *retrier) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case r.tasks <- retryTask{name: name, fn: fn}:
	default:
		r.logger.Printf("checkout retrier: queue full, dropping %s", name)
	}
}

func (r *retrier) run() {
	defer close(r.done)
	for task := range r.tasks {
		r.attempt(task)
	}
}

func (r *retrier) attempt(task retryTask) {
	for i := 0; i < retrierAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), retrierTimeout)
		err := task.fn(ctx)
		cancel()
		if err == nil {
			return
		}
		r.logger.Printf("checkout retrier: %s attempt %d failed: %v", task.name, i+1, err)
		time.Sleep(retrierBackoff * time.Duration(i+1))
	}
	r.logger.Printf("checkout retrier: %s gave up after %d attempts", task.name, retrierAttempts)
}

func (r *retrier) close() {
	r.once.Do(func() {
		close(r.tasks)
		<-r.done
	})
}
