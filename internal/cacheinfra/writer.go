package cacheinfra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/concoro-it/concoro/internal/logging"
)

type remoteWrite struct {
	key     string
	payload []byte
	ttl     time.Duration
}

// asyncWriter performs remote writes on a detached goroutine.
// Failures travel on errs and are logged by a second goroutine; callers never wait.
type asyncWriter struct {
	store    RemoteStore
	timeout  time.Duration
	logger   logging.Logger
	observer Observer

	mu     sync.Mutex
	closed bool
	jobs   chan remoteWrite
	errs   chan error
	wg     sync.WaitGroup
}

func newAsyncWriter(store RemoteStore, queueSize int, timeout time.Duration, logger logging.Logger, observer Observer) *asyncWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	w := &asyncWriter{
		store:    store,
		timeout:  timeout,
		logger:   logger,
		observer: observer,
		jobs:     make(chan remoteWrite, queueSize),
		errs:     make(chan error, queueSize),
	}

	w.wg.Add(2)
	go w.run()
	go w.report()

	return w
}

// enqueue schedules a write. It never blocks: when the queue is full or the
// writer is closed the write is dropped and false is returned.
func (w *asyncWriter) enqueue(job remoteWrite) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}

	select {
	case w.jobs <- job:
		return true
	default:
		w.logger.Warn("remote cache write dropped, queue full", "key", job.key)
		w.observer.RemoteError("set")
		return false
	}
}

func (w *asyncWriter) run() {
	defer w.wg.Done()
	defer close(w.errs)

	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.store.Set(ctx, job.key, job.payload, job.ttl)
		cancel()
		if err != nil {
			w.errs <- fmt.Errorf("remote set %q: %w: %w", job.key, ErrRemoteCacheUnavailable, err)
		}
	}
}

func (w *asyncWriter) report() {
	defer w.wg.Done()

	for err := range w.errs {
		w.logger.Warn("remote cache write failed", "error", err)
		w.observer.RemoteError("set")
	}
}

// close stops accepting writes and waits for queued ones to finish.
func (w *asyncWriter) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
}
