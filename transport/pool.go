package transport

import (
	"context"
	"errors"
	"net"
	"sync"
)

// maxPooledBuffer is the largest buffer returned to the pool.
const maxPooledBuffer = 16384

// BufferPool recycles datagram buffers handed to the worker pool.
type BufferPool struct {
	buffers sync.Pool
	size    int
}

// NewBufferPool returns a pool of buffers with capacity size.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.buffers.New = func() any {
		return make([]byte, 0, size)
	}
	return bp
}

// Get returns an empty buffer.
func (bp *BufferPool) Get() []byte {
	buf, ok := bp.buffers.Get().([]byte)
	if !ok {
		return make([]byte, 0, bp.size)
	}
	return buf[:0]
}

// Put returns buf to the pool. Buffers above 16 KiB are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) <= maxPooledBuffer {
		bp.buffers.Put(any(buf[:0]))
	}
}

// Copy returns a pooled buffer holding a copy of b.
func (bp *BufferPool) Copy(b []byte) []byte {
	buf := bp.Get()
	if cap(buf) < len(b) {
		buf = make([]byte, len(b))
	} else {
		buf = buf[:len(b)]
	}
	copy(buf, b)
	return buf
}

// ErrPoolStopped is returned when submitting to a stopped worker pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// Job is one received datagram waiting for a worker.
type Job struct {
	payload []byte
	remote  net.Addr
}

// WorkerPool processes received datagrams on a fixed set of goroutines.
type WorkerPool struct {
	workers int
	handler Handler
	buffers *BufferPool
	jobs    chan Job

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool returns a pool of workers goroutines feeding handler.
// Payloads are returned to buffers once handled.
func NewWorkerPool(workers int, handler Handler, buffers *BufferPool) (*WorkerPool, error) {
	if workers < 1 {
		return nil, errors.New("worker pool size must be at least 1")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	return &WorkerPool{
		workers: workers,
		handler: handler,
		buffers: buffers,
		jobs:    make(chan Job, workers*2),
	}, nil
}

// Start launches the workers.
func (w *WorkerPool) Start() {
	for range w.workers {
		w.wg.Add(1)
		go w.worker()
	}
}

// Stop closes the queue and waits for queued jobs to drain.
func (w *WorkerPool) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *WorkerPool) worker() {
	defer w.wg.Done()
	for job := range w.jobs {
		w.handler.HandleMessage(job.payload, job.remote)
		if w.buffers != nil {
			w.buffers.Put(job.payload)
		}
	}
}

// Submit queues payload for a worker, blocking while the queue is full.
// On failure the payload is returned to the buffer pool.
func (w *WorkerPool) Submit(ctx context.Context, payload []byte, remote net.Addr) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.release(payload)
		return ErrPoolStopped
	}

	select {
	case w.jobs <- Job{payload: payload, remote: remote}:
		return nil
	case <-ctx.Done():
		w.release(payload)
		return ctx.Err()
	}
}

func (w *WorkerPool) release(payload []byte) {
	if w.buffers != nil {
		w.buffers.Put(payload)
	}
}
