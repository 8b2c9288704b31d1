package detector

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/go-yolo/logging"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

// Job is a frame waiting for detection.
type Job struct {
	// ID identifies the frame. Empty IDs are filled in by Submit.
	ID string
	// Image is the frame.
	Image image.Image
	// Captured is when the frame was read from its source.
	Captured time.Time
}

// Frame is the outcome of one Job.
type Frame struct {
	ID     string
	Result postprocess.Result
	Err    error
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	// QueueSize bounds both the pending jobs and the undelivered results.
	QueueSize int `json:"queue_size"     yaml:"queue_size"`
	// DropWhenBusy makes Submit drop frames instead of blocking when the queue is full.
	DropWhenBusy bool `json:"drop_when_busy" yaml:"drop_when_busy"`
}

// Worker feeds frames to a Detector from a single goroutine, in arrival order.
type Worker struct {
	detector *Detector
	opts     WorkerOptions
	profiler *profiler.Profiler

	mu      sync.RWMutex
	closed  bool
	jobs    chan Job
	results chan Frame
	done    chan struct{}
	started atomic.Bool

	submitted atomic.Int64
	dropped   atomic.Int64
}

// NewWorker creates a Worker. Call Start to begin processing.
func NewWorker(d *Detector, opts WorkerOptions, p *profiler.Profiler) *Worker {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	return &Worker{
		detector: d,
		opts:     opts,
		profiler: p,
		jobs:     make(chan Job, opts.QueueSize),
		results:  make(chan Frame, opts.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the processing goroutine. It runs until Close is called or
// ctx is done, then closes the results channel.
func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.results)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			frame := w.process(ctx, job)
			select {
			case w.results <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) Frame {
	start := job.Captured
	if start.IsZero() {
		start = time.Now()
	}

	result, err := w.detector.Detect(ctx, job.Image)
	if w.profiler != nil {
		w.profiler.Record(profiler.StageTotal, time.Since(start))
	}
	if err != nil {
		logging.WithFrame(job.ID).WithError(err).Error("[detector.Worker] detection failed")
		return Frame{ID: job.ID, Err: err}
	}

	logging.WithFrame(job.ID).WithField("status", result.Status.String()).
		WithField("boxes", len(result.Boxes)).Debug("[detector.Worker] frame processed")
	return Frame{ID: job.ID, Result: result}
}

// Submit queues a frame.
//
// With DropWhenBusy a full queue drops the frame and Submit returns false.
// Otherwise Submit blocks until there is room. Submit returns false after
// Close or once the worker has stopped.
func (w *Worker) Submit(job Job) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
	}
	if job.ID == "" {
		job.ID = logging.NewFrameID()
	}

	if w.opts.DropWhenBusy {
		select {
		case w.jobs <- job:
			w.submitted.Add(1)
			return true
		default:
			w.dropped.Add(1)
			logging.WithFrame(job.ID).Debug("[detector.Worker] queue full, frame dropped")
			return false
		}
	}

	select {
	case w.jobs <- job:
		w.submitted.Add(1)
		return true
	case <-w.done:
		return false
	}
}

// Results delivers one Frame per accepted Job, in submission order.
func (w *Worker) Results() <-chan Frame {
	return w.results
}

// Dropped returns how many frames Submit has dropped.
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

// Submitted returns how many frames Submit has accepted.
func (w *Worker) Submitted() int64 {
	return w.submitted.Load()
}

// Close stops accepting frames, lets queued frames finish and waits for the
// worker to exit. Results must be drained for Close to return.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	if w.started.Load() {
		<-w.done
	}
}
