// Package detector - Serialized object detection over an inference engine.
package detector

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/logging"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

var (
	// ErrClassMismatch is returned when the label count does not match the
	// number of class channels the model declares.
	ErrClassMismatch = errors.New("label count does not match model class channels")
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("detector closed")
)

// Classes is an ordered label set.
type Classes interface {
	postprocess.Labeler
	Len() int
}

// Detector runs inference and post-processing on one frame at a time.
//
// The engine's output buffer is shared between runs, so every call that
// touches it holds the same lock.
type Detector struct {
	mu       sync.Mutex
	engine   inference.Engine
	classes  Classes
	config   *postprocess.Config
	profiler *profiler.Profiler
}

// New creates a Detector.
//
// Arguments:
//   - engine: The inference engine. The detector owns it from now on.
//   - classes: Labels ordered by class index.
//   - config: Post-processing thresholds. Nil uses postprocess.DefaultConfig.
//
// Returns:
//   - *Detector: The detector.
//   - error: ErrClassMismatch, or an invalid config.
func New(engine inference.Engine, classes Classes, config *postprocess.Config) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if config == nil {
		config = postprocess.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := checkClasses(engine, classes); err != nil {
		return nil, err
	}
	return &Detector{engine: engine, classes: classes, config: config}, nil
}

func checkClasses(engine inference.Engine, classes Classes) error {
	shape := engine.Shape()
	if classes == nil || !shape.Ready() {
		return nil
	}
	if classes.Len() != shape.NumClasses() {
		return errors.Wrapf(ErrClassMismatch, "%d labels, model has %d classes", classes.Len(), shape.NumClasses())
	}
	return nil
}

// WithProfiler records per-stage timings into p.
func (d *Detector) WithProfiler(p *profiler.Profiler) *Detector {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiler = p
	return d
}

func (d *Detector) record(stage string, since time.Time) {
	if d.profiler != nil {
		d.profiler.Record(stage, time.Since(since))
	}
}

// Detect runs the model on img and post-processes its output.
//
// A model whose shape is not known yet yields StatusNotReady without running
// inference. Duration of a detected Result covers inference, decoding and
// suppression.
//
// Arguments:
//   - ctx: Checked before inference starts.
//   - img: The frame.
//
// Returns:
//   - postprocess.Result: The tagged outcome, StatusInvalid whenever err is not nil.
//   - error: Inference failures, or postprocess.ErrLabelOutOfRange.
func (d *Detector) Detect(ctx context.Context, img image.Image) (postprocess.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine == nil {
		return postprocess.Result{}, ErrClosed
	}
	if !d.engine.Shape().Ready() {
		return postprocess.Result{Status: postprocess.StatusNotReady}, nil
	}

	start := time.Now()
	out, err := d.engine.Run(ctx, img)
	if err != nil {
		return postprocess.Result{}, errors.Wrap(err, "inference")
	}
	d.record(profiler.StageInference, start)

	processStart := time.Now()
	result, err := postprocess.Process(out, d.classes, d.config)
	if err != nil {
		return postprocess.Result{}, err
	}
	d.record(profiler.StageProcess, processStart)

	if result.Status != postprocess.StatusNotReady {
		result.Duration = time.Since(start)
	}
	return result, nil
}

// Restart replaces the engine with one opened on another backend.
//
// The new engine is opened first; on failure the current engine is kept.
//
// Arguments:
//   - factory: Opens an engine for a backend.
//   - backend: The backend to switch to.
//
// Returns:
//   - error: If the engine cannot be opened or its classes do not match.
func (d *Detector) Restart(factory inference.Factory, backend inference.Backend) error {
	engine, err := factory(backend)
	if err != nil {
		return errors.Wrapf(err, "open %s engine", backend)
	}
	if err := checkClasses(engine, d.classes); err != nil {
		engine.Close()
		return err
	}

	d.mu.Lock()
	old := d.engine
	d.engine = engine
	d.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "[detector.Restart] failed to close previous engine")
		}
	}
	logging.Info(logging.Fields{"backend": backend}, "[detector.Restart] engine restarted")
	return nil
}

// SetConfig replaces the post-processing thresholds.
func (d *Detector) SetConfig(config *postprocess.Config) error {
	if config == nil {
		config = postprocess.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = config
	return nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil
	}
	err := d.engine.Close()
	d.engine = nil
	return err
}
