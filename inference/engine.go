// Package inference - Model execution backends producing raw detector output.
package inference

import (
	"context"
	"image"

	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Engine runs a detection model on one image at a time.
//
// The Output returned by Run may alias a buffer owned by the engine; it is
// only valid until the next call to Run. Callers serialize Run themselves.
type Engine interface {
	// Shape returns the geometry the model declared when it was loaded.
	Shape() model.Shape
	// Run prepares the image, executes the model and returns its raw output.
	Run(ctx context.Context, img image.Image) (postprocess.Output, error)
	// Close releases native resources.
	Close() error
}

// Factory opens an engine for a backend.
type Factory func(backend Backend) (Engine, error)
