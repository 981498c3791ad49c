// Package generate defines the seam to the external generation collaborator:
// the component that turns a (image, parameters) request into an output
// image or a content-safety rejection.
package generate

import (
	"context"
	"errors"
	"image"

	"github.com/c360/framestream/session"
)

// ErrRejected is returned when the collaborator declines to produce output,
// typically because the content-safety gate fired. Callers treat it as "no
// frame this cycle", never as a session-fatal error.
var ErrRejected = errors.New("generation rejected")

// Generator produces an output image for a request. Implementations must be
// safe for concurrent use: one call per live session may be in flight.
type Generator interface {
	Generate(ctx context.Context, img image.Image, params session.Params) (image.Image, error)
}

// Func adapts a plain function to the Generator interface. Used by tests
// and in-process generators.
type Func func(ctx context.Context, img image.Image, params session.Params) (image.Image, error)

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, img image.Image, params session.Params) (image.Image, error) {
	return f(ctx, img, params)
}
