// Package natsgen implements the Generator interface over NATS request/reply.
// The inference worker subscribes on a well-known subject; each generation
// request travels as a JSON envelope carrying the JPEG-encoded input image,
// the generation parameters, and the safety-gate flag.
package natsgen

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"github.com/c360/framestream/errors"
	"github.com/c360/framestream/frame"
	"github.com/c360/framestream/generate"
	"github.com/c360/framestream/natsclient"
	"github.com/c360/framestream/session"
)

// Reply status values produced by the inference worker.
const (
	statusOK       = "ok"
	statusRejected = "rejected"
	statusError    = "error"
)

// requestEnvelope is the wire format sent to the generation worker.
// Image bytes are JPEG and base64-encoded by encoding/json.
type requestEnvelope struct {
	Image       []byte         `json:"image"`
	Params      session.Params `json:"params"`
	SafetyCheck bool           `json:"safety_check"`
}

// replyEnvelope is the wire format returned by the generation worker.
type replyEnvelope struct {
	Status string `json:"status"`
	Image  []byte `json:"image,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Config holds generator client settings.
type Config struct {
	// Subject is the request/reply subject the worker listens on.
	Subject string
	// Timeout bounds a single generation round trip.
	Timeout time.Duration
	// SafetyCheck enables the worker's content-safety gate.
	SafetyCheck bool
}

// Validate checks generator client configuration.
func (c Config) Validate() error {
	if c.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"natsgen", "Validate", "validate subject")
	}
	if c.Timeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("timeout must be positive, got %s", c.Timeout),
			"natsgen", "Validate", "validate timeout")
	}
	return nil
}

// Client sends generation requests to the inference worker over NATS.
type Client struct {
	nats   *natsclient.Client
	codec  *frame.Codec
	config Config
}

// Ensure Client implements the Generator interface
var _ generate.Generator = (*Client)(nil)

// New creates a generator client.
func New(nats *natsclient.Client, codec *frame.Codec, config Config) (*Client, error) {
	if nats == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"natsgen", "New", "NATS client is required")
	}
	if codec == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"natsgen", "New", "frame codec is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		nats:   nats,
		codec:  codec,
		config: config,
	}, nil
}

// Generate sends one request to the worker and decodes the produced frame.
// A worker-side content-safety rejection surfaces as generate.ErrRejected;
// transport failures are transient errors the caller may skip past.
func (c *Client) Generate(ctx context.Context, img image.Image, params session.Params) (image.Image, error) {
	payload, err := c.encodeRequest(img, params)
	if err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	data, err := c.nats.Request(ctx, c.config.Subject, payload)
	if err != nil {
		return nil, err
	}

	return c.decodeReply(data)
}

// encodeRequest builds the JSON envelope for one generation request.
func (c *Client) encodeRequest(img image.Image, params session.Params) ([]byte, error) {
	imageData, err := c.codec.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(requestEnvelope{
		Image:       imageData,
		Params:      params,
		SafetyCheck: c.config.SafetyCheck,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "natsgen", "encodeRequest", "marshal envelope")
	}

	return payload, nil
}

// decodeReply maps a worker reply to an image or a rejection.
func (c *Client) decodeReply(data []byte) (image.Image, error) {
	var reply replyEnvelope
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, errors.WrapInvalid(err, "natsgen", "decodeReply", "unmarshal reply")
	}

	switch reply.Status {
	case statusOK:
		return c.codec.Decode(reply.Image)
	case statusRejected:
		return nil, generate.ErrRejected
	case statusError:
		return nil, errors.WrapTransient(
			fmt.Errorf("worker error: %s", reply.Detail),
			"natsgen", "decodeReply", "generation")
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown reply status %q", reply.Status),
			"natsgen", "decodeReply", "validate reply")
	}
}
