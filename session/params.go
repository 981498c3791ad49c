package session

import (
	"encoding/json"

	"github.com/c360/framestream/errors"
)

// Default generation parameter values applied when the client omits a field.
const (
	DefaultSeed          = 2159232
	DefaultGuidanceScale = 8.0
	DefaultStrength      = 0.5
	DefaultWidth         = 512
	DefaultHeight        = 512
)

// Params carries the generation parameters uploaded alongside each image.
// Field names match the wire protocol of the upload channel.
type Params struct {
	Prompt        string  `json:"prompt"`
	Seed          int64   `json:"seed"`
	GuidanceScale float64 `json:"guidance_scale"`
	Strength      float64 `json:"strength"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
}

// DefaultParams returns the documented parameter defaults.
func DefaultParams() Params {
	return Params{
		Seed:          DefaultSeed,
		GuidanceScale: DefaultGuidanceScale,
		Strength:      DefaultStrength,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
	}
}

// ParseParams decodes a structured payload into Params, merging provided
// fields over the defaults. Malformed JSON yields an invalid-classified
// error; the ingress handler treats that as fatal for the session.
func ParseParams(data []byte) (Params, error) {
	params := DefaultParams()
	if err := json.Unmarshal(data, &params); err != nil {
		return Params{}, errors.WrapInvalid(err, "Params", "ParseParams", "unmarshal params")
	}
	return params, nil
}
