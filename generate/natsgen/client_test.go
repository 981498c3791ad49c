package natsgen

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/framestream/errors"
	"github.com/c360/framestream/frame"
	"github.com/c360/framestream/generate"
	"github.com/c360/framestream/natsclient"
	"github.com/c360/framestream/session"
)

func testImage(t *testing.T) image.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	return img
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(t), nil))
	return buf.Bytes()
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	nc, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	client, err := New(nc, frame.NewCodec(80), Config{
		Subject:     "framestream.generate",
		Timeout:     time.Second,
		SafetyCheck: true,
	})
	require.NoError(t, err)
	return client
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid",
			config: Config{Subject: "framestream.generate", Timeout: 30 * time.Second},
		},
		{
			name:    "missing subject",
			config:  Config{Timeout: 30 * time.Second},
			wantErr: true,
		},
		{
			name:    "zero timeout",
			config:  Config{Subject: "framestream.generate"},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			config:  Config{Subject: "framestream.generate", Timeout: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	nc, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	codec := frame.NewCodec(80)
	config := Config{Subject: "framestream.generate", Timeout: time.Second}

	_, err = New(nil, codec, config)
	require.Error(t, err)

	_, err = New(nc, nil, config)
	require.Error(t, err)

	_, err = New(nc, codec, Config{})
	require.Error(t, err)

	client, err := New(nc, codec, config)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestEncodeRequest(t *testing.T) {
	client := newTestClient(t)

	params := session.DefaultParams()
	params.Prompt = "a watercolor landscape"

	payload, err := client.encodeRequest(testImage(t), params)
	require.NoError(t, err)

	var envelope requestEnvelope
	require.NoError(t, json.Unmarshal(payload, &envelope))

	assert.True(t, envelope.SafetyCheck)
	assert.Equal(t, "a watercolor landscape", envelope.Params.Prompt)
	assert.Equal(t, int64(session.DefaultSeed), envelope.Params.Seed)

	// Image bytes must decode back to a JPEG.
	decoded, err := client.codec.Decode(envelope.Image)
	require.NoError(t, err)
	assert.Equal(t, 8, decoded.Bounds().Dx())
}

func TestDecodeReply(t *testing.T) {
	client := newTestClient(t)

	t.Run("ok returns image", func(t *testing.T) {
		data, err := json.Marshal(replyEnvelope{Status: "ok", Image: testJPEG(t)})
		require.NoError(t, err)

		img, err := client.decodeReply(data)
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	})

	t.Run("rejected maps to sentinel", func(t *testing.T) {
		data, err := json.Marshal(replyEnvelope{Status: "rejected"})
		require.NoError(t, err)

		_, err = client.decodeReply(data)
		assert.ErrorIs(t, err, generate.ErrRejected)
	})

	t.Run("worker error is transient", func(t *testing.T) {
		data, err := json.Marshal(replyEnvelope{Status: "error", Detail: "CUDA out of memory"})
		require.NoError(t, err)

		_, err = client.decodeReply(data)
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
		assert.Contains(t, err.Error(), "CUDA out of memory")
	})

	t.Run("unknown status is invalid", func(t *testing.T) {
		data, err := json.Marshal(replyEnvelope{Status: "bogus"})
		require.NoError(t, err)

		_, err = client.decodeReply(data)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("malformed reply is invalid", func(t *testing.T) {
		_, err := client.decodeReply([]byte("not json"))
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("ok with corrupt image fails decode", func(t *testing.T) {
		data, err := json.Marshal(replyEnvelope{Status: "ok", Image: []byte("junk")})
		require.NoError(t, err)

		_, err = client.decodeReply(data)
		require.Error(t, err)
	})
}
