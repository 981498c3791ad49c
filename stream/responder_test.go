package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/framestream/frame"
	"github.com/c360/framestream/generate"
	"github.com/c360/framestream/metric"
	"github.com/c360/framestream/session"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return img
}

// countingGenerator passes frames through and counts invocations. Requests
// whose prompt is "reject" simulate a content-safety rejection.
type countingGenerator struct {
	calls atomic.Int64
}

func (g *countingGenerator) Generate(_ context.Context, img image.Image, params session.Params) (image.Image, error) {
	g.calls.Add(1)
	if params.Prompt == "reject" {
		return nil, generate.ErrRejected
	}
	return img, nil
}

type fixture struct {
	registry  *session.Registry
	generator *countingGenerator
	metrics   *metric.MetricsRegistry
	srv       *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := metric.NewMetricsRegistry()
	registry := session.NewRegistry(0, logger, metrics)
	generator := &countingGenerator{}
	responder := NewResponder(registry, generator, frame.NewCodec(80), DefaultFrameRate, logger, metrics)

	mux := http.NewServeMux()
	mux.Handle(PathPrefix, responder)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(registry.Close)

	return &fixture{registry: registry, generator: generator, metrics: metrics, srv: srv}
}

func (f *fixture) open(t *testing.T, userID string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + PathPrefix + userID)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/x-mixed-replace", mediaType)
	require.Equal(t, "frame", params["boundary"])

	return resp, bufio.NewReader(resp.Body)
}

// readFrame parses one multipart part off the live stream using the
// per-part Content-Length.
func readFrame(t *testing.T, reader *bufio.Reader) []byte {
	t.Helper()

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "--frame", strings.TrimRight(line, "\r\n"))

	length := -1
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			length, err = strconv.Atoi(v)
			require.NoError(t, err)
		}
	}
	require.GreaterOrEqual(t, length, 0, "part missing Content-Length")

	data := make([]byte, length)
	_, err = io.ReadFull(reader, data)
	require.NoError(t, err)

	// Part trailer.
	_, err = reader.Discard(2)
	require.NoError(t, err)

	return data
}

func TestUnknownSessionNotFound(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+PathPrefix+"no-such-session", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "http://example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "session not found", body["error"])
}

func TestResponseStartsBeforeFirstFrame(t *testing.T) {
	f := newFixture(t)
	sess, err := f.registry.Admit()
	require.NoError(t, err)

	// Connect with an empty queue: the multipart response must begin
	// immediately, not once the first frame is produced.
	client := &http.Client{
		Transport: &http.Transport{ResponseHeaderTimeout: 2 * time.Second},
	}
	resp, err := client.Get(f.srv.URL + PathPrefix + sess.ID)
	require.NoError(t, err, "response headers must not wait for a frame")
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")

	// The stream then delivers frames as uploads arrive.
	require.NoError(t, sess.Queue.Put(session.Request{
		Image:  testImage(),
		Params: session.DefaultParams(),
	}))
	readFrame(t, bufio.NewReader(resp.Body))
}

func TestMissingSessionIDNotFound(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + PathPrefix)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamEmitsFrames(t *testing.T) {
	f := newFixture(t)
	sess, err := f.registry.Admit()
	require.NoError(t, err)

	require.NoError(t, sess.Queue.Put(session.Request{
		Image:  testImage(),
		Params: session.DefaultParams(),
	}))

	_, reader := f.open(t, sess.ID)

	data := readFrame(t, reader)
	decoded, err := frame.NewCodec(80).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.Bounds().Dx())

	// A second upload produces a second part on the same response.
	require.NoError(t, sess.Queue.Put(session.Request{
		Image:  testImage(),
		Params: session.DefaultParams(),
	}))
	readFrame(t, reader)

	assert.Equal(t, int64(2), f.generator.calls.Load())
}

func TestRejectedFrameNotEmitted(t *testing.T) {
	f := newFixture(t)
	sess, err := f.registry.Admit()
	require.NoError(t, err)

	rejected := session.DefaultParams()
	rejected.Prompt = "reject"
	require.NoError(t, sess.Queue.Put(session.Request{Image: testImage(), Params: rejected}))

	_, reader := f.open(t, sess.ID)

	// Wait until the rejected request has been consumed, then upload a
	// passing one; the first part on the wire comes from the second upload.
	require.Eventually(t, func() bool {
		return f.generator.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Queue.Put(session.Request{
		Image:  testImage(),
		Params: session.DefaultParams(),
	}))
	readFrame(t, reader)

	assert.Equal(t, int64(2), f.generator.calls.Load())
}

func TestNilImageSkipped(t *testing.T) {
	f := newFixture(t)
	sess, err := f.registry.Admit()
	require.NoError(t, err)

	require.NoError(t, sess.Queue.Put(session.Request{Params: session.DefaultParams()}))

	_, reader := f.open(t, sess.ID)

	// The nil-image request is dropped without invoking the generator.
	require.NoError(t, sess.Queue.Put(session.Request{
		Image:  testImage(),
		Params: session.DefaultParams(),
	}))
	readFrame(t, reader)

	assert.Equal(t, int64(1), f.generator.calls.Load())
}

func TestTeardownEndsStream(t *testing.T) {
	f := newFixture(t)
	sess, err := f.registry.Admit()
	require.NoError(t, err)

	require.NoError(t, sess.Queue.Put(session.Request{
		Image:  testImage(),
		Params: session.DefaultParams(),
	}))

	resp, reader := f.open(t, sess.ID)
	readFrame(t, reader)

	f.registry.Remove(sess.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain until the server ends the response.
		io.Copy(io.Discard, resp.Body)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after session teardown")
	}
}

func TestGenerateDurationRecorded(t *testing.T) {
	f := newFixture(t)
	sess, err := f.registry.Admit()
	require.NoError(t, err)

	require.NoError(t, sess.Queue.Put(session.Request{
		Image:  testImage(),
		Params: session.DefaultParams(),
	}))

	_, reader := f.open(t, sess.ID)
	readFrame(t, reader)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "framestream_stream_generate_duration_seconds")
}
