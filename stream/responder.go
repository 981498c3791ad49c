// Package stream serves generated frames back to viewers as a
// multipart/x-mixed-replace MJPEG response, one stream per session.
package stream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/framestream/errors"
	"github.com/c360/framestream/frame"
	"github.com/c360/framestream/generate"
	"github.com/c360/framestream/metric"
	"github.com/c360/framestream/session"
)

// PathPrefix is the route the responder is mounted on; the session id is
// the remainder of the path.
const PathPrefix = "/stream/"

// DefaultFrameRate caps frame emission when no rate is configured.
const DefaultFrameRate = 120

const boundary = "frame"

// Responder streams generated frames for one session per request.
type Responder struct {
	registry  *session.Registry
	generator generate.Generator
	codec     *frame.Codec
	frameRate float64
	logger    *slog.Logger
	metrics   *Metrics
}

// NewResponder creates the MJPEG streaming handler. frameRate bounds frames
// per second per stream; non-positive values fall back to the default cap.
func NewResponder(
	registry *session.Registry,
	generator generate.Generator,
	codec *frame.Codec,
	frameRate float64,
	logger *slog.Logger,
	metricsRegistry *metric.MetricsRegistry,
) *Responder {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Responder{
		registry:  registry,
		generator: generator,
		codec:     codec,
		frameRate: frameRate,
		logger:    logger.With("component", "stream"),
		metrics:   newMetrics(metricsRegistry),
	}
}

// ServeHTTP looks up the session named by the path and streams frames until
// the viewer disconnects or the session is torn down.
func (s *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)

	userID := strings.TrimPrefix(r.URL.Path, PathPrefix)
	if userID == "" || strings.Contains(userID, "/") {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, ok := s.registry.Lookup(userID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Session teardown must end this loop as well as viewer disconnect.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(sess.Context(), cancel)
	defer stop()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	// The response must start before the first frame exists; without this
	// flush the viewer is stuck in the handshake until a frame is written.
	flusher.Flush()

	if s.metrics != nil {
		s.metrics.streamsActive.Inc()
		s.metrics.streamsTotal.Inc()
		defer s.metrics.streamsActive.Dec()
	}

	s.logger.Info("stream opened", "user_id", userID, "remote", r.RemoteAddr)
	s.serveFrames(ctx, w, flusher, sess)
	s.logger.Info("stream closed", "user_id", userID)
}

// serveFrames runs the take-generate-emit loop, paced to the frame rate cap.
func (s *Responder) serveFrames(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sess *session.Session) {
	limiter := rate.NewLimiter(rate.Limit(s.frameRate), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		req, err := sess.Queue.Take(ctx)
		if err != nil {
			// Context done or queue closed by teardown.
			return
		}
		if req.Image == nil {
			continue
		}

		start := time.Now()
		out, err := s.generator.Generate(ctx, req.Image, req.Params)
		if s.metrics != nil {
			s.metrics.generateDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if stderrors.Is(err, generate.ErrRejected) {
				s.skip("rejected")
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("generation failed", "user_id", sess.ID, "error", err)
			s.skip("generate_error")
			continue
		}
		if out == nil {
			s.skip("empty_result")
			continue
		}

		data, err := s.codec.EncodeJPEG(out)
		if err != nil {
			s.logger.Warn("frame encode failed", "user_id", sess.ID, "error", err)
			s.skip("encode_error")
			continue
		}

		if err := s.writeFrame(w, data); err != nil {
			// Viewer went away mid-write.
			return
		}
		flusher.Flush()

		if s.metrics != nil {
			s.metrics.framesSent.Inc()
		}
	}
}

// writeFrame emits one multipart part carrying a JPEG frame. Content-Length
// lets consumers delimit the part without waiting for the next boundary.
func (s *Responder) writeFrame(w http.ResponseWriter, data []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		boundary, len(data))
	if _, err := fmt.Fprint(w, header); err != nil {
		return errors.WrapTransient(err, "Responder", "writeFrame", "write part header")
	}
	if _, err := w.Write(data); err != nil {
		return errors.WrapTransient(err, "Responder", "writeFrame", "write frame body")
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return errors.WrapTransient(err, "Responder", "writeFrame", "write part trailer")
	}
	return nil
}

// applyCORS allows any origin; stream responses carry no credentials.
func (s *Responder) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Responder) skip(reason string) {
	if s.metrics != nil {
		s.metrics.framesSkipped.WithLabelValues(reason).Inc()
	}
}

// writeError writes a JSON error response.
func (s *Responder) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	data, _ := json.Marshal(response)
	w.Write(data)
}
