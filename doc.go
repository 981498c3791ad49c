// Package framestream implements a near-real-time image generation
// streaming service.
//
// Clients connect over WebSocket at /ws and upload (image, params) pairs.
// Each connection owns one session with a single-slot request queue: a new
// upload replaces any unconsumed one, so the generation pipeline always
// works on the freshest input and never builds up a backlog. Generated
// frames are served back at /stream/{userId} as an MJPEG
// multipart/x-mixed-replace response.
//
// # Architecture
//
//	WebSocket /ws ──► ingress ──► session.Registry ──► slotqueue.Slot
//	                                                      │
//	GET /stream/{id} ◄── stream.Responder ◄── generate.Generator (NATS)
//
// Core packages:
//   - session: per-connection session state and the admission-capped registry
//   - slotqueue: the generic single-slot latest-wins queue
//   - ingress: the WebSocket upload channel and its status protocol
//   - stream: the MJPEG responder with frame-rate pacing
//   - generate/natsgen: generation via NATS request/reply to an inference worker
//   - frame: JPEG/PNG decode and JPEG encode
//
// Supporting packages follow the same shape across the codebase: errors for
// classified error wrapping, metric for the Prometheus registry, config for
// environment-derived settings, health for the /health endpoint, natsclient
// for the managed NATS connection, and server for HTTP wiring.
//
// Admission is capped by MAX_QUEUE_SIZE (0 = unlimited) and sessions may
// carry a lifetime budget via TIMEOUT seconds; both are checked the way the
// ingress protocol documents: rejection at connect, timeout after a queued
// upload.
package framestream
