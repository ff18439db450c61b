// Package api describes the tokenflow HTTP surface and its wire types.
//
// # API Overview
//
//   - GET /stream?topic=<string>: chunked text/plain stream. The topic
//     defaults to "dogs". The body is the generated text followed by exactly
//     one terminal line, "End of stream" or "Error: <message>".
//   - GET /ws/stream?topic=<string>: the same stream as JSON StreamFrame
//     messages over WebSocket, closed with 1000 after end_of_stream and 1011
//     after an error frame.
//   - GET /health, /healthz, /ready, /version: health and build info.
//
// # Errors
//
// A stream that has started always answers 200; upstream failures, timeouts
// and empty generations appear as the terminal line. Invalid arguments are
// rejected before the stream opens with a JSON envelope:
//
//	{"success":false,"error":{"code":"INVALID_REQUEST","message":"topic is required"}}
//
// # Authentication
//
// When API keys are configured, requests carry the X-API-Key header. When a
// JWT secret is configured, requests carry "Authorization: Bearer <token>"
// signed with HS256. Health endpoints are exempt from both.
//
// # Base URL
//
//	http://localhost:8000
package api
