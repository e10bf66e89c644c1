// Package api implements the HTTP REST API and WebSocket server for the
// sesame server.
//
// This package provides:
//   - Read endpoints for trigger and lock state, event history and audit logs
//   - Control endpoints for locks, advertising, peer disconnects and reset
//   - WebSocket hub relaying live core notifications
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Every core call goes through the sesame.Server, which runs it on the
// dispatch goroutine. Handlers never touch trigger or lock state directly.
//
// # Security
//
// Tokens are minted offline with "sesameserver token". The user role can
// read and operate; only admin may reset the server, which erases the
// pairing secret. WebSocket connections use single-use tickets so the JWT
// never appears in a URL.
package api
