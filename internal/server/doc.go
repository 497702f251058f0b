// Package server runs the switchboard HTTP surface.
//
// # Components
//
// Server owns every long-lived component and wires them together:
//
//	store.Store         sessions and resolved contacts (SQLite or Postgres)
//	hub.Hub             per-viewer bounded event queues
//	gwclient.Client     rate-limited client for the messaging gateway
//	worker.Pool         detached call follow-up tasks
//	resolver.Queue      background identifier resolution
//	callflow.Automation incoming-call state machine
//	webhook.Normalizer  turns webhook bodies into events and dispatches them
//
// # HTTP API
//
//	GET  /health                                   liveness
//	GET  /health/ready                             store ping
//	POST /webhook[/{session}]                      gateway notifications
//	GET  /api/events                               viewer stream (SSE)
//	GET  /api/events/ws                            viewer stream (WebSocket)
//	GET  /api/sessions/{session}/chats             chat list
//	GET  /api/sessions/{session}/chats/{phone}/messages
//	POST /api/sessions/{session}/messages          send text or reply
//	POST /api/sessions/{session}/media             send image, file or audio
//	POST /api/sessions/{session}/media/download    fetch message media
//	GET  /api/sessions/{session}/profile-picture/{phone}
//
// Everything under /api requires a viewer token (see package auth). The
// webhook is expected to be reachable only by the gateway, for example over
// a private tailnet.
//
// # Lifecycle
//
// Run listens on TCP or, when tailscale.enabled is set, on a tsnet node.
// Shutdown stops HTTP, closes the hub so open streams finish, stops the
// resolver, drains the worker pool and closes the store.
package server
