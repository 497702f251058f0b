// Package config handles configuration loading for switchboard.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML when the path ends in
// .toml) with environment variable expansion, SWITCHBOARD_* overrides, and
// defaults for everything except the store and the gateway URL.
//
// # Environment Variables
//
// Values can reference the environment inline:
//
//	auth:
//	  jwt_secret: "${SWITCHBOARD_JWT_SECRET}"
//
// Individual fields can also be overridden after the file is parsed, for
// example SWITCHBOARD_HTTP_ADDR, SWITCHBOARD_DATABASE_URL or
// SWITCHBOARD_GATEWAY_URL.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  driver: "sqlite"            # sqlite, postgres
//	  path: "/var/lib/switchboard/panel.db"
//	  url: "${SWITCHBOARD_DATABASE_URL}"
//
//	gateway:
//	  base_url: "http://wppconnect:21465"
//	  timeout: "30s"
//	  rate_per_second: 10
//	  burst: 20
//
//	hub:
//	  queue_size: 100
//	  heartbeat_interval: "10s"
//
//	automation:
//	  call_message: "Sorry, we cannot take calls on this number."
//	  message_delay: "2s"
//	  unread_delay: "10s"
//	  timezone: "America/Sao_Paulo"
//
//	resolver:
//	  workers: 2
//	  queue_size: 1000
//	  inflight_ttl: "10m"
//
//	workers:
//	  count: 4
//	  queue_size: 256
//	  shutdown_timeout: "15s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
