// Package server exposes the HTTP API: the conversational turn endpoint,
// the standalone stage endpoints, and monitoring.
package server
