// Package model owns the lifecycle of loaded model capabilities.
// The registry lazily loads transcriber, generator, and synthesizer backends,
// caches them by configuration fingerprint, and guarantees a single load per
// fingerprint under concurrent acquisition.
package model
