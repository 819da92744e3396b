// Package main hosts the pixelbatch CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration, assembles the conversion queue
// (store, scheduler, pipeline, ingestion and packager) and exposes it either
// as a one-shot batch (`convert`) or behind the HTTP API (`serve`).
//
// Keep this package lean: new behavior belongs in the internal packages and
// is only surfaced here through commands or flags.
package main
