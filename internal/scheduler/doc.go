// Package scheduler admits idle queue items into the conversion pipeline
// while the number of in-flight conversions stays under the concurrency
// budget.
//
// Admission is serialized by a mutex and an in-flight set, so any number of
// concurrent Pump calls admits each item once. Completions dispatch their
// terminal status and pump again; Pause, Resume and Retry act as direct
// signals rather than polled flags. Wait blocks on a broadcast channel that
// is replaced after every change.
package scheduler
