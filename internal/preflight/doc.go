// Package preflight provides readiness checks for the filesystem paths and
// codecs that pixelbatch depends on.
//
// These checks run in two contexts:
//   - `pixelbatch convert` calls RunAll before queuing work, so a batch never
//     starts when the archive cannot be written or the target format has no
//     encoder.
//   - `pixelbatch formats` and `GET /api/health` display the individual
//     results.
package preflight
