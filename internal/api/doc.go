// Package api exposes the conversion queue over local HTTP so a browser UI
// can drive it. It translates internal queue models into transport-friendly
// DTOs and streams store events over a websocket.
//
// # Routes
//
//	GET    /api/state              queue snapshot
//	POST   /api/items              multipart upload ("files" fields)
//	DELETE /api/items              clear the queue
//	DELETE /api/items/{id}         remove one item
//	POST   /api/items/{id}/retry   re-run a finished item
//	PUT    /api/format             set the output format
//	POST   /api/convert            start or resume the batch
//	POST   /api/pause              stop admitting new conversions
//	GET    /api/blobs/{id}         preview or converted bytes
//	GET    /api/archive            converted-images.zip
//	GET    /api/health             codec and output directory checks
//	GET    /api/events             websocket of queue events
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Internal enums are
// exposed as lowercase strings and timestamps use RFC3339 with milliseconds.
// Blob URLs are only valid while the owning item holds its handle.
package api
