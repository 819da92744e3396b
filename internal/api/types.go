package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Size         int64          `json:"size"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	Stage        string         `json:"stage,omitempty"`
	StageLabel   string         `json:"stageLabel,omitempty"`
	TargetFormat string         `json:"targetFormat,omitempty"`
	PreviewURL   string         `json:"previewUrl,omitempty"`
	Error        string         `json:"error,omitempty"`
	Converted    *ConvertedFile `json:"converted,omitempty"`
	AddedAt      string         `json:"addedAt,omitempty"`
	StartedAt    string         `json:"startedAt,omitempty"`
	FinishedAt   string         `json:"finishedAt,omitempty"`
}

// ConvertedFile describes a finished conversion.
type ConvertedFile struct {
	Name             string `json:"name"`
	Size             int64  `json:"size"`
	Type             string `json:"type"`
	URL              string `json:"url"`
	ReductionPercent int    `json:"reductionPercent"`
}

// QueueCounts tallies items per status.
type QueueCounts struct {
	Idle       int `json:"idle"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Error      int `json:"error"`
}

// QueueState is the full queue snapshot.
type QueueState struct {
	Items             []QueueItem `json:"items"`
	OutputFormat      string      `json:"outputFormat"`
	ActiveConversions int         `json:"activeConversions"`
	ConversionStatus  string      `json:"conversionStatus"`
	ConcurrencyBudget int         `json:"concurrencyBudget"`
	Run               string      `json:"run"`
	Counts            QueueCounts `json:"counts"`
	AllDone           bool        `json:"allDone"`
}

// Event is pushed over the websocket after every committed queue action.
type Event struct {
	Action string     `json:"action"`
	State  QueueState `json:"state"`
}

// FormatRequest selects the output format.
type FormatRequest struct {
	Format string `json:"format"`
}

// Rejection explains why an upload was not queued.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// IngestResponse reports an upload.
type IngestResponse struct {
	Added    []string    `json:"added"`
	Failed   []string    `json:"failed"`
	Rejected []Rejection `json:"rejected"`
}

// Check is one readiness result.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse lists readiness checks. Ready covers Checks only; Codecs
// is informational.
type HealthResponse struct {
	Ready  bool    `json:"ready"`
	Checks []Check `json:"checks"`
	Codecs []Check `json:"codecs"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
