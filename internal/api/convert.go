package api

import (
	"time"

	"pixelbatch/internal/ingest"
	"pixelbatch/internal/preflight"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/stage"
)

// FromQueueItem converts a queue item into its transport form.
func FromQueueItem(item queue.Item) QueueItem {
	dto := QueueItem{
		ID:         item.ID,
		Name:       item.Source.Name,
		Size:       item.Source.Size(),
		Type:       item.Source.Type(),
		Status:     string(item.Status),
		Progress:   item.Progress,
		Stage:      string(item.Stage),
		PreviewURL: item.Preview.URL(),
		Error:      item.Error,
		AddedAt:    formatTime(item.AddedAt),
		StartedAt:  formatTime(item.StartedAt),
		FinishedAt: formatTime(item.FinishedAt),
	}
	if item.Stage != "" {
		dto.StageLabel = stage.Label(item.Stage)
	}
	if item.TargetFormat.Known() {
		dto.TargetFormat = item.TargetFormat.MIME()
	}
	if item.Converted != nil {
		dto.Converted = &ConvertedFile{
			Name:             item.Converted.File.Name,
			Size:             item.Converted.File.Size(),
			Type:             item.Converted.File.Type(),
			URL:              item.Converted.Handle.URL(),
			ReductionPercent: item.ReductionPercent(),
		}
	}
	return dto
}

// FromState converts a queue snapshot.
func FromState(st queue.State) QueueState {
	items := make([]QueueItem, 0, len(st.Items))
	for _, item := range st.Items {
		items = append(items, FromQueueItem(item))
	}
	c := st.Counts()
	return QueueState{
		Items:             items,
		OutputFormat:      st.OutputFormat.MIME(),
		ActiveConversions: st.ActiveConversions,
		ConversionStatus:  string(st.ConversionStatus),
		ConcurrencyBudget: st.ConcurrencyBudget,
		Run:               string(st.Run),
		Counts:            QueueCounts{Idle: c.Idle, Processing: c.Processing, Done: c.Done, Error: c.Error},
		AllDone:           st.AllDoneIn(st.OutputFormat),
	}
}

// FromIngestReport converts an ingestion report.
func FromIngestReport(r ingest.Report) IngestResponse {
	out := IngestResponse{
		Added:    nonNil(r.Added),
		Failed:   nonNil(r.Failed),
		Rejected: make([]Rejection, 0, len(r.Rejected)),
	}
	for _, rej := range r.Rejected {
		out.Rejected = append(out.Rejected, Rejection{Name: rej.Name, Reason: rej.Reason})
	}
	return out
}

// FromPreflight converts readiness and codec results.
func FromPreflight(results, codecs []preflight.Result) HealthResponse {
	out := HealthResponse{Ready: true, Checks: toChecks(results), Codecs: toChecks(codecs)}
	for _, r := range results {
		if !r.Passed {
			out.Ready = false
		}
	}
	return out
}

func toChecks(results []preflight.Result) []Check {
	out := make([]Check, 0, len(results))
	for _, r := range results {
		out = append(out, Check{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
