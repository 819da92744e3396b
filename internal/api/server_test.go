package api_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pixelbatch/internal/api"
	"pixelbatch/internal/archive"
	"pixelbatch/internal/config"
	"pixelbatch/internal/ingest"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/pipeline"
	"pixelbatch/internal/raster"
	"pixelbatch/internal/scheduler"
	"pixelbatch/internal/testsupport"
)

type harness struct {
	server *httptest.Server
	sched  *scheduler.Scheduler
	cfg    *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithOutputFormat("jpeg"), testsupport.WithBudget(2))
	store, reg := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	conv := pipeline.New(raster.Primitives(), reg, pipeline.OptionsFromConfig(cfg), logger)
	sched := scheduler.New(store, conv, reg, scheduler.Options{}, logger)
	ingestor := ingest.New(store, raster.Previewer{Side: 32, VectorSide: 64}, reg,
		ingest.Options{MaxFileBytes: cfg.MaxFileBytes()}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := api.NewServer(api.Deps{
		Config:    cfg,
		Store:     store,
		Scheduler: sched,
		Ingestor:  ingestor,
		Registry:  reg,
		Packager:  archive.New(logger),
		Logger:    logger,
		Context:   ctx,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		sched.Stop()
	})
	return &harness{server: ts, sched: sched, cfg: cfg}
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) upload(t *testing.T, files map[string][]byte) api.IngestResponse {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(files[name]); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	resp := h.do(t, http.MethodPost, "/api/items", &body, mw.FormDataContentType())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var out api.IngestResponse
	decode(t, resp, &out)
	return out
}

func (h *harness) state(t *testing.T) api.QueueState {
	t.Helper()
	resp := h.do(t, http.MethodGet, "/api/state", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status = %d", resp.StatusCode)
	}
	var st api.QueueState
	decode(t, resp, &st)
	return st
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestUploadConvertAndDownloadArchive(t *testing.T) {
	h := newHarness(t)
	report := h.upload(t, map[string][]byte{
		"a.png":     testsupport.PNG(t, 40, 30),
		"b.png":     testsupport.PNG(t, 20, 20),
		"notes.txt": []byte("hello"),
	})
	if len(report.Added) != 2 || len(report.Rejected) != 1 || report.Rejected[0].Name != "notes.txt" {
		t.Fatalf("unexpected ingest report %+v", report)
	}

	st := h.state(t)
	if len(st.Items) != 2 || st.Items[0].Name != "a.png" || st.Items[0].PreviewURL == "" {
		t.Fatalf("unexpected queue %+v", st.Items)
	}

	resp := h.do(t, http.MethodPost, "/api/convert", nil, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("convert status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		st = h.state(t)
		if st.AllDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversions did not finish: %+v", st)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if st.ConversionStatus != "complete" || st.Counts.Done != 2 {
		t.Fatalf("unexpected final state %+v", st)
	}

	converted := st.Items[0].Converted
	if converted == nil || converted.Name != "a.jpg" || converted.Type != "image/jpeg" {
		t.Fatalf("unexpected converted file %+v", converted)
	}
	blobResp := h.do(t, http.MethodGet, converted.URL, nil, "")
	if blobResp.StatusCode != http.StatusOK || blobResp.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("blob fetch: %d %q", blobResp.StatusCode, blobResp.Header.Get("Content-Type"))
	}

	arch := h.do(t, http.MethodGet, "/api/archive", nil, "")
	if arch.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d", arch.StatusCode)
	}
	if cd := arch.Header.Get("Content-Disposition"); !strings.Contains(cd, archive.DefaultName) {
		t.Fatalf("unexpected disposition %q", cd)
	}
	data, err := io.ReadAll(arch.Body)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "a.jpg,b.jpg" {
		t.Fatalf("archive entries = %v", names)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"retry unknown", http.MethodPost, "/api/items/missing/retry", "", http.StatusNotFound},
		{"remove unknown", http.MethodDelete, "/api/items/missing", "", http.StatusNotFound},
		{"archive empty", http.MethodGet, "/api/archive", "", http.StatusConflict},
		{"format not output", http.MethodPut, "/api/format", `{"format":"svg"}`, http.StatusBadRequest},
		{"format garbage", http.MethodPut, "/api/format", `{`, http.StatusBadRequest},
		{"blob unknown", http.MethodGet, "/api/blobs/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			resp := h.do(t, tt.method, tt.path, body, "application/json")
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var errResp api.ErrorResponse
			decode(t, resp, &errResp)
			if errResp.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestFormatChangeIsReflectedInState(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPut, "/api/format", strings.NewReader(`{"format":"image/webp"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("format status = %d", resp.StatusCode)
	}
	if st := h.state(t); st.OutputFormat != "image/webp" {
		t.Fatalf("output format = %q", st.OutputFormat)
	}
}

func TestRetryRejectsIdleItem(t *testing.T) {
	h := newHarness(t)
	report := h.upload(t, map[string][]byte{"a.png": testsupport.PNG(t, 8, 8)})
	resp := h.do(t, http.MethodPost, "/api/items/"+report.Added[0]+"/retry", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("retry idle status = %d", resp.StatusCode)
	}
	var errResp api.ErrorResponse
	decode(t, resp, &errResp)
	if errResp.Kind != "validation" {
		t.Fatalf("error kind = %q", errResp.Kind)
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	h := newHarness(t)
	h.upload(t, map[string][]byte{"a.png": testsupport.PNG(t, 8, 8)})
	resp := h.do(t, http.MethodDelete, "/api/items", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	if st := h.state(t); len(st.Items) != 0 || st.ConversionStatus != "idle" {
		t.Fatalf("queue not cleared: %+v", st)
	}
}

func TestEventsStreamSnapshotThenActions(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev api.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if ev.Action != "snapshot" || ev.State.OutputFormat != "image/jpeg" {
		t.Fatalf("unexpected first event %+v", ev)
	}

	resp := h.do(t, http.MethodPut, "/api/format", strings.NewReader(`{"format":"gif"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("format status = %d", resp.StatusCode)
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Action != "set_output_format" || ev.State.OutputFormat != "image/gif" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestHealthReportsOutputDirectory(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/health", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("health without output dir = %d", resp.StatusCode)
	}

	if err := os.MkdirAll(h.cfg.Paths.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	resp = h.do(t, http.MethodGet, "/api/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health api.HealthResponse
	decode(t, resp, &health)
	if !health.Ready || len(health.Checks) == 0 || len(health.Codecs) == 0 {
		t.Fatalf("unexpected health %+v", health)
	}
}
