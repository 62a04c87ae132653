package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapilot/internal/chart"
	"datapilot/internal/engine"
	"datapilot/internal/sandbox"
	"datapilot/internal/store"
)

const testAnalysisCode = "```go\n" + `func AnalysisResults(rows []map[string]any) map[string]any {
	return map[string]any{"row_count": len(rows)}
}

func AnalysisTable(rows []map[string]any) []map[string]any {
	return rows
}` + "\n```"

// stubLLM answers each workflow stage deterministically. An optional gate
// blocks synthesis until released, to observe in-flight runs.
type stubLLM struct {
	gate chan struct{}
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *stubLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	switch {
	case strings.HasPrefix(system, "You classify"):
		return `{"intent": "general", "confidence": 0.9, "reasoning": "r", "requires_filtering": false, "suggested_subset": ""}`, nil
	case strings.HasPrefix(system, "You write Go"):
		if s.gate != nil {
			<-s.gate
		}
		return testAnalysisCode, nil
	case strings.HasPrefix(system, "You review"):
		return `{"approved": true, "feedback": "ok", "issues": [], "suggestions": [], "severity": "low"}`, nil
	case strings.HasPrefix(system, "You summarize"):
		return "all done", nil
	}
	return "", nil
}

type testServer struct {
	router   *gin.Engine
	handlers *Handlers
}

func newTestServer(t *testing.T, client *stubLLM) *testServer {
	t.Helper()

	dataDir := t.TempDir()
	csv := "name,score\nAna,91\nBen,84\nCal,77\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "employees.csv"), []byte(csv), 0644))

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("employees", dataDir))

	eng := engine.New(client, sandbox.NewExecutor(5*time.Second), chart.NewGenerator(client), engine.Options{
		MaxRetries:   2,
		ArtifactsDir: t.TempDir(),
	})

	h := New(eng, st, reg, 2)
	return &testServer{router: h.Router(nil), handlers: h}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) waitForStatus(t *testing.T, runID, want string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := ts.do(http.MethodGet, "/api/runs/"+runID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		if resp.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %s", runID, want)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})
	w := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyzeLifecycle(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	w := ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{
		Query:   "how many employees",
		Dataset: "employees",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RunID)

	ts.waitForStatus(t, accepted.RunID, store.StatusCompleted)

	w = ts.do(http.MethodGet, "/api/runs/"+accepted.RunID+"/result", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Status string           `json:"status"`
		Result *engine.Snapshot `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, store.StatusCompleted, result.Status)
	require.NotNil(t, result.Result)
	assert.True(t, result.Result.Success)
	assert.Equal(t, "all done", result.Result.FinalResults.Answer)
}

func TestResultConflictsWhileRunning(t *testing.T) {
	client := &stubLLM{gate: make(chan struct{})}
	ts := newTestServer(t, client)

	w := ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{
		Query:   "how many employees",
		Dataset: "employees",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	w = ts.do(http.MethodGet, "/api/runs/"+accepted.RunID+"/result", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(client.gate)
	ts.waitForStatus(t, accepted.RunID, store.StatusCompleted)

	w = ts.do(http.MethodGet, "/api/runs/"+accepted.RunID+"/result", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyzeUnknownDataset(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	w := ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{
		Query:   "anything",
		Dataset: "nope",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeRejectsMissingFields(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	w := ts.do(http.MethodPost, "/api/analyze", map[string]string{"query": "no dataset"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunStatusNotFound(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	w := ts.do(http.MethodGet, "/api/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	w := ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{Query: "q", Dataset: "employees"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Runs)
}

func uploadRequest(t *testing.T, name, filename, content string) (*http.Request, error) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", name))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func TestUploadAndListDatasets(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	req, _ := uploadRequest(t, "uploaded", "sales.csv", "region,amount\nnorth,10\n")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	lw := ts.do(http.MethodGet, "/api/datasets", nil)
	require.Equal(t, http.StatusOK, lw.Code)
	body := lw.Body.String()
	assert.Contains(t, body, `"uploaded"`)
	assert.Contains(t, body, `"employees"`)
	assert.Contains(t, body, `"region"`)
}

func TestUploadRejectsBadName(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	req, _ := uploadRequest(t, "../escape", "sales.csv", "a\n1\n")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsNonCSV(t *testing.T) {
	ts := newTestServer(t, &stubLLM{})

	req, _ := uploadRequest(t, "binary", "data.bin", "\x00\x01")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistryRegisterValidation(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	assert.Error(t, reg.Register("bad name!", t.TempDir()))
	assert.Error(t, reg.Register("missing", filepath.Join(t.TempDir(), "nope")))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x\n1\n"), 0644))
	require.NoError(t, reg.Register("good", dir))
	assert.Equal(t, []string{"good"}, reg.Names())

	_, err := reg.Load("good")
	require.NoError(t, err)
	_, err = reg.Load("missing")
	require.Error(t, err)
}
