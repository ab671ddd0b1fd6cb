package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"genescore/app"
	"genescore/domain/core"
	"genescore/domain/run"
	"genescore/domain/scoring"
	"genescore/internal/errors"
	"genescore/internal/testkit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, repo *testkit.InMemoryScoreRepository) *Server {
	t.Helper()
	kit := testkit.NewTestKit()
	opts := []app.ServiceOption{}
	if repo != nil {
		opts = append(opts, app.WithRepository(repo))
	}
	svc := app.NewScoreService(kit.RNGAdapter(), &testkit.FakeMatrixReader{}, &testkit.FakeGeneSetSource{}, opts...)

	defaults := scoring.DefaultParams()
	defaults.DropFrequency = 0
	defaults.NeighborMode = scoring.NeighborNone
	s := NewServer(svc, defaults, time.Minute, nil)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func oneCellRequest() map[string]any {
	genes := make([]string, 10)
	row := make([]float64, 10)
	for j := range genes {
		genes[j] = "g" + string(rune('a'+j))
		row[j] = float64(j + 1)
	}
	return map[string]any{
		"cell_ids":  []string{"c1"},
		"gene_ids":  genes,
		"rows":      [][]float64{row},
		"gene_sets": []map[string]any{{"name": "MIN", "genes": []string{"ga"}}},
		"params":    map[string]any{"permutations": 100, "seed": 3},
	}
}

func TestScoreDense(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/score", oneCellRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rn run.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rn))
	assert.Equal(t, run.StatusCompleted, rn.Status)
	require.Len(t, rn.Result.Sets, 1)
	set := rn.Result.Sets[0]
	assert.Equal(t, scoring.SamplingExhaustive, set.Mode)
	require.Len(t, set.Cells, 1)
	assert.Equal(t, 10, set.Cells[0].K)
	assert.Equal(t, 10, set.Cells[0].N)
	assert.InDelta(t, 11.0/12.0, set.Cells[0].PValue, 1e-12)
	assert.Equal(t, 100, rn.Params.Permutations, "request params overlay the defaults")
	assert.Equal(t, scoring.NeighborNone, rn.Params.NeighborMode)
}

func TestScoreSparse(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/score", map[string]any{
		"gene_ids": []string{"A", "B", "C"},
		"cells":    2,
		"entries": []map[string]any{
			{"cell": 0, "gene": 0, "value": 3},
			{"cell": 1, "gene": 2, "value": 1.5},
		},
		"gene_sets": []map[string]any{{"name": "AC", "genes": []string{"a", "c"}}},
		"params":    map[string]any{"permutations": 0},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rn run.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rn))
	assert.True(t, rn.Manifest.Sparse)
	cells := rn.Result.Sets[0].Cells
	require.Len(t, cells, 2)
	assert.Equal(t, "0", cells[0].CellID)
	assert.Equal(t, 1.5, cells[0].Score)
	assert.Equal(t, 0.75, cells[1].Score)
}

func TestScoreRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)

	mutate := func(f func(map[string]any)) map[string]any {
		req := oneCellRequest()
		f(req)
		return req
	}

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"malformed json", `{"gene_ids": [`, http.StatusBadRequest},
		{"no matrix", mutate(func(r map[string]any) { delete(r, "rows") }), http.StatusBadRequest},
		{"rows and entries", mutate(func(r map[string]any) {
			r["entries"] = []map[string]any{{"cell": 0, "gene": 0, "value": 1}}
		}), http.StatusBadRequest},
		{"ragged rows", mutate(func(r map[string]any) { r["rows"] = [][]float64{{1, 2}, {1}} }), http.StatusUnprocessableEntity},
		{"label mismatch", mutate(func(r map[string]any) { r["cell_ids"] = []string{"a", "b"} }), http.StatusUnprocessableEntity},
		{"unknown method", mutate(func(r map[string]any) { r["params"] = map[string]any{"method": "median"} }), http.StatusBadRequest},
		{"no overlap", mutate(func(r map[string]any) {
			r["gene_sets"] = []map[string]any{{"name": "X", "genes": []string{"zz"}}}
		}), http.StatusBadRequest},
		{"unnamed set", mutate(func(r map[string]any) {
			r["gene_sets"] = []map[string]any{{"genes": []string{"ga"}}}
		}), http.StatusBadRequest},
		{"sparse entry outside matrix", map[string]any{
			"gene_ids":  []string{"A"},
			"cells":     1,
			"entries":   []map[string]any{{"cell": 4, "gene": 0, "value": 1}},
			"gene_sets": []map[string]any{{"name": "S", "genes": []string{"A"}}},
		}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/score", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"code"`)
		})
	}
}

func TestStoredRuns(t *testing.T) {
	repo := testkit.NewInMemoryScoreRepository()
	s := newTestServer(t, repo)

	rec := do(t, s, http.MethodPost, "/api/v1/score", oneCellRequest())
	require.Equal(t, http.StatusOK, rec.Code)
	var rn run.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rn))
	assert.Equal(t, 1, repo.Len())

	rec = do(t, s, http.MethodGet, "/api/v1/runs/"+rn.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored run.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, rn.Fingerprint, stored.Fingerprint)

	rec = do(t, s, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := gjson.ParseBytes(rec.Body.Bytes())
	assert.Equal(t, int64(1), listed.Get("count").Int())
	assert.Equal(t, rn.ID.String(), listed.Get("runs.0.id").String())
	assert.Equal(t, "completed", listed.Get("runs.0.status").String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/runs/"+core.NewRunID().String(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/runs/not-a-uuid", nil).Code)
}

func TestRunsWithoutStorage(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/runs", nil).Code)
}

func TestRepositoryErrorsAreInternal(t *testing.T) {
	repo := new(testkit.MockScoreRepository)
	repo.On("ListRuns", mock.Anything, 20).Return(nil, errors.DatabaseError("connection reset"))

	kit := testkit.NewTestKit()
	svc := app.NewScoreService(kit.RNGAdapter(), &testkit.FakeMatrixReader{}, &testkit.FakeGeneSetSource{}, app.WithRepository(repo))
	s := NewServer(svc, scoring.DefaultParams(), 0, nil)
	defer s.Close()

	rec := do(t, s, http.MethodGet, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), errors.CodeDatabaseError)
	repo.AssertExpectations(t)
}

func TestAsyncRun(t *testing.T) {
	s := newTestServer(t, nil)

	req := oneCellRequest()
	req["async"] = true
	rec := do(t, s, http.MethodPost, "/api/v1/score", req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	accepted := gjson.ParseBytes(rec.Body.Bytes())
	id := accepted.Get("id").String()
	require.NotEmpty(t, id)
	assert.Equal(t, "running", accepted.Get("status").String())
	assert.Equal(t, "/api/v1/runs/"+id+"/events", accepted.Get("events").String())

	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/api/v1/runs/"+id, nil)
		return rec.Code == http.StatusOK && gjson.GetBytes(rec.Body.Bytes(), "status").String() == "completed"
	}, 5*time.Second, 10*time.Millisecond)

	rec = do(t, s, http.MethodGet, "/api/v1/runs/"+id, nil)
	assert.Equal(t, int64(10), gjson.GetBytes(rec.Body.Bytes(), "result.sets.0.cells.0.n").Int())
}

func TestEventStream(t *testing.T) {
	hub := NewSSEHub(nil)
	defer hub.Close()
	router := gin.New()
	router.GET("/runs/:id/events", hub.HandleSSE)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/runs/r1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.ClientCount("r1") == 1 }, 2*time.Second, 5*time.Millisecond)

	obs := newRunObserver(hub, "r1", 2)
	obs.SetScored(&scoring.SetResult{Name: "A", Mode: scoring.SamplingRandom})
	obs.SetFailed("B", assert.AnError)
	hub.Broadcast(RunEvent{RunID: "other", EventType: EventSetScored})
	hub.Broadcast(RunEvent{RunID: "r1", EventType: EventRunCompleted, Progress: 1})

	var events []string
	var payloads []gjson.Result
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event:"); ok {
			events = append(events, name)
		}
		if data, ok := strings.CutPrefix(sc.Text(), "data:"); ok {
			payloads = append(payloads, gjson.Parse(data))
		}
	}
	assert.Equal(t, []string{EventSetScored, EventSetFailed, EventRunCompleted}, events)
	require.Len(t, payloads, 3)
	assert.Equal(t, "A", payloads[0].Get("set").String())
	assert.Equal(t, 0.5, payloads[0].Get("progress").Float())
	assert.Equal(t, assert.AnError.Error(), payloads[1].Get("data.error").String())
}
