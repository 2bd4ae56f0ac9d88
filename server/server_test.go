package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/metrics"
	"github.com/ahmadzakiakmal/carbon-ledger/srvreg"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := metrics.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	sr := srvreg.NewServiceRegistry(srvreg.Dependencies{Metrics: m}, cmtlog.NewNopLogger())
	sr.RegisterHandler(srvreg.TaskDetermineJobSequence, sr.DetermineJobSequenceHandler)
	sr.RegisterHandler("echo", func(_ context.Context, req *srvreg.Request) (map[string]any, error) {
		return map[string]any{"job": req.JobKey, "element": req.ElementID, "in": req.Variables["in"]}, nil
	})
	for task, err := range map[string]error{
		"invalid":  apperr.Validation("BAD", "bad input", nil),
		"contract": apperr.ContractViolation("BROKEN", "broken contract", nil),
		"network":  apperr.Network("DOWN", "peer down", nil),
		"timeout":  apperr.Timeout("LATE", "too late", nil),
		"internal": errors.New("boom"),
	} {
		sr.RegisterHandler(task, func(context.Context, *srvreg.Request) (map[string]any, error) { return nil, err })
	}

	ws := NewWebServer("0", sr, reg, cmtlog.NewNopLogger())
	ws.AddHealthCheck("database", func(context.Context) error { return nil })
	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJob(t *testing.T, srv *httptest.Server, task, body string) (int, srvreg.Response) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/jobs/"+task, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out srvreg.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestJobCompletes(t *testing.T) {
	srv := newTestServer(t)

	code, out := postJob(t, srv, "echo", `{"jobKey":"7","elementId":"Task_1","variables":{"in":{"a":1}}}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, srvreg.StatusCompleted, out.Status)
	require.Equal(t, "7", out.Variables["job"])
	require.Equal(t, "Task_1", out.Variables["element"])
	require.Equal(t, map[string]any{"a": float64(1)}, out.Variables["in"])

	code, out = postJob(t, srv, srvreg.TaskDetermineJobSequence, `{"jobKey":"8"}`)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out.Variables["subprocess_identifiers"], 3)
}

func TestJobFailureStatusCodes(t *testing.T) {
	srv := newTestServer(t)

	for task, want := range map[string]int{
		"invalid":  http.StatusUnprocessableEntity,
		"contract": http.StatusUnprocessableEntity,
		"network":  http.StatusBadGateway,
		"timeout":  http.StatusGatewayTimeout,
		"internal": http.StatusInternalServerError,
	} {
		code, out := postJob(t, srv, task, `{"jobKey":"42"}`)
		require.Equal(t, want, code, task)
		require.Equal(t, srvreg.StatusFailed, out.Status)
		require.True(t, strings.HasPrefix(out.ErrorMessage, "Failed to handle job 42. Error: "), out.ErrorMessage)
	}

	_, out := postJob(t, srv, "timeout", `{"jobKey":"42"}`)
	require.True(t, out.Retryable)
	_, out = postJob(t, srv, "contract", `{"jobKey":"42"}`)
	require.False(t, out.Retryable)
}

func TestUnknownTaskAndBadBody(t *testing.T) {
	srv := newTestServer(t)

	code, out := postJob(t, srv, "produce_data", `{}`)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, srvreg.StatusFailed, out.Status)

	code, out = postJob(t, srv, "echo", `{not json`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, out.ErrorMessage, "Invalid request body")
}

func TestInfoHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	_, _ = postJob(t, srv, "echo", `{"jobKey":"1"}`)

	resp, err := http.Get(srv.URL + "/info")
	require.NoError(t, err)
	var info struct {
		Status string   `json:"status"`
		Tasks  []string `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	require.Equal(t, "active", info.Status)
	require.Contains(t, info.Tasks, "echo")

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `carbon_ledger_jobs_total{outcome="completed",task="echo"} 1`)
}
