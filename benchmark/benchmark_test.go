package benchmark

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// fakeWorker completes every job, echoing the variables a real worker
// would produce, and counts calls per task.
func fakeWorker(t *testing.T, failTask string) (*httptest.Server, func() map[string]int) {
	t.Helper()
	var mu sync.Mutex
	calls := map[string]int{}

	r := chi.NewRouter()
	r.Post("/jobs/{taskType}", func(w http.ResponseWriter, r *http.Request) {
		task := chi.URLParam(r, "taskType")
		mu.Lock()
		calls[task]++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if task == failTask {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"status":"failed","errorMessage":"Failed to handle job x. Error: peer down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"completed","variables":{
			"shipment_information":{"shipment_id":"SHIP_1","shipment_weight":1500},
			"product_footprint":{"id":"pf"},
			"sensor_data":[],
			"proofing_document":{}
		}}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return srv, func() map[string]int {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]int, len(calls))
		for k, v := range calls {
			out[k] = v
		}
		return out
	}
}

func TestRunDrivesCompleteWorkflows(t *testing.T) {
	srv, calls := fakeWorker(t, "")

	res, err := Run(context.Background(), Config{
		BaseURL:  srv.URL,
		Workers:  3,
		Duration: 300 * time.Millisecond,
		Proofing: true,
	}, cmtlog.NewNopLogger())
	require.NoError(t, err)

	require.Positive(t, res.SuccessfulReqs)
	require.Zero(t, res.FailedReqs)
	require.LessOrEqual(t, res.MinLatency, res.P50Latency)
	require.LessOrEqual(t, res.P50Latency, res.P99Latency)
	require.LessOrEqual(t, res.P99Latency, res.MaxLatency)

	got := calls()
	require.GreaterOrEqual(t, got["transport_procedure"], 2*int(res.SuccessfulReqs))
	require.GreaterOrEqual(t, got["hub_procedure"], int(res.SuccessfulReqs))
	require.GreaterOrEqual(t, got["send_to_proofing_service"], int(res.SuccessfulReqs))
	require.Contains(t, res.StepAvg, "get_tce_chain_summary")
}

func TestRunCountsFailedWorkflows(t *testing.T) {
	srv, calls := fakeWorker(t, "hub_procedure")

	res, err := Run(context.Background(), Config{
		BaseURL:  srv.URL,
		Workers:  1,
		Duration: 200 * time.Millisecond,
	}, cmtlog.NewNopLogger())
	require.NoError(t, err)

	require.Zero(t, res.SuccessfulReqs)
	require.Positive(t, res.FailedReqs)
	require.Contains(t, res.LastError, "hub 100")
	require.Zero(t, calls()["collect_hoc_toc_data"])
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteCSV(dir, &Result{
		Workers:        4,
		TotalRequests:  10,
		SuccessfulReqs: 9,
		FailedReqs:     1,
		Duration:       2 * time.Second,
		TPS:            4.5,
		AvgLatency:     1500 * time.Microsecond,
		StepAvg:        map[string]time.Duration{"transport_procedure": time.Millisecond},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(path, dir))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Equal(t, "Workers", rows[0][0])
	require.Equal(t, []string{"4", "2.00", "10", "9", "1", "4.50", "1.50", "0.00", "0.00", "0.00", "0.00", "0.00"}, rows[1])
	require.Equal(t, []string{"transport_procedure", "1.00"}, rows[len(rows)-1])
}
