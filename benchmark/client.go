package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/srvreg"
	"github.com/google/uuid"
)

// HTTPClient drives the job API the way a workflow engine would
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type jobBody struct {
	JobKey             string         `json:"jobKey"`
	ProcessInstanceKey string         `json:"processInstanceKey"`
	ElementID          string         `json:"elementId"`
	Variables          map[string]any `json:"variables"`
}

// Job posts one job and returns its output variables. A failed job is an error.
func (c *HTTPClient) Job(ctx context.Context, instance, task string, vars map[string]any) (map[string]json.RawMessage, error) {
	jsonData, err := json.Marshal(jobBody{
		JobKey:             uuid.NewString(),
		ProcessInstanceKey: instance,
		ElementID:          task,
		Variables:          vars,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs/"+task, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status       string                     `json:"status"`
		Variables    map[string]json.RawMessage `json:"variables"`
		ErrorMessage string                     `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 || out.Status != srvreg.StatusCompleted {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, out.ErrorMessage)
	}
	return out.Variables, nil
}
