// Package sensorclient fetches signed sensor evidence for transport legs from
// the external sensor data service.
package sensorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/footprint"
	"github.com/cockroachdb/errors"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// DefaultTimeout bounds a single evidence request
const DefaultTimeout = 10 * time.Second

const sensorDataPath = "/api/v1/sensor-data"

// Client handles communication with the sensor data service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     cmtlog.Logger
}

// NewClient creates a new sensor service client
func NewClient(baseURL string, timeout time.Duration, logger cmtlog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchEvidence requests the signed sensor record for one chain link
func (c *Client) FetchEvidence(ctx context.Context, shipmentID, linkID string, wf WorkflowContext) (*Evidence, error) {
	payload := Request{
		ShipmentID:         shipmentID,
		TceID:              linkID,
		ProcessInstanceKey: wf.ProcessInstanceKey,
		ActivityID:         wf.ActivityID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Internal("SENSOR_REQUEST_ENCODING", "Failed to encode sensor request", err)
	}

	url := c.baseURL + sensorDataPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal("SENSOR_REQUEST_INVALID", "Failed to create sensor request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending sensor data request", "shipment_id", shipmentID, "tce_id", linkID, "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Network("SENSOR_READ_FAILED", "Failed to read sensor response", err)
	}
	c.logger.Debug("Received sensor response", "status", resp.StatusCode, "tce_id", linkID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Network("SENSOR_HTTP_STATUS", "Sensor service returned an error status", nil).
			WithDetail("status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
	}

	var evidence Evidence
	if err := json.Unmarshal(respBody, &evidence); err != nil {
		return nil, apperr.Validation("SENSOR_RESPONSE_INVALID", "Sensor response is not valid evidence", err)
	}
	if err := footprint.ValidateStruct("SENSOR_RESPONSE_INVALID", "Sensor response is missing fields", &evidence); err != nil {
		return nil, err
	}
	return &evidence, nil
}

// HealthCheck reports whether the sensor service answers at all
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return apperr.Internal("SENSOR_REQUEST_INVALID", "Failed to create health request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return apperr.Network("SENSOR_UNHEALTHY", "Sensor service health check failed", nil).
			WithDetail("status %d", resp.StatusCode)
	}
	return nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Network("SENSOR_TIMEOUT", "Sensor service did not answer in time", err)
	}
	return apperr.Network("SENSOR_UNREACHABLE", "Failed to reach sensor service", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
