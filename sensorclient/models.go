package sensorclient

import (
	"bytes"
	"encoding/json"

	"github.com/ahmadzakiakmal/carbon-ledger/footprint"
	"github.com/cockroachdb/errors"
)

// WorkflowContext identifies the workflow step on whose behalf evidence is fetched
type WorkflowContext struct {
	ProcessInstanceKey string
	ActivityID         string
}

// Request is the body sent to the sensor data endpoint
type Request struct {
	ShipmentID         string `json:"shipment_id"`
	TceID              string `json:"tceId"`
	ProcessInstanceKey string `json:"camundaProcessInstanceKey"`
	ActivityID         string `json:"camundaActivityId"`
}

// SensorData is the measurement payload of one evidence record. Fields other
// than distance are kept verbatim so re-serialization loses nothing.
type SensorData struct {
	Distance footprint.Distance
	Extra    map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler
func (s *SensorData) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["distance"]; ok {
		if err := json.Unmarshal(raw, &s.Distance); err != nil {
			return errors.Wrap(err, "sensorData.distance")
		}
		delete(fields, "distance")
	}
	if len(fields) > 0 {
		s.Extra = fields
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (s SensorData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Extra)+1)
	for k, v := range s.Extra {
		out[k] = v
	}
	dist, err := json.Marshal(s.Distance)
	if err != nil {
		return nil, err
	}
	out["distance"] = dist
	return json.Marshal(out)
}

// Evidence is a signed sensor record for one chain link
type Evidence struct {
	TceID            string     `json:"tceId" validate:"required"`
	SensorKey        string     `json:"sensorkey" validate:"required"`
	SignedSensorData string     `json:"signedSensorData" validate:"required"`
	SensorData       SensorData `json:"sensorData"`
}

// UnmarshalJSON accepts sensorData either as an object or as a string that
// itself contains the JSON object.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	type plain Evidence
	var wire struct {
		plain
		SensorData json.RawMessage `json:"sensorData"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Evidence(wire.plain)

	raw := bytes.TrimSpace(wire.SensorData)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		raw = []byte(inner)
	}
	return json.Unmarshal(raw, &e.SensorData)
}

// ActualDistance returns the measured distance, if the sensor reported one
func (e *Evidence) ActualDistance() (float64, bool) {
	if e == nil || e.SensorData.Distance.Actual == nil {
		return 0, false
	}
	return *e.SensorData.Distance.Actual, true
}
