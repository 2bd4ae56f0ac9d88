package srvreg

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
)

func (req *Request) raw(name string) (json.RawMessage, bool) {
	v, ok := req.Variables[name]
	if !ok {
		return nil, false
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, false
	}
	return v, true
}

// decode unmarshals variable name into out. A missing optional variable
// leaves out untouched and reports false.
func (req *Request) decode(name string, out any, required bool) (bool, error) {
	raw, ok := req.raw(name)
	if !ok {
		if required {
			return false, apperr.Validation("MISSING_VARIABLE", "Required job variable is missing", nil).
				WithDetail("variable=%s", name)
		}
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, apperr.Validation("INVALID_VARIABLE", "Job variable has the wrong shape", err).
			WithDetail("variable=%s: %v", name, err)
	}
	return true, nil
}

// operatorID reads an operator id that may arrive as a JSON number or string.
func (req *Request) operatorID(name string) (string, error) {
	raw, ok := req.raw(name)
	if !ok {
		return "", apperr.Validation("MISSING_VARIABLE", "Required job variable is missing", nil).
			WithDetail("variable=%s", name)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", apperr.Validation("INVALID_VARIABLE", "Operator id must not be blank", nil).
				WithDetail("variable=%s", name)
		}
		return s, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", apperr.Validation("INVALID_VARIABLE", "Operator id must be a string or an integer", err).
			WithDetail("variable=%s", name)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", apperr.Validation("INVALID_VARIABLE", "Operator id must be a string or an integer", err).
			WithDetail("variable=%s value=%s", name, n)
	}
	return n.String(), nil
}

// NewRequest builds a request from plain Go values, encoding each variable.
func NewRequest(taskType, jobKey string, vars map[string]any) (*Request, error) {
	req := &Request{TaskType: taskType, JobKey: jobKey, Variables: make(map[string]json.RawMessage, len(vars))}
	for k, v := range vars {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, apperr.Internal("VARIABLE_ENCODING", "Failed to encode job variable", err).
				WithDetail("variable=%s", k)
		}
		req.Variables[k] = raw
	}
	return req, nil
}
