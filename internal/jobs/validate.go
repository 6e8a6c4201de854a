package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
)

var (
	ErrInvalidJobState = errors.New("invalid job state")
	ErrInvalidJobInfo  = errors.New("invalid job info")
)

// IsValidJobState reports whether candidate is a well-formed job state object.
// It must be an object with a non-empty string job_id, a known status and a
// numeric created timestamp. Accepted inputs are decoded JSON objects, raw JSON
// and records.
func IsValidJobState(candidate any) bool {
	switch v := candidate.(type) {
	case Record:
		return v.Valid()
	case *Record:
		return v.Valid()
	}

	obj, ok := asObject(candidate)
	if !ok {
		return false
	}

	jobID, ok := obj["job_id"].(string)
	if !ok || jobID == "" {
		return false
	}
	status, ok := obj["status"].(string)
	if !ok || !Status(status).Valid() {
		return false
	}
	return isNumber(obj["created"])
}

// IsValidJobInfo reports whether candidate is a well-formed job info object.
// job_id may be a string or a number. job_params must be a non-empty list of
// non-empty objects.
func IsValidJobInfo(candidate any) bool {
	if info, ok := candidate.(*Info); ok {
		if info == nil {
			return false
		}
		candidate = *info
	}
	if info, ok := candidate.(Info); ok {
		if info.JobID == "" || len(info.JobParams) == 0 {
			return false
		}
		for _, p := range info.JobParams {
			if len(p) == 0 {
				return false
			}
		}
		return true
	}

	obj, ok := asObject(candidate)
	if !ok {
		return false
	}

	switch id := obj["job_id"].(type) {
	case string:
		if id == "" {
			return false
		}
	default:
		if !isNumber(id) {
			return false
		}
	}

	params, ok := obj["job_params"].([]any)
	if !ok || len(params) == 0 {
		return false
	}
	for _, p := range params {
		m, ok := p.(map[string]any)
		if !ok || len(m) == 0 {
			return false
		}
	}
	return true
}

// ParseRecord validates and decodes a raw job state.
func ParseRecord(raw any) (Record, error) {
	var rec Record
	if !IsValidJobState(raw) {
		return rec, ErrInvalidJobState
	}
	switch v := raw.(type) {
	case Record:
		return v, nil
	case *Record:
		return *v, nil
	}

	obj, _ := asObject(raw)
	if err := mapstructure.Decode(obj, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidJobState, err)
	}
	return rec, nil
}

// ParseInfo validates and decodes a raw job info payload.
func ParseInfo(raw any) (Info, error) {
	var info Info
	if !IsValidJobInfo(raw) {
		return info, ErrInvalidJobInfo
	}
	switch v := raw.(type) {
	case Info:
		return v, nil
	case *Info:
		return *v, nil
	}

	obj, _ := asObject(raw)
	normalized := make(map[string]any, len(obj))
	for k, v := range obj {
		normalized[k] = v
	}
	if id, ok := obj["job_id"].(float64); ok {
		normalized["job_id"] = strconv.FormatFloat(id, 'f', -1, 64)
	} else if id, ok := obj["job_id"].(json.Number); ok {
		normalized["job_id"] = id.String()
	} else if !isString(obj["job_id"]) {
		normalized["job_id"] = fmt.Sprint(obj["job_id"])
	}

	if err := mapstructure.Decode(normalized, &info); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidJobInfo, err)
	}
	return info, nil
}

// asObject returns candidate as a JSON object. Arrays, scalars and nil are rejected.
func asObject(candidate any) (map[string]any, bool) {
	switch v := candidate.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, v != nil
	case json.RawMessage:
		return decodeObject(v)
	case []byte:
		return decodeObject(v)
	}
	return nil, false
}

func decodeObject(data []byte) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
