package recognition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the normalized result of a recognition call. SubjectID is only
// meaningful when Matched is true.
type Outcome struct {
	Matched    bool
	SubjectID  int64
	Name       string
	Confidence float64
}

type rawOutcome struct {
	Recognized *bool           `json:"recognized"`
	UserID     json.RawMessage `json:"userId"`
	UserName   string          `json:"userName"`
	Confidence *float64        `json:"confidence"`
}

// parseOutcome decodes recognizer output. The whole trimmed output is tried
// first, then its last non-empty line, since interpreters may print warnings
// before the result.
func parseOutcome(out []byte) (Outcome, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}
	raw, err := decodeRaw(trimmed)
	if err != nil {
		if idx := bytes.LastIndexByte(trimmed, '\n'); idx >= 0 {
			raw, err = decodeRaw(bytes.TrimSpace(trimmed[idx+1:]))
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	if raw.Recognized == nil {
		return Outcome{}, fmt.Errorf("%w: missing recognized field", ErrMalformedResponse)
	}
	if !*raw.Recognized {
		return Outcome{}, nil
	}
	id, err := parseSubjectID(raw.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	o := Outcome{Matched: true, SubjectID: id, Name: raw.UserName}
	if raw.Confidence != nil {
		o.Confidence = *raw.Confidence
	}
	return o, nil
}

func decodeRaw(b []byte) (rawOutcome, error) {
	var raw rawOutcome
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&raw); err != nil {
		return rawOutcome{}, err
	}
	if dec.More() {
		return rawOutcome{}, fmt.Errorf("trailing data after result")
	}
	return raw, nil
}

// parseSubjectID accepts a JSON number or a numeric string so that 7 and "7"
// identify the same subject.
func parseSubjectID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("matched result without userId")
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return toSubjectID(string(num))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("userId has unexpected type: %s", raw)
	}
	return toSubjectID(strings.TrimSpace(s))
}

func toSubjectID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("userId %q is not an integer", s)
		}
		id = int64(f)
	}
	if id <= 0 {
		return 0, fmt.Errorf("userId %d is not positive", id)
	}
	return id, nil
}
