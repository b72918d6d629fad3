package audit

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Score holds a backend score verbatim. The backend reports scores either as
// numbers (12) or as fractions ("43/75"), so both are accepted and kept as text.
type Score string

// UnmarshalJSON accepts a JSON number, string or null.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = Score(text)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = Score(num.String())
	return nil
}

// MarshalJSON writes scores that are valid JSON numbers back as numbers and
// everything else, including "NaN" or ".5", as strings.
func (s Score) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(string(s), 64); err == nil && json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

func (s Score) String() string {
	return string(s)
}
