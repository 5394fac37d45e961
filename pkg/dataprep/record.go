package dataprep

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeRecord reads exactly one JSON object of field to string or number.
// Null values are treated as missing.
func DecodeRecord(r io.Reader) (RawRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode record: %w", ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after object")
		}
		return nil, fmt.Errorf("%w: decode record: %w", ErrInvalidInput, err)
	}
	rec := make(RawRecord, len(body))
	for k, v := range body {
		switch t := v.(type) {
		case nil:
		case string:
			rec[k] = t
		case json.Number:
			rec[k] = t.String()
		default:
			return nil, &FieldError{Field: k, Value: fmt.Sprint(v), Reason: "must be a string or number"}
		}
	}
	return rec, nil
}
