package feeder

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONFeeder serves the objects of a JSON array. Values are stringified.
type JSONFeeder struct {
	dataset
}

// NewJSONFeeder loads the array stored at path.
func NewJSONFeeder(path string) (*JSONFeeder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("JSON file contains empty array")
	}

	records := make([]Record, 0, len(raw))
	for i, obj := range raw {
		if len(obj) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		record := make(Record, len(obj))
		for key, value := range obj {
			record[key] = fmt.Sprintf("%v", value)
		}
		records = append(records, record)
	}
	return &JSONFeeder{dataset{records: records}}, nil
}
