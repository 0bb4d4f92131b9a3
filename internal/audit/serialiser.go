package audit

import (
	"encoding/json"
	"fmt"
)

// Сериализация в wire-формат datastream. По одной функции на вариант события.

func SerialiseDataEvent(e DataEvent) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialise data event %s: %w", e.EventID, err)
	}
	return b, nil
}

func SerialiseExtendedEvent(e ExtendedDataEvent) ([]byte, error) {
	if len(e.Detail) > 0 && !json.Valid(e.Detail) {
		return nil, fmt.Errorf("serialise extended event %s: detail is not valid JSON", e.EventID)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialise extended event %s: %w", e.EventID, err)
	}
	return b, nil
}

func SerialiseMergedEvent(e MergedDataEvent) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialise merged event %s: %w", e.EventID, err)
	}
	return b, nil
}
