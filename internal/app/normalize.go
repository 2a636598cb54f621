package app

import (
	"encoding/json"
	"fmt"
	"strconv"

	"converseiq-service/internal/domain"
)

// NormalizeResponse converts a submitted response into its stored string form.
// Strings are kept verbatim, scalars become their textual representation and
// anything structured is stored as JSON.
func NormalizeResponse(raw any, inputType domain.InputType) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", domain.ErrResponseRequired
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	}

	if inputType == domain.InputNumber {
		if s, ok := raw.(fmt.Stringer); ok {
			return s.String(), nil
		}
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return "", &domain.Error{Kind: domain.KindValidation, Message: "response could not be encoded: " + err.Error()}
	}
	return string(encoded), nil
}
