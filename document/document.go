// Package document defines the record type stored in collections.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrInvalidPayload is returned when a payload holds a value that is not a
// string, number or boolean.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload maps field names to scalar values.
type Payload map[string]any

// Document is an identified payload. The ID never changes after creation.
type Document struct {
	ID   string  `json:"id"`
	Data Payload `json:"data"`
}

// NewID returns a fresh globally unique identifier.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a copy of the document that shares no map with d.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Data: d.Data.Clone()}
}

// Clone returns a shallow copy of the payload. Values are scalars, so a
// shallow copy is a full copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns existing with every key of partial written over it.
// Keys missing from partial keep their existing value.
func Merge(existing, partial Payload) Payload {
	out := make(Payload, len(existing)+len(partial))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Normalize validates p and returns a copy in which every number is a
// float64. That is the form JSON decoding produces, so documents read back
// from any backend compare equal to what was written.
func Normalize(p Payload) (Payload, error) {
	out := make(Payload, len(p))
	for k, v := range p {
		if k == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidPayload)
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidPayload, k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch n := v.(type) {
	case string, bool:
		return n, nil
	case float64:
		return checkFloat(n)
	case float32:
		return checkFloat(float64(n))
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return checkFloat(f)
	case nil:
		return nil, errors.New("null values are not supported")
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func checkFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}
