package mytypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Points stores lap telemetry as JSON array.
// A nil slice is stored as NULL.
type Points []float64

func (p Points) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float64(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Points) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Points", src)
	}
	var ret []float64
	if err := json.Unmarshal(data, &ret); err != nil {
		return err
	}
	*p = ret
	return nil
}
