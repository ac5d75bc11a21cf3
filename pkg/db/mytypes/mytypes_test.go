package mytypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoints_Value(t *testing.T) {
	v, err := Points{0, 1.5, 3}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[0,1.5,3]", v)

	v, err = Points(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPoints_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    Points
		wantErr bool
	}{
		{"string", "[1,2]", Points{1, 2}, false},
		{"bytes", []byte("[0.5]"), Points{0.5}, false},
		{"null", nil, nil, false},
		{"wrong type", 42, nil, true},
		{"broken json", "[1,", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Points
			err := p.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}
