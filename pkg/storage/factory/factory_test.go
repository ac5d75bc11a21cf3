package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/storage/sqlite"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		dbURL   string
		wantErr bool
	}{
		{name: "unsupported", dbURL: "mysql://localhost/laps", wantErr: true},
		{name: "empty sqlite path", dbURL: "sqlite://", wantErr: true},
		{name: "sqlite", dbURL: "sqlite://" + filepath.Join(t.TempDir(), "laps.db")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Open(context.Background(), tt.dbURL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer got.Close()
			assert.IsType(t, &sqlite.Store{}, got)
			combs, err := got.ListCombinations(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []model.Combination{}, combs)
		})
	}
}
