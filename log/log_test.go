//nolint:errcheck // by design
package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	ret := []map[string]any{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		ret = append(ret, m)
	}
	return ret
}

func TestNewRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, WarnLevel)
	l.Info("hidden")
	l.Warn("shown", String("driver", "M"))
	l.Sync()

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "M", lines[0]["driver"])
}

func TestNamedKeepsType(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, DebugLevel).Named("processing").Named("fleet")
	l.Debug("x")
	l.Sync()

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "processing.fleet", lines[0]["logger"])
}

func TestWithFilter(t *testing.T) {
	tests := []struct {
		name  string
		rules string
		want  []string
	}{
		{"no rules", "", []string{"a-debug", "a-info", "b-debug", "b-info"}},
		{"info only", "info+:*", []string{"a-info", "b-info"}},
		{"debug for a", "info+:* debug+:a", []string{"a-debug", "a-info", "b-info"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l, err := WithFilter(New(buf, DebugLevel), tt.rules)
			require.NoError(t, err)
			for _, name := range []string{"a", "b"} {
				l.Named(name).Debug(name + "-debug")
				l.Named(name).Info(name + "-info")
			}
			l.Sync()
			got := []string{}
			for _, line := range decodeLines(t, buf) {
				got = append(got, line["msg"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithFilterInvalid(t *testing.T) {
	_, err := WithFilter(Default(), "nolevel:*")
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	assert.Same(t, Default(), GetFromContext(context.Background()))

	l := New(&bytes.Buffer{}, InfoLevel)
	ctx := AddToContext(context.Background(), l)
	assert.Same(t, l, GetFromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, lvl)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestFloat64p(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, InfoLevel)
	v := 90.5
	l.Info("lap", Float64p("lapTime", &v))
	l.Info("lap", Float64p("lapTime", nil))
	l.Sync()

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.InDelta(t, 90.5, lines[0]["lapTime"], 1e-9)
	assert.Nil(t, lines[1]["lapTime"])
}
