//nolint:funlen,lll // ok for tests
package timeline

import (
	"errors"
	"testing"

	"github.com/aarondl/opt/null"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(t *Timeline) []any {
	ret := make([]any, t.Size())
	for i := range ret {
		if v, ok := t.At(i).Get(); ok {
			ret[i] = v
		}
	}
	return ret
}

func TestTimeline_Normalize(t *testing.T) {
	tl := New(10)
	tests := []struct {
		name string
		arg  int
		want int
	}{
		{"in range", 3, 3},
		{"size", 10, 0},
		{"minus one", -1, 9},
		{"far negative", -21, 9},
		{"far positive", 35, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tl.Normalize(tt.arg))
		})
	}
}

func TestTimeline_AtWrapsAround(t *testing.T) {
	tl := NewFromPoints([]float64{1, 2, 3, 4, 5})
	for i := -10; i < 10; i++ {
		assert.Equal(t, tl.At(i), tl.At(i+tl.Size()), "index %d", i)
	}
}

func TestTimeline_IndexNotSet(t *testing.T) {
	tests := []struct {
		name string
		fn   func(tl *Timeline)
	}{
		{"Index", func(tl *Timeline) { tl.Index() }},
		{"Current", func(tl *Timeline) { tl.Current() }},
		{"Set", func(tl *Timeline) { tl.Set(1) }},
		{"Add", func(tl *Timeline) { tl.Add(1) }},
		{"DoUntilIndex", func(tl *Timeline) { tl.DoUntilIndex(3, func(int, null.Val[float64]) {}) }},
		{"FillDataGap", func(tl *Timeline) { tl.FillDataGap(3, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r)
				err, ok := r.(error)
				require.True(t, ok)
				assert.True(t, errors.Is(err, ErrIndexNotSet))
			}()
			tt.fn(New(5))
		})
	}
}

func TestTimeline_SetIndexNormalizes(t *testing.T) {
	tl := New(5)
	assert.False(t, tl.IsIndexSet())
	tl.SetIndex(-1)
	assert.True(t, tl.IsIndexSet())
	assert.Equal(t, 4, tl.Index())
	tl.Add(2.0)
	assert.Equal(t, 0, tl.Index())
	assert.Equal(t, null.From(2.0), tl.Current())
}

func TestTimeline_Interpolate(t *testing.T) {
	tl := New(4)
	tl.SetIndex(0)
	tl.Set(10)
	tl.Add(20)
	tl.Add(30)
	tests := []struct {
		name string
		idx  float64
		want null.Val[float64]
	}{
		{"exact", 1, null.From(20.0)},
		{"quarter", 0.25, null.From(12.5)},
		{"half", 1.5, null.From(25.0)},
		{"wrapped", 4.5, null.From(15.0)},
		{"upper bucket unset", 2.5, null.Val[float64]{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tl.Interpolate(tt.idx)
			if tt.want.IsNull() {
				assert.True(t, got.IsNull())
				return
			}
			assert.InDelta(t, tt.want.MustGet(), got.MustGet(), 1e-9)
		})
	}
}

func TestTimeline_DoUntilIndex(t *testing.T) {
	tl := New(5)
	tl.SetIndex(3)
	var steps []int
	n := tl.DoUntilIndex(1, func(step int, _ null.Val[float64]) {
		steps = append(steps, step)
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, steps)
	assert.Equal(t, 1, tl.Index())

	assert.Equal(t, 0, tl.DoUntilIndex(6, func(int, null.Val[float64]) {}))
}

func TestTimeline_FillDataGap(t *testing.T) {
	type args struct {
		newIndex int
		newTime  float64
	}
	tests := []struct {
		name      string
		init      func() *Timeline
		args      args
		wantSteps int
		want      []any
	}{
		{
			name: "linear interpolation",
			init: func() *Timeline {
				tl := New(6)
				tl.SetIndex(0)
				tl.Set(5)
				return tl
			},
			args:      args{newIndex: 4, newTime: 10},
			wantSteps: 4,
			want:      []any{5.0, 6.25, 7.5, 8.75, 10.0, nil},
		},
		{
			name: "no prior value",
			init: func() *Timeline {
				tl := New(5)
				tl.SetIndex(0)
				return tl
			},
			args:      args{newIndex: 3, newTime: 7},
			wantSteps: 3,
			want:      []any{nil, 7.0, 7.0, 7.0, nil},
		},
		{
			name: "across lap boundary",
			init: func() *Timeline {
				tl := New(5)
				tl.SetIndex(3)
				tl.Set(1)
				return tl
			},
			args:      args{newIndex: 1, newTime: 4},
			wantSteps: 3,
			want:      []any{3.0, 4.0, nil, 1.0, 2.0},
		},
		{
			name: "same index",
			init: func() *Timeline {
				tl := New(3)
				tl.SetIndex(1)
				tl.Set(1)
				return tl
			},
			args:      args{newIndex: 1, newTime: 4},
			wantSteps: 0,
			want:      []any{nil, 1.0, nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := tt.init()
			steps := tl.FillDataGap(tt.args.newIndex, tt.args.newTime)
			assert.Equal(t, tt.wantSteps, steps)
			if diff := cmp.Diff(tt.want, values(tl)); diff != "" {
				t.Errorf("FillDataGap() mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tl.Normalize(tt.args.newIndex), tl.Index())
		})
	}
}

func TestTimeline_TimeDifference(t *testing.T) {
	tl := New(4)
	tl.SetIndex(0)
	tl.Set(1)
	tl.Add(3.5)
	assert.Equal(t, null.From(2.5), tl.TimeDifference(0, 1))
	assert.Equal(t, null.From(2.5), tl.TimeDifference(1, 0))
	assert.True(t, tl.TimeDifference(1, 2).IsNull())
}

func TestTimeline_Delta(t *testing.T) {
	tl := NewFromPoints([]float64{2, 3, 4, 5})
	tests := []struct {
		name        string
		idx         float64
		currentTime float64
		want        null.Val[float64]
	}{
		{"slower", 1, 2, null.From(1.0)},
		{"faster", 2, 1, null.From(-1.0)},
		{"interpolated", 1.5, 1.5, null.From(0.0)},
		{"last bucket uses raw value", 3.5, 3, null.From(0.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tl.Delta(tt.idx, tt.currentTime)
			assert.InDelta(t, tt.want.MustGet(), got.MustGet(), 1e-9)
		})
	}

	empty := New(4)
	assert.True(t, empty.Delta(1, 1).IsNull())
}

func TestTimeline_CloneAndSubtractFirst(t *testing.T) {
	tl := New(6)
	tl.SetIndex(0)
	tl.Set(3)
	tl.FillDataGap(5, 8)
	clone := tl.CloneAndSubtractFirst()
	assert.Equal(t, tl.Size(), clone.Size())
	assert.False(t, clone.IsIndexSet())
	assert.Equal(t, null.From(0.0), clone.At(0))
	assert.Equal(t, null.From(5.0), clone.At(5))

	noFirst := New(3)
	noFirst.SetIndex(1)
	noFirst.Set(4)
	c := noFirst.CloneAndSubtractFirst()
	assert.Equal(t, []any{nil, 4.0, nil}, values(c))
}

func TestTimeline_Points(t *testing.T) {
	tl := NewFromPoints([]float64{1, 2})
	got, err := tl.Points()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)

	_, err = New(2).Points()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestNewForTrack(t *testing.T) {
	assert.Equal(t, 1000, NewForTrack(1000, 1).Size())
	assert.Equal(t, 334, NewForTrack(1000, 3).Size())
}
