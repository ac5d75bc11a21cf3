//nolint:funlen // ok for tests
package driver

import (
	"testing"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"

	"github.com/rehud/rehud-delta/pkg/model"
)

func linearPoints(n int, step float64) []float64 {
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = float64(i) * step
	}
	return ret
}

// at returns a driver with a single sample at distance.
func at(key string, distance, simTime float64) *Driver {
	d := New(key, trackLength)
	d.AddDataPoint(distance, simTime)
	return d
}

func withBestLap(d *Driver, step float64) *Driver {
	d.LoadBestLap(float64(d.Current().Size())*step, linearPoints(d.Current().Size(), step), DistanceGap)
	return d
}

func TestDriver_DeltaToDriverAhead(t *testing.T) {
	type args struct {
		setup func() (behind, ahead, main *Driver)
	}
	tests := []struct {
		name string
		args args
		want null.Val[float64]
	}{
		{
			name: "no samples",
			args: args{func() (*Driver, *Driver, *Driver) {
				return New("b", trackLength), New("a", trackLength), nil
			}},
			want: null.Val[float64]{},
		},
		{
			name: "same bucket",
			args: args{func() (*Driver, *Driver, *Driver) {
				return at("b", 500.2, 1), at("a", 500.7, 9), nil
			}},
			want: null.From(0.0),
		},
		{
			name: "main driver ahead uses main best lap",
			args: args{func() (*Driver, *Driver, *Driver) {
				m := withBestLap(at("m", 500, 3), 0.1)
				return withBestLap(at("b", 400, 7), 0.5), m, m
			}},
			want: null.From(10.0),
		},
		{
			name: "main driver behind uses main best lap",
			args: args{func() (*Driver, *Driver, *Driver) {
				m := withBestLap(at("m", 400, 3), 0.1)
				return m, withBestLap(at("a", 500, 7), 0.5), m
			}},
			want: null.From(10.0),
		},
		{
			name: "wrap around uses estimated lap time",
			args: args{func() (*Driver, *Driver, *Driver) {
				m := withBestLap(at("m", 100, 3), 0.1)
				return at("b", 900, 7), m, m
			}},
			want: null.From(20.0),
		},
		{
			name: "tiny difference is absorbed",
			args: args{func() (*Driver, *Driver, *Driver) {
				m := withBestLap(at("m", 401, 3), 0.003)
				return at("b", 400, 7), m, m
			}},
			want: null.From(0.0),
		},
		{
			name: "own best lap without main driver",
			args: args{func() (*Driver, *Driver, *Driver) {
				return withBestLap(at("b", 300, 1), 0.2), at("a", 500, 2), nil
			}},
			want: null.From(40.0),
		},
		{
			name: "main driver without best lap falls back to current lap of driver ahead",
			args: args{func() (*Driver, *Driver, *Driver) {
				a := New("a", trackLength)
				drive(a, 0, 500, 0, 0.1)
				m := at("m", 300, 1)
				return m, a, m
			}},
			want: null.From(20.0),
		},
		{
			name: "best lap of driver ahead",
			args: args{func() (*Driver, *Driver, *Driver) {
				return at("b", 300, 1), withBestLap(at("a", 500, 2), 0.2), nil
			}},
			want: null.From(40.0),
		},
		{
			name: "own current lap with look ahead",
			args: args{func() (*Driver, *Driver, *Driver) {
				b := New("b", trackLength)
				drive(b, 0, 999, 0, 0.1)
				b.EndLap(LapEnd{SimTime: 100, Session: model.SessionPractice})
				drive(b, 0, 300, 100, 0.1)
				return b, at("a", 500, 999), nil
			}},
			want: null.From(19.9),
		},
		{
			name: "wrap around without estimate",
			args: args{func() (*Driver, *Driver, *Driver) {
				a := New("a", trackLength)
				drive(a, 0, 999, 0, 0.1)
				a.EndLap(LapEnd{SimTime: 100, Session: model.SessionPractice})
				drive(a, 0, 100, 100, 0.1)
				return at("b", 900, 1), a, nil
			}},
			want: null.Val[float64]{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			behind, ahead, main := tt.args.setup()
			got := behind.DeltaToDriverAhead(ahead, main)
			assertVal(t, tt.want, got)
			assertVal(t, tt.want, ahead.DeltaToDriverBehind(behind, main))
		})
	}
}

func TestDriver_EstimatedLapTime(t *testing.T) {
	assert.True(t, New("x", trackLength).EstimatedLapTime().IsNull())
	d := withBestLap(New("x", trackLength), 0.1)
	assertVal(t, null.From(100.0), d.EstimatedLapTime())
}
