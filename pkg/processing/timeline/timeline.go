// Package timeline provides a distance indexed ring buffer of lap times.
//
// Each bucket covers a fixed slice of the lap distance and holds the
// simulation time the car passed it. Index arithmetic wraps around the lap,
// so index -1 addresses the last bucket and index N the first one.
package timeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/aarondl/opt/null"
)

// ErrIndexNotSet is the panic value used when the cursor is read before it
// was set. This is a bug in the calling sequence, not bad telemetry.
var ErrIndexNotSet = errors.New("timeline index not set")

// ErrIncomplete is returned by Points if some bucket has no value.
var ErrIncomplete = errors.New("timeline has unset buckets")

type Timeline struct {
	points []null.Val[float64]
	index  null.Val[int]
}

// New creates an empty timeline with size buckets.
func New(size int) *Timeline {
	if size < 1 {
		size = 1
	}
	return &Timeline{points: make([]null.Val[float64], size)}
}

// NewForTrack creates a timeline covering trackLength with buckets of gap meters.
func NewForTrack(trackLength float64, gap int) *Timeline {
	return New(int(math.Ceil(trackLength / float64(gap))))
}

// NewFromPoints creates a timeline with all buckets set. The cursor is unset.
func NewFromPoints(points []float64) *Timeline {
	t := New(len(points))
	for i, p := range points {
		t.points[i] = null.From(p)
	}
	return t
}

func (t *Timeline) Size() int {
	return len(t.points)
}

// Normalize maps any index into [0, Size()).
func (t *Timeline) Normalize(i int) int {
	n := len(t.points)
	return (i%n + n) % n
}

func (t *Timeline) IsIndexSet() bool {
	return t.index.IsValue()
}

func (t *Timeline) SetIndex(i int) {
	t.index = null.From(t.Normalize(i))
}

// Index returns the cursor. It panics with ErrIndexNotSet if the cursor is unset.
func (t *Timeline) Index() int {
	t.mustIndex()
	return t.index.MustGet()
}

// Cursor returns the cursor as optional value.
func (t *Timeline) Cursor() null.Val[int] {
	return t.index
}

// Current returns the value of the bucket at the cursor.
func (t *Timeline) Current() null.Val[float64] {
	return t.points[t.Index()]
}

// At returns the value of bucket i (normalized).
func (t *Timeline) At(i int) null.Val[float64] {
	return t.points[t.Normalize(i)]
}

// Interpolate returns the linear interpolation between the buckets surrounding
// a fractional index. Both buckets need a value.
func (t *Timeline) Interpolate(idx float64) null.Val[float64] {
	lo := math.Floor(idx)
	v1 := t.At(int(lo))
	v2 := t.At(int(math.Ceil(idx)))
	t1, ok1 := v1.Get()
	t2, ok2 := v2.Get()
	if !ok1 || !ok2 {
		return null.Val[float64]{}
	}
	return null.From(t1 + (t2-t1)*(idx-lo))
}

// Set writes v into the bucket at the cursor.
func (t *Timeline) Set(v float64) {
	t.points[t.Index()] = null.From(v)
}

// Add advances the cursor by one bucket and writes v.
func (t *Timeline) Add(v float64) {
	t.advance()
	t.points[t.index.MustGet()] = null.From(v)
}

// DoUntilIndex advances the cursor one bucket at a time until it reaches
// target. After each step fn receives the step number (starting at 1) and the
// value stored at the new cursor position. Returns the number of steps taken.
func (t *Timeline) DoUntilIndex(target int, fn func(step int, val null.Val[float64])) int {
	t.mustIndex()
	target = t.Normalize(target)
	steps := 0
	for t.index.MustGet() != target {
		t.advance()
		steps++
		fn(steps, t.points[t.index.MustGet()])
	}
	return steps
}

// FillDataGap walks from the cursor to newIndex and writes values linearly
// interpolated between the value at the cursor and newTime. If the cursor
// bucket has no value all visited buckets get newTime.
func (t *Timeline) FillDataGap(newIndex int, newTime float64) int {
	last := t.Current()
	newIndex = t.Normalize(newIndex)
	total := t.Normalize(newIndex - t.index.MustGet())
	lastTime, hasLast := last.Get()
	return t.DoUntilIndex(newIndex, func(step int, _ null.Val[float64]) {
		if !hasLast {
			t.Set(newTime)
			return
		}
		t.Set(lastTime + (newTime-lastTime)*float64(step)/float64(total))
	})
}

// TimeDifference returns the absolute difference between two buckets.
func (t *Timeline) TimeDifference(i1, i2 int) null.Val[float64] {
	t1, ok1 := t.At(i1).Get()
	t2, ok2 := t.At(i2).Get()
	if !ok1 || !ok2 {
		return null.Val[float64]{}
	}
	return null.From(math.Abs(t2 - t1))
}

// Delta compares currentTime with the lap time this timeline had at the
// fractional index idx. Positive values mean slower.
func (t *Timeline) Delta(idx, currentTime float64) null.Val[float64] {
	lo := int(math.Floor(idx))
	var inLap null.Val[float64]
	if lo == len(t.points)-1 {
		// no interpolation across the finish line
		inLap = t.points[lo]
	} else {
		inLap = t.Interpolate(idx)
	}
	first, ok1 := t.points[0].Get()
	v, ok2 := inLap.Get()
	if !ok1 || !ok2 {
		return null.Val[float64]{}
	}
	return null.From(currentTime - (v - first))
}

// CloneAndSubtractFirst returns a copy whose values are relative to bucket 0.
// A missing bucket 0 counts as 0. The clone has no cursor.
func (t *Timeline) CloneAndSubtractFirst() *Timeline {
	clone := New(len(t.points))
	first := t.points[0].GetOr(0)
	for i, p := range t.points {
		if v, ok := p.Get(); ok {
			clone.points[i] = null.From(v - first)
		}
	}
	return clone
}

// Points returns a dense copy of all buckets.
func (t *Timeline) Points() ([]float64, error) {
	ret := make([]float64, len(t.points))
	for i, p := range t.points {
		v, ok := p.Get()
		if !ok {
			return nil, fmt.Errorf("bucket %d: %w", i, ErrIncomplete)
		}
		ret[i] = v
	}
	return ret, nil
}

func (t *Timeline) advance() {
	t.index = null.From(t.Normalize(t.Index() + 1))
}

func (t *Timeline) mustIndex() {
	if !t.index.IsValue() {
		panic(ErrIndexNotSet)
	}
}
