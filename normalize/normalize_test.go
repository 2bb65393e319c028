package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type inner struct {
	X      float64
	Y      float32
	hidden float64
}

type record struct {
	A     float64
	N     int
	In    inner
	Ptr   *inner
	List  []float64
	Arr   [2]float64
	Extra map[string]any
}

func TestValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.235, Value(1.23456, 3))
	assert.Equal(t, -2.5, Value(-2.4999999, 3))
	assert.Equal(t, 0.0, Value(0.0004, 3))
	assert.True(t, math.IsNaN(Value(math.NaN(), 3)))
	assert.True(t, math.IsInf(Value(math.Inf(1), 3), 1))
}

func TestRoundIsIdempotent(t *testing.T) {
	t.Parallel()

	xs := []float64{0.1234567, 2.0005, -7.77777, 123456.789012, 1e-9, 0.3333333, 99.9995}
	for _, x := range xs {
		once := Value(x, 3)
		assert.Equal(t, once, Value(once, 3), "x=%v", x)
	}
}

func TestRoundWalksNestedRecords(t *testing.T) {
	t.Parallel()

	r := &record{
		A:    1.23456,
		N:    7,
		In:   inner{X: 0.98765, Y: 0.12345, hidden: 0.55555},
		Ptr:  &inner{X: 3.14159},
		List: []float64{1.0001, 2.9999},
		Arr:  [2]float64{0.55555, 0.4444},
		Extra: map[string]any{
			"score":  0.87654,
			"nested": map[string]any{"v": 1.11111},
			"items":  []any{2.22222, "text"},
			"count":  3,
		},
	}
	changed := Round(r, 3)

	assert.Positive(t, changed)
	assert.Equal(t, 1.235, r.A)
	assert.Equal(t, 7, r.N)
	assert.Equal(t, 0.988, r.In.X)
	assert.InDelta(t, 0.123, float64(r.In.Y), 1e-6)
	assert.Equal(t, 0.55555, r.In.hidden)
	assert.Equal(t, 3.142, r.Ptr.X)
	assert.Equal(t, []float64{1.0, 3.0}, r.List)
	assert.Equal(t, [2]float64{0.556, 0.444}, r.Arr)
	assert.Equal(t, 0.877, r.Extra["score"])
	assert.Equal(t, 1.111, r.Extra["nested"].(map[string]any)["v"])
	assert.Equal(t, 2.222, r.Extra["items"].([]any)[0])
	assert.Equal(t, 3, r.Extra["count"])

	assert.Zero(t, Round(r, 3), "second pass must not change anything")
}

func TestApplyReplacesNonFinite(t *testing.T) {
	t.Parallel()

	v := []float64{1, math.NaN(), math.Inf(-1)}
	n := Apply(v, func(x float64) float64 {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{1, 0, 0}, v)
	assert.Zero(t, Apply(nil, math.Abs))
}
