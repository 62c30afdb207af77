package clockest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowEmpty(t *testing.T) {
	w := newWindow(0) // defaults to size 1
	require.True(t, math.IsNaN(w.last()))
	require.True(t, math.IsNaN(w.mean()))
	require.True(t, math.IsNaN(w.median()))
	require.Equal(t, 0, len(w.all()))
}

func TestWindowOne(t *testing.T) {
	w := newWindow(0) // defaults to size 1
	w.add(3.14)
	require.InDelta(t, 3.14, w.last(), 0.001)
	require.InDelta(t, 3.14, w.mean(), 0.001)
	require.InDelta(t, 3.14, w.median(), 0.001)
	require.Equal(t, 1, len(w.all()))

	w.add(5.32)
	require.InDelta(t, 5.32, w.last(), 0.001)
	require.InDelta(t, 5.32, w.mean(), 0.001)
	require.InDelta(t, 5.32, w.median(), 0.001)
	require.Equal(t, 1, len(w.all()))
}

func TestWindowMultiple(t *testing.T) {
	w := newWindow(5)
	w.add(3.14)
	w.add(5.32)
	require.InDelta(t, 4.23, w.mean(), 0.001)
	// median is the element at index count/2 of the sorted snapshot, not an
	// average of the two middle elements: sorted [3.14, 5.32], index 2/2=1.
	require.InDelta(t, 5.32, w.median(), 0.001)

	w.add(3.17)
	require.InDelta(t, 3.17, w.median(), 0.001)

	w.add(3.52)
	// sorted [3.14, 3.17, 3.52, 5.32], index 4/2=2.
	require.InDelta(t, 3.52, w.median(), 0.001)

	w.add(3.90)
	require.InDelta(t, 3.52, w.median(), 0.001)
	require.Equal(t, 5, len(w.all()))

	w.add(301.90) // outlier must not move the median much
	// 3.14 falls out of the window; sorted [3.17, 3.52, 3.90, 5.32, 301.90],
	// index 5/2=2.
	require.InDelta(t, 3.90, w.median(), 0.001)
	require.Equal(t, 5, len(w.all()))
}

func TestWindowMedianAtStepEleven(t *testing.T) {
	w := newWindow(64)
	for _, v := range []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5} {
		w.add(v)
	}
	require.Equal(t, 11, len(w.all()))
	require.InDelta(t, 4, w.median(), 0.001)
}
