// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dok

import (
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestTriplet(t *testing.T) {
	m := New(3)
	m.AddAt(0, 1, 1)
	m.AddAt(1, 0, 1)
	m.SetAt(2, 2, 5)
	m.SetAt(1, 1, 7)
	m.SetAt(1, 1, 0)
	if got := m.At(1, 0); got != 2 {
		t.Errorf("At(1,0) = %v, want 2", got)
	}
	tr := m.Triplet()
	if tr.NNZ() != 2 {
		t.Errorf("unexpected number of entries %d", tr.NNZ())
	}
	dst := make([]float64, 3)
	tr.MulVec(dst, []float64{1, 2, 3})
	if want := []float64{4, 2, 15}; !floats.Equal(dst, want) {
		t.Errorf("A*x = %v, want %v", dst, want)
	}
}
