package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Network is a fully connected input-hidden-output network whose weights
// are unipolar values in [MinWeight, MaxWeight]. A stored weight w acts as
// the bipolar value 2w-1, matching a differential pair of storage devices.
//
// Weight1 is nHide x nInput and Weight2 is nOutput x nHide; Delta1 and
// Delta2 hold the change applied by the last update.
type Network struct {
	NInput, NHide, NOutput int
	MinWeight, MaxWeight   float64

	Weight1, Weight2 *mat.Dense
	Delta1, Delta2   *mat.Dense
}

// NewNetwork draws every weight uniformly from [minWeight, maxWeight].
func NewNetwork(nInput, nHide, nOutput int, minWeight, maxWeight float64, rng *rand.Rand) *Network {
	n := &Network{
		NInput:    nInput,
		NHide:     nHide,
		NOutput:   nOutput,
		MinWeight: minWeight,
		MaxWeight: maxWeight,
		Weight1:   mat.NewDense(nHide, nInput, nil),
		Weight2:   mat.NewDense(nOutput, nHide, nil),
		Delta1:    mat.NewDense(nHide, nInput, nil),
		Delta2:    mat.NewDense(nOutput, nHide, nil),
	}
	span := maxWeight - minWeight
	fill := func(_, _ int, _ float64) float64 { return minWeight + rng.Float64()*span }
	n.Weight1.Apply(fill, n.Weight1)
	n.Weight2.Apply(fill, n.Weight2)
	return n
}

// bipolar returns 2W-1.
func bipolar(w *mat.Dense) *mat.Dense {
	var s mat.Dense
	s.Apply(func(_, _ int, v float64) float64 { return 2*v - 1 }, w)
	return &s
}

// Forward computes the net input sum_k (2*x_k*w_jk - x_k) and the sigmoid
// activation of one layer.
func Forward(w *mat.Dense, in []float64) (net, act []float64) {
	rows, _ := w.Dims()
	var out mat.VecDense
	out.MulVec(bipolar(w), mat.NewVecDense(len(in), in))
	net = make([]float64, rows)
	act = make([]float64, rows)
	for j := range net {
		net[j] = out.AtVec(j)
		act[j] = Sigmoid(net[j])
	}
	return net, act
}

// OutputDeltas returns -2*a*(1-a)*(target-a) for every output neuron.
func OutputDeltas(a2, target []float64) []float64 {
	s2 := make([]float64, len(a2))
	for j, a := range a2 {
		s2[j] = -2 * a * (1 - a) * (target[j] - a)
	}
	return s2
}

// HiddenDeltas back-propagates s2 through the bipolar view of w2:
// s1_j = a1_j*(1-a1_j) * sum_k (2*w2_kj - 1) * s2_k.
func HiddenDeltas(a1, s2 []float64, w2 *mat.Dense) []float64 {
	var back mat.VecDense
	back.MulVec(bipolar(w2).T(), mat.NewVecDense(len(s2), s2))
	s1 := make([]float64, len(a1))
	for j, a := range a1 {
		s1[j] = a * (1 - a) * back.AtVec(j)
	}
	return s1
}

// Update applies delta_w = -alpha*s_j*in_k to w and records the applied
// change in dw. Weights are clamped to [minWeight, maxWeight] and the
// excess is folded out of dw, so dw never exceeds what was applied.
func Update(w, dw *mat.Dense, s, in []float64, alpha, minWeight, maxWeight float64) {
	dw.Outer(-alpha, mat.NewVecDense(len(s), s), mat.NewVecDense(len(in), in))
	rows, cols := w.Dims()
	for j := 0; j < rows; j++ {
		for k := 0; k < cols; k++ {
			d := dw.At(j, k)
			next := w.At(j, k) + d
			if next > maxWeight {
				d -= next - maxWeight
				next = maxWeight
			} else if next < minWeight {
				d += minWeight - next
				next = minWeight
			}
			w.Set(j, k, next)
			dw.Set(j, k, d)
		}
	}
}

// InBounds reports whether every weight lies in [minWeight, maxWeight].
func InBounds(w *mat.Dense, minWeight, maxWeight float64) bool {
	return mat.Min(w) >= minWeight && mat.Max(w) <= maxWeight && !math.IsNaN(mat.Sum(w))
}
