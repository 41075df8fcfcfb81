package metrics

import (
	"fmt"

	"github.com/pkg/errors"
)

// Energy holds the running hardware totals of one layer. Energies are in
// joules and latencies in seconds.
type Energy struct {
	ArrayRead      float64
	ArrayWrite     float64
	PeripheryRead  float64
	PeripheryWrite float64
	ReadLatency    float64
	WriteLatency   float64
}

// Total is the sum of every energy term.
func (e Energy) Total() float64 {
	return e.ArrayRead + e.ArrayWrite + e.PeripheryRead + e.PeripheryWrite
}

func (e Energy) String() string {
	return fmt.Sprintf("array_read=%.4g array_write=%.4g periph_read=%.4g periph_write=%.4g read_lat=%.4g write_lat=%.4g",
		e.ArrayRead, e.ArrayWrite, e.PeripheryRead, e.PeripheryWrite, e.ReadLatency, e.WriteLatency)
}

func (e Energy) fields() []float64 {
	return []float64{e.ArrayRead, e.ArrayWrite, e.PeripheryRead, e.PeripheryWrite, e.ReadLatency, e.WriteLatency}
}

// ErrNonMonotone is returned when a layer total shrinks between observations.
var ErrNonMonotone = errors.New("metrics: accumulator decreased")

// Ledger tracks per-layer totals across a run and checks that they never
// decrease.
type Ledger struct {
	layers []string
	last   map[string]Energy
}

// NewLedger returns a ledger for the named layers, in reporting order.
func NewLedger(layers ...string) *Ledger {
	l := &Ledger{layers: layers, last: make(map[string]Energy, len(layers))}
	for _, name := range layers {
		l.last[name] = Energy{}
	}
	return l
}

// Observe records the current totals of a layer. It fails if any total is
// below the previously observed value.
func (l *Ledger) Observe(layer string, e Energy) error {
	prev, ok := l.last[layer]
	if !ok {
		return errors.Errorf("metrics: unknown layer %q", layer)
	}
	pf, cf := prev.fields(), e.fields()
	for i := range cf {
		if cf[i] < pf[i] {
			return errors.Wrapf(ErrNonMonotone, "layer %s field %d: %g -> %g", layer, i, pf[i], cf[i])
		}
	}
	l.last[layer] = e
	return nil
}

// Layer returns the last observed totals of a layer.
func (l *Ledger) Layer(name string) Energy {
	return l.last[name]
}

// Layers returns the layer names in reporting order.
func (l *Ledger) Layers() []string {
	return l.layers
}

// Total sums the energy of every layer.
func (l *Ledger) Total() float64 {
	var sum float64
	for _, name := range l.layers {
		sum += l.last[name].Total()
	}
	return sum
}
