// Package crossbar models a synaptic crossbar array: a grid of device cells
// addressed by synapse column (output neuron) and row (input line), plus
// the array-level wire parasitics and running read/write energy totals.
package crossbar

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"synapse-forge/internal/device"
)

// Wires holds the per-line parasitic capacitances of an array.
type Wires struct {
	CapRow     float64 `yaml:"cap_row"`      // F, one word/bit line along a row
	CapCol     float64 `yaml:"cap_col"`      // F, one line along a column
	GateCapRow float64 `yaml:"gate_cap_row"` // F, access-transistor gates on a row (1T1R)
}

// Array owns every cell of one layer. Cells are stored in a single typed
// grid chosen at construction, so hot loops never inspect cell types.
//
// Multi-bit digital synapses occupy CellsPerSynapse adjacent columns; bit n
// (LSB first) of synapse column c lives at column (c+1)*CellsPerSynapse-(n+1).
type Array struct {
	Kind            device.Kind
	Params          *device.Params
	Cols            int
	Rows            int
	CellsPerSynapse int
	Wires           Wires

	analog  [][]*device.AnalogNVM
	digital [][]*device.DigitalNVM
	sram    [][]*device.SRAM

	weightChange [][]bool

	ReadEnergy  float64
	WriteEnergy float64
}

// New allocates a cols x rows array of cells described by p.
func New(cols, rows, cellsPerSynapse int, p device.Params, wires Wires) (*Array, error) {
	if cols <= 0 || rows <= 0 {
		return nil, errors.Errorf("crossbar: array must be at least 1x1 (got %dx%d)", cols, rows)
	}
	if p.Kind == device.KindAnalogNVM {
		cellsPerSynapse = 1
	}
	if cellsPerSynapse <= 0 {
		return nil, errors.Errorf("crossbar: cells per synapse must be > 0 (got %d)", cellsPerSynapse)
	}
	if cellsPerSynapse > 30 {
		return nil, errors.Errorf("crossbar: cells per synapse too large (%d)", cellsPerSynapse)
	}

	params := p
	a := &Array{
		Kind:            p.Kind,
		Params:          &params,
		Cols:            cols,
		Rows:            rows,
		CellsPerSynapse: cellsPerSynapse,
		Wires:           wires,
		weightChange:    make([][]bool, cols),
	}
	for c := range a.weightChange {
		a.weightChange[c] = make([]bool, rows)
	}

	switch p.Kind {
	case device.KindAnalogNVM:
		a.analog = make([][]*device.AnalogNVM, cols)
		for c := range a.analog {
			a.analog[c] = make([]*device.AnalogNVM, rows)
			for r := range a.analog[c] {
				a.analog[c][r] = device.NewAnalogNVM(a.Params)
			}
		}
	case device.KindDigitalNVM:
		a.digital = make([][]*device.DigitalNVM, cols*cellsPerSynapse)
		for c := range a.digital {
			a.digital[c] = make([]*device.DigitalNVM, rows)
			for r := range a.digital[c] {
				a.digital[c][r] = device.NewDigitalNVM(a.Params)
			}
		}
	case device.KindSRAM:
		a.sram = make([][]*device.SRAM, cols*cellsPerSynapse)
		for c := range a.sram {
			a.sram[c] = make([]*device.SRAM, rows)
			for r := range a.sram[c] {
				a.sram[c][r] = device.NewSRAM(a.Params)
			}
		}
	default:
		return nil, errors.Errorf("crossbar: unsupported device kind %v", p.Kind)
	}
	return a, nil
}

// IsAnalog reports whether the array holds analog NVM cells.
func (a *Array) IsAnalog() bool { return a.Kind == device.KindAnalogNVM }

// IsDigitalNVM reports whether the array holds digital NVM cells.
func (a *Array) IsDigitalNVM() bool { return a.Kind == device.KindDigitalNVM }

// IsPCM reports whether the array holds phase-change analog cells.
func (a *Array) IsPCM() bool { return a.IsAnalog() && a.Params.PCM }

// CrossPoint reports whether the array has no access transistors.
func (a *Array) CrossPoint() bool { return a.Kind != device.KindSRAM && !a.Params.CMOSAccess }

// MaxCode is the largest integer a digital synapse can hold.
func (a *Array) MaxCode() int { return 1<<a.CellsPerSynapse - 1 }

func (a *Array) check(col, row int) {
	if col < 0 || col >= a.Cols || row < 0 || row >= a.Rows {
		panic(fmt.Sprintf("crossbar: cell (%d,%d) outside %dx%d array", col, row, a.Cols, a.Rows))
	}
}

// Analog returns the analog cell at (col,row). It panics on non-analog arrays.
func (a *Array) Analog(col, row int) *device.AnalogNVM {
	a.check(col, row)
	return a.analog[col][row]
}

// DigitalBit returns bit n (0 is LSB) of the digital synapse at (col,row).
func (a *Array) DigitalBit(col, row, n int) *device.DigitalNVM {
	a.check(col, row)
	return a.digital[a.bitColumn(col, n)][row]
}

// SRAMBit returns bit n (0 is LSB) of the SRAM synapse at (col,row).
func (a *Array) SRAMBit(col, row, n int) *device.SRAM {
	a.check(col, row)
	return a.sram[a.bitColumn(col, n)][row]
}

func (a *Array) bitColumn(col, n int) int {
	return (col+1)*a.CellsPerSynapse - (n + 1)
}

// WeightChanged reports whether the last write to a digital or SRAM
// synapse changed its stored code.
func (a *Array) WeightChanged(col, row int) bool {
	return a.weightChange[col][row]
}

func (a *Array) code(col, row int) int {
	code := 0
	for n := 0; n < a.CellsPerSynapse; n++ {
		var bit int
		if a.IsDigitalNVM() {
			bit = a.digital[a.bitColumn(col, n)][row].Bit
		} else {
			bit = a.sram[a.bitColumn(col, n)][row].Bit
		}
		code |= bit << n
	}
	return code
}

func (a *Array) setCode(col, row, code int) {
	for n := 0; n < a.CellsPerSynapse; n++ {
		bit := (code >> n) & 1
		if a.IsDigitalNVM() {
			a.digital[a.bitColumn(col, n)][row].Write(bit)
		} else {
			a.sram[a.bitColumn(col, n)][row].Write(bit)
		}
	}
}

// ReadCell returns the read current of an analog cell or the stored code
// of a digital synapse.
func (a *Array) ReadCell(col, row int) float64 {
	a.check(col, row)
	if a.IsAnalog() {
		return a.analog[col][row].ReadCurrent()
	}
	return float64(a.code(col, row))
}

// GetMaxCellReadCurrent returns the current a fully potentiated cell at
// (col,row) would draw, or the maximum code for digital synapses.
func (a *Array) GetMaxCellReadCurrent(col, row int) float64 {
	a.check(col, row)
	if a.IsAnalog() {
		return a.analog[col][row].MaxReadCurrent()
	}
	return float64(a.MaxCode())
}

// ConductanceToWeight maps the device state at (col,row) onto
// [minWeight, maxWeight].
func (a *Array) ConductanceToWeight(col, row int, maxWeight, minWeight float64) float64 {
	a.check(col, row)
	var norm float64
	if a.IsAnalog() {
		norm = a.analog[col][row].Normalized()
	} else {
		norm = float64(a.code(col, row)) / float64(a.MaxCode())
	}
	return minWeight + norm*(maxWeight-minWeight)
}

// WriteCell asks the device to move the weight at (col,row) by deltaWeight.
// Requests that would leave [minWeight, maxWeight] are clamped: only the
// realized change reaches the device. regular selects a pulse-quantized
// training write; otherwise the change is applied proportionally.
func (a *Array) WriteCell(col, row int, deltaWeight, maxWeight, minWeight float64, regular bool) {
	a.check(col, row)
	span := maxWeight - minWeight
	if span <= 0 {
		return
	}
	current := a.ConductanceToWeight(col, row, maxWeight, minWeight)
	target := math.Max(minWeight, math.Min(maxWeight, current+deltaWeight))
	realized := target - current

	if a.IsAnalog() {
		a.analog[col][row].Write(realized/span, regular)
		return
	}

	prev := a.code(col, row)
	next := int(math.Round((target - minWeight) / span * float64(a.MaxCode())))
	if next < 0 {
		next = 0
	} else if next > a.MaxCode() {
		next = a.MaxCode()
	}
	a.setCode(col, row, next)
	a.weightChange[col][row] = next != prev
}

// EraseCell RESETs the analog cell at (col,row). It is a no-op on
// non-analog arrays.
func (a *Array) EraseCell(col, row int, maxWeight, minWeight float64) {
	a.check(col, row)
	if !a.IsAnalog() {
		return
	}
	a.analog[col][row].Erase()
}

// Initialize programs every synapse to weight(col,row) without charging
// energy.
func (a *Array) Initialize(weight func(col, row int) float64, maxWeight, minWeight float64) {
	span := maxWeight - minWeight
	for c := 0; c < a.Cols; c++ {
		for r := 0; r < a.Rows; r++ {
			norm := (weight(c, r) - minWeight) / span
			norm = math.Max(0, math.Min(1, norm))
			if a.IsAnalog() {
				a.analog[c][r].SetNormalized(norm)
				continue
			}
			a.setCode(c, r, int(math.Round(norm*float64(a.MaxCode()))))
			for n := 0; n < a.CellsPerSynapse; n++ {
				if a.IsDigitalNVM() {
					cell := a.digital[a.bitColumn(c, n)][r]
					cell.BitPrev, cell.WriteEnergy = cell.Bit, 0
				} else {
					cell := a.sram[a.bitColumn(c, n)][r]
					cell.BitPrev, cell.WriteEnergy = cell.Bit, 0
				}
			}
			a.weightChange[c][r] = false
		}
	}
}

// HalfSelectConductance returns, per synapse, the summed conductance of its
// cells at half the write voltage. SRAM synapses report zero.
func (a *Array) HalfSelectConductance(col, row int) float64 {
	a.check(col, row)
	switch a.Kind {
	case device.KindAnalogNVM:
		return a.analog[col][row].HalfSelectConductance()
	case device.KindDigitalNVM:
		sum := 0.0
		for n := 0; n < a.CellsPerSynapse; n++ {
			sum += a.digital[a.bitColumn(col, n)][row].HalfSelectConductance()
		}
		return sum
	}
	return 0
}

// HalfSelectSnapshot copies HalfSelectConductance for the whole array so
// that parallel writers can charge half-select leakage on rows owned by
// other workers without reading cells while they are being written.
func (a *Array) HalfSelectSnapshot() [][]float64 {
	snap := make([][]float64, a.Cols)
	for c := range snap {
		snap[c] = make([]float64, a.Rows)
		for r := range snap[c] {
			snap[c][r] = a.HalfSelectConductance(c, r)
		}
	}
	return snap
}

// ReadEnergyPerSynapse sums the read energy of every bit cell of the
// synapse at (col,row). Analog synapses report zero; their read energy
// follows from the cell current.
func (a *Array) ReadEnergyPerSynapse(col, row int) float64 {
	a.check(col, row)
	var sum float64
	for n := 0; n < a.CellsPerSynapse; n++ {
		switch a.Kind {
		case device.KindDigitalNVM:
			sum += a.digital[a.bitColumn(col, n)][row].ReadEnergy()
		case device.KindSRAM:
			sum += a.sram[a.bitColumn(col, n)][row].ReadEnergy()
		}
	}
	return sum
}
