package trainer

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"synapse-forge/internal/periphery"
)

// Policy picks the cells a PCM maintenance tick refreshes on top of the
// ones that crossed the conductance threshold.
type Policy int

const (
	// PolicyThreshold refreshes only saturated cells.
	PolicyThreshold Policy = iota
	// PolicyLine refreshes a random set of neuron lines.
	PolicyLine
	// PolicySporadic refreshes each cell with a fixed probability.
	PolicySporadic
	// PolicySequential walks the neuron lines round-robin.
	PolicySequential
)

func (p Policy) String() string {
	switch p {
	case PolicyThreshold:
		return "threshold"
	case PolicyLine:
		return "line"
	case PolicySporadic:
		return "sporadic"
	case PolicySequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// UnmarshalText lets a Policy be written by name in YAML configs.
func (p *Policy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "threshold", "":
		*p = PolicyThreshold
	case "line":
		*p = PolicyLine
	case "sporadic":
		*p = PolicySporadic
	case "sequential":
		*p = PolicySequential
	default:
		return errors.Errorf("trainer: unknown maintenance policy %q", string(text))
	}
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Maintenance schedules the PCM select, erase and set cycle.
type Maintenance struct {
	Policy            Policy  `yaml:"policy"`
	NumImagesPerReset int     `yaml:"num_images_per_reset"`
	NumRefHidden      int     `yaml:"num_ref_hidden"` // lines per tick, hidden layer
	NumRefOutput      int     `yaml:"num_ref_output"` // lines per tick, output layer
	ActDeviceIH       float64 `yaml:"act_device_ih"`  // per-cell probability, hidden layer
	ActDeviceHO       float64 `yaml:"act_device_ho"`  // per-cell probability, output layer
}

// sequentialLines returns the count neuron lines refreshed by the
// batchNum-th tick out of n lines.
func sequentialLines(batchNum, count, n int) []int {
	lines := make([]int, count)
	for i := range lines {
		lines[i] = (batchNum*count + i) % n
	}
	return lines
}

// due reports whether the last processed sample closes a maintenance
// interval on a PCM run.
func (e *Engine) due() bool {
	m := e.opts.Maintenance
	if !e.opts.hardwareInTraining() || m.NumImagesPerReset <= 0 {
		return false
	}
	if !e.sim.Hidden.Array.IsPCM() || !e.sim.Output.Array.IsPCM() {
		return false
	}
	return e.processed > 0 && e.processed%m.NumImagesPerReset == 0
}

// maintain runs one select, erase and set cycle over both layers when due.
// Ticks count processed samples across epochs, so the sequential policy
// keeps walking the lines from one epoch to the next. It reports whether
// a cycle ran.
func (e *Engine) maintain() bool {
	if !e.due() {
		return false
	}
	m := e.opts.Maintenance
	batchNum := e.processed / m.NumImagesPerReset

	hidden := e.selectCells(e.sim.Hidden, m.NumRefHidden, m.ActDeviceIH, batchNum)
	output := e.selectCells(e.sim.Output, m.NumRefOutput, m.ActDeviceHO, batchNum)

	e.erase(e.sim.Hidden, hidden)
	e.erase(e.sim.Output, output)

	e.restore(e.sim.Hidden, hidden, e.net.Weight1)
	e.restore(e.sim.Output, output, e.net.Weight2)
	return true
}

// selectCells returns the eligibility grid of l, indexed [col][row]. A
// cell is eligible when the policy schedules it or when it is saturated;
// saturation is re-evaluated for every cell on every tick. The pass also
// reads the whole array once, which is charged as a full-activity read.
func (e *Engine) selectCells(l *Layer, count int, prob float64, batchNum int) [][]bool {
	arr := l.Array
	eligible := make([][]bool, arr.Cols)
	for j := range eligible {
		eligible[j] = make([]bool, arr.Rows)
	}

	markLines := func(lines []int) {
		for _, j := range lines {
			for k := range eligible[j] {
				eligible[j][k] = true
			}
		}
	}
	switch e.opts.Maintenance.Policy {
	case PolicyLine:
		markLines(e.rng.Perm(arr.Cols)[:count])
	case PolicySporadic:
		for j := range eligible {
			for k := range eligible[j] {
				eligible[j][k] = e.rng.Float64() < prob
			}
		}
	case PolicySequential:
		markLines(sequentialLines(batchNum, count, arr.Cols))
	}

	for j := range eligible {
		for k := range eligible[j] {
			c := arr.Analog(j, k)
			c.Saturated = c.AboveThreshold()
			eligible[j][k] = eligible[j][k] || c.Saturated
		}
	}

	e.scan(l)
	return eligible
}

// scan reads every cell of l once per input bit-plane.
func (e *Engine) scan(l *Layer) {
	arr := l.Array
	p := arr.Params
	vdd := l.Tech.Vdd
	parts := chunks(e.opts.Workers, arr.Cols, func(lo, hi int) float64 {
		var energy float64
		for j := lo; j < hi; j++ {
			if p.CMOSAccess {
				energy += arr.Wires.CapRow * vdd * vdd * float64(arr.Rows)
			}
			for n := 0; n < e.opts.NumBitInput; n++ {
				var isum float64
				for k := 0; k < arr.Rows; k++ {
					isum += arr.ReadCell(j, k)
				}
				energy += isum * p.ReadVoltage * p.ReadPulseWidth
			}
		}
		return energy
	})
	arr.ReadEnergy += floats.Sum(parts)
	l.Sub.ActivityRowRead = 1
	periphery.ReadBatch(e.sim.Oracle, l.Sub, l.Neuron)
}

// erase RESETs every eligible cell of l. Each row is one erase operation
// whose latency is the slowest RESET in it. The weight matrices are left
// untouched so the set phase can restore them.
func (e *Engine) erase(l *Layer, eligible [][]bool) {
	arr := l.Array
	p := arr.Params
	report := e.opts.WriteEnergyReport
	numBatch := (arr.Cols + e.opts.NumWriteColMuxed - 1) / e.opts.NumWriteColMuxed
	vReset := p.ResetVoltage

	parts := chunks(e.opts.Workers, arr.Rows, func(lo, hi int) []rowWrite {
		rows := make([]rowWrite, 0, hi-lo)
		for k := lo; k < hi; k++ {
			var r rowWrite
			var maxLat float64
			for j := 0; j < arr.Cols; j++ {
				if !eligible[j][k] {
					continue
				}
				arr.EraseCell(j, k, e.opts.MaxWeight, e.opts.MinWeight)
				c := arr.Analog(j, k)
				r.cells++
				maxLat = math.Max(maxLat, c.WriteLatencyLTP)
				if report {
					c.EraseEnergyCalculation(arr.Wires.CapCol)
					r.energy += c.WriteEnergy
					r.energy += l.lineEnergy(vReset, vReset, numBatch)
				}
			}
			if r.cells == 0 {
				rows = append(rows, r)
				continue
			}
			r.ops = 1
			r.latency = maxLat
			r.numWritePulse = 1
			r.writeVoltage, r.hasVoltage = vReset, true
			if report && arr.CrossPoint() {
				for j := 0; j < arr.Cols; j++ {
					if !eligible[j][k] {
						r.energy += 2 * (vReset / 2) * (vReset / 2) * arr.Analog(j, k).Conductance() * maxLat
					}
				}
			}
			rows = append(rows, r)
		}
		return rows
	})

	e.commitWrites(l, parts)
}

// restore is the Set phase: it re-programs every eligible cell from the
// erased mid-range state back to its pre-erase weight, clears its
// saturation flag and re-syncs w.
func (e *Engine) restore(l *Layer, eligible [][]bool, w *mat.Dense) {
	arr := l.Array
	report := e.opts.WriteEnergyReport
	maxW, minW := e.opts.MaxWeight, e.opts.MinWeight
	mid := (maxW + minW) / 2
	numBatch := (arr.Cols + e.opts.NumWriteColMuxed - 1) / e.opts.NumWriteColMuxed
	vLTP, vLTD := l.writeVoltages()

	parts := chunks(e.opts.Workers, arr.Rows, func(lo, hi int) []rowWrite {
		rows := make([]rowWrite, 0, hi-lo)
		for k := lo; k < hi; k++ {
			var r rowWrite
			var maxLTP, maxLTD float64
			for j := 0; j < arr.Cols; j++ {
				if !eligible[j][k] {
					continue
				}
				c := arr.Analog(j, k)
				arr.WriteCell(j, k, w.At(j, k)-mid, maxW, minW, false)
				c.Saturated = false
				r.cells++
				maxLTP = math.Max(maxLTP, c.WriteLatencyLTP)
				maxLTD = math.Max(maxLTD, c.WriteLatencyLTD)
				if report {
					c.WriteVoltageLTP, c.WriteVoltageLTD = vLTP, vLTD
					c.WriteEnergyCalculation(arr.Wires.CapCol)
					r.energy += c.WriteEnergy
					r.energy += l.lineEnergy(vLTP, vLTD, numBatch)
				}
				w.Set(j, k, arr.ConductanceToWeight(j, k, maxW, minW))
			}
			if r.cells > 0 {
				r.ops = 1
				r.latency = maxLTP + maxLTD
				r.pulseStats(l, k, report, eligible)
			}
			rows = append(rows, r)
		}
		return rows
	})

	e.commitWrites(l, parts)
}
