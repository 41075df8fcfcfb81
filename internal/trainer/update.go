package trainer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"synapse-forge/internal/model"
)

// rowWrite is what one array row contributes to the layer totals after a
// write pass. Rows are reduced serially, in row order, once every worker
// is done.
type rowWrite struct {
	energy  float64 // array-level write energy
	latency float64 // summed batch latencies of analog cells
	ops     int     // write batches with any change
	cells   int     // digital cells flipped, or cells erased or set

	numWritePulse int
	writeVoltage  float64
	hasVoltage    bool
}

func (r rowWrite) cellsPerOp() float64 {
	if r.ops == 0 {
		return 0
	}
	return float64(r.cells) / float64(r.ops)
}

// update applies one weight update to layer l. w and dw are cols x rows,
// s holds one delta per column and in one activation per row.
func (e *Engine) update(l *Layer, w, dw *mat.Dense, s, in []float64, alpha float64) {
	if e.opts.UseHardwareInTrainingWU {
		e.hardwareUpdate(l, w, dw, s, in, alpha)
		return
	}
	model.Update(w, dw, s, in, alpha, e.opts.MinWeight, e.opts.MaxWeight)
	if e.opts.UseHardwareInTrainingFF || e.opts.UseHardwareInTestingFF {
		e.mirror(l, dw)
	}
}

// mirror replays an algorithmic update on the array so hardware reads see
// it. The weight matrix stays authoritative.
func (e *Engine) mirror(l *Layer, dw *mat.Dense) {
	arr := l.Array
	chunks(e.opts.Workers, arr.Rows, func(lo, hi int) struct{} {
		for k := lo; k < hi; k++ {
			for j := 0; j < arr.Cols; j++ {
				arr.WriteCell(j, k, dw.At(j, k), e.opts.MaxWeight, e.opts.MinWeight, false)
			}
		}
		return struct{}{}
	})
}

// writeVoltages returns the LTP and LTD voltages used for line charging:
// the staircase averages under non-identical pulses, else the fixed ones.
func (l *Layer) writeVoltages() (vLTP, vLTD float64) {
	p := l.Array.Params
	if l.Array.IsAnalog() && p.NonIdenticalPulse {
		return p.AverageVoltageLTP(), p.AverageVoltageLTD()
	}
	return p.WriteVoltageLTP, p.WriteVoltageLTD
}

// lineEnergy is the wire charging of one batch write that selects one row
// and numBatch synapse columns, for an LTP phase at vLTP and an LTD phase
// at vLTD. Cross-point arrays bias unselected lines at half voltage.
func (l *Layer) lineEnergy(vLTP, vLTD float64, numBatch int) float64 {
	arr := l.Array
	w := arr.Wires
	vdd := l.Tech.Vdd
	rows := float64(arr.Rows - 1)
	cols := float64(arr.Cols - numBatch)
	if arr.IsDigitalNVM() {
		cols *= float64(arr.CellsPerSynapse)
	}
	half := func(v float64) float64 { return v / 2 * v / 2 }

	switch {
	case !arr.IsAnalog() && !arr.IsDigitalNVM():
		return 0
	case arr.Params.CMOSAccess && arr.IsAnalog():
		return w.GateCapRow*vdd*vdd*2 + w.CapRow*vLTP*vLTP + w.CapCol*vLTP*vLTP*cols
	case arr.Params.CMOSAccess:
		return w.GateCapRow * vdd * vdd * 2
	}
	return w.CapRow*vLTP*vLTP +
		w.CapRow*half(vLTP)*rows + w.CapCol*half(vLTP)*cols +
		w.CapRow*half(vLTD)*rows + w.CapCol*half(vLTD)*cols
}

// hardwareUpdate writes the update into the array in column batches sized
// by the write multiplexing, one row per task, and re-reads every written
// synapse into w. dw receives the realized change.
func (e *Engine) hardwareUpdate(l *Layer, w, dw *mat.Dense, s, in []float64, alpha float64) {
	arr := l.Array
	p := arr.Params
	report := e.opts.WriteEnergyReport
	maxW, minW := e.opts.MaxWeight, e.opts.MinWeight
	numBatch := (arr.Cols + e.opts.NumWriteColMuxed - 1) / e.opts.NumWriteColMuxed
	vLTP, vLTD := l.writeVoltages()
	avgLTP, avgLTD := p.AverageVoltageLTP(), p.AverageVoltageLTD()

	var snapshot [][]float64
	if report && arr.CrossPoint() {
		snapshot = arr.HalfSelectSnapshot()
	}
	halfSelect := func(g, maxLTP, maxLTD float64) float64 {
		return vLTP/2*vLTP/2*g*maxLTP + vLTD/2*vLTD/2*g*maxLTD
	}

	parts := chunks(e.opts.Workers, arr.Rows, func(lo, hi int) []rowWrite {
		rows := make([]rowWrite, 0, hi-lo)
		for k := lo; k < hi; k++ {
			var r rowWrite
			for start := 0; start < arr.Cols; start += numBatch {
				end := start + numBatch
				if end > arr.Cols {
					end = arr.Cols
				}

				var maxLTP, maxLTD float64
				changed := false
				for j := start; j < end; j++ {
					before := w.At(j, k)
					arr.WriteCell(j, k, -alpha*s[j]*in[k], maxW, minW, true)
					after := arr.ConductanceToWeight(j, k, maxW, minW)
					w.Set(j, k, after)
					dw.Set(j, k, after-before)
					if arr.IsAnalog() {
						c := arr.Analog(j, k)
						changed = changed || c.NumPulse != 0
						maxLTP = math.Max(maxLTP, c.WriteLatencyLTP)
						maxLTD = math.Max(maxLTD, c.WriteLatencyLTD)
					} else {
						changed = changed || arr.WeightChanged(j, k)
					}
				}
				if changed {
					r.ops++
				}

				for j := start; j < end; j++ {
					switch {
					case arr.IsAnalog():
						c := arr.Analog(j, k)
						c.WriteLatencyLTP, c.WriteLatencyLTD = maxLTP, maxLTD
						if !report || !changed {
							continue
						}
						if p.NonIdenticalPulse {
							c.WriteVoltageLTP, c.WriteVoltageLTD = avgLTP, avgLTD
							switch {
							case c.NumPulse > 0:
								c.WriteVoltageLTP = math.Sqrt(c.WriteVoltageSquareSum / float64(c.NumPulse))
							case c.NumPulse < 0:
								c.WriteVoltageLTD = math.Sqrt(c.WriteVoltageSquareSum / float64(-c.NumPulse))
							}
						}
						c.WriteEnergyCalculation(arr.Wires.CapCol)
						r.energy += c.WriteEnergy
					case arr.IsDigitalNVM():
						if !report || !arr.WeightChanged(j, k) {
							continue
						}
						for n := 0; n < arr.CellsPerSynapse; n++ {
							bit := arr.DigitalBit(j, k, n)
							r.energy += bit.WriteEnergy
							if bit.Bit != bit.BitPrev {
								r.cells++
							}
						}
					default:
						if !report || !arr.WeightChanged(j, k) {
							continue
						}
						for n := 0; n < arr.CellsPerSynapse; n++ {
							r.energy += arr.SRAMBit(j, k, n).WriteEnergy
						}
					}
				}

				if arr.IsAnalog() {
					r.latency += maxLTP + maxLTD
				}
				if report && changed {
					r.energy += l.lineEnergy(vLTP, vLTD, numBatch)
				}

				// Half-selected cells share the selected row or the selected
				// columns. Other rows belong to other workers, so they are
				// priced from the snapshot.
				if snapshot != nil && (arr.IsAnalog() || changed) {
					for j := 0; j < arr.Cols; j++ {
						if j >= start && j < end {
							continue
						}
						r.energy += halfSelect(arr.HalfSelectConductance(j, k), maxLTP, maxLTD)
					}
					for kk := 0; kk < arr.Rows; kk++ {
						if kk == k {
							continue
						}
						for j := start; j < end; j++ {
							r.energy += halfSelect(snapshot[j][kk], maxLTP, maxLTD)
						}
					}
				}
			}

			if arr.IsAnalog() {
				r.pulseStats(l, k, report, nil)
			}
			rows = append(rows, r)
		}
		return rows
	})

	e.commitWrites(l, parts)
}

// pulseStats fills the average pulse count of row k and, under the
// non-identical scheme, its RMS write voltage. A non-nil only restricts
// the statistics to the cells written in this pass.
func (r *rowWrite) pulseStats(l *Layer, k int, report bool, only [][]bool) {
	arr := l.Array
	sumPulse, written := 0, 0
	var sqSum float64
	for j := 0; j < arr.Cols; j++ {
		if only != nil && !only[j][k] {
			continue
		}
		written++
		c := arr.Analog(j, k)
		if c.NumPulse < 0 {
			sumPulse -= c.NumPulse
		} else {
			sumPulse += c.NumPulse
		}
		sqSum += c.WriteVoltageSquareSum
	}
	if written > 0 {
		r.numWritePulse = sumPulse / written
	}
	if report && arr.Params.NonIdenticalPulse {
		r.hasVoltage = true
		if sumPulse > 0 {
			r.writeVoltage = math.Sqrt(sqSum / float64(sumPulse))
		}
	}
}

// commitWrites reduces per-row results into the layer totals in row order.
// The oracle reads the sub-array state set for each row, so this part is
// never run concurrently.
func (e *Engine) commitWrites(l *Layer, parts [][]rowWrite) {
	var arrayEnergy, periphEnergy, analogLatency float64
	ops := 0
	for _, part := range parts {
		for _, r := range part {
			arrayEnergy += r.energy
			analogLatency += r.latency
			ops += r.ops
			l.Sub.NumWritePulse = r.numWritePulse
			if r.hasVoltage {
				l.Sub.WriteVoltage = r.writeVoltage
			}
			periphEnergy += e.sim.Oracle.SubArrayWriteEnergy(l.Sub, r.ops, r.cellsPerOp())
		}
	}
	l.Array.WriteEnergy += arrayEnergy
	l.Sub.WriteDynamicEnergy += periphEnergy
	numWriteOperation := float64(ops) / float64(l.Array.Rows)
	l.Sub.WriteLatency += e.sim.Oracle.SubArrayWriteLatency(l.Sub, numWriteOperation, analogLatency)
}
