package trainer

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"synapse-forge/internal/model"
	"synapse-forge/internal/periphery"
)

// hardwareForward computes the activation of every output neuron of l by
// reading its array one input bit-plane at a time. Only rows whose input
// bit is set are driven. When accumulate is set the wire, cell and
// peripheral read costs are added to the layer totals.
func (e *Engine) hardwareForward(l *Layer, dIn []int, accumulate bool) []float64 {
	arr := l.Array
	p := arr.Params
	vdd := l.Tech.Vdd
	vr, pw := p.ReadVoltage, p.ReadPulseWidth
	levels := float64(e.opts.NumInputLevel() - 1)
	nbps := e.opts.NumBitPartialSum
	maxCode := arr.MaxCode()

	out := make([]float64, arr.Cols)
	parts := chunks(e.opts.Workers, arr.Cols, func(lo, hi int) float64 {
		var energy float64
		for j := lo; j < hi; j++ {
			switch {
			case arr.IsAnalog() && p.CMOSAccess:
				energy += arr.Wires.GateCapRow * vdd * vdd * float64(arr.Rows) // all WLs open
			case arr.IsDigitalNVM() && p.CMOSAccess:
				energy += arr.Wires.GateCapRow * vdd * vdd
			case arr.IsDigitalNVM():
				energy += arr.Wires.CapRow * vdd * vdd * float64(arr.Rows-1) // unselected WLs
			}

			var net float64
			for n := 0; n < e.opts.NumBitInput; n++ {
				pSumMax := math.Exp2(float64(n)) / levels * float64(arr.Rows)
				if arr.IsAnalog() {
					var isum, isumMax, inputSum float64
					for k := 0; k < arr.Rows; k++ {
						imax := arr.GetMaxCellReadCurrent(j, k)
						if (dIn[k]>>n)&1 == 1 {
							isum += arr.ReadCell(j, k)
							inputSum += imax
							energy += arr.Wires.CapRow * vr * vr
						}
						isumMax += imax
					}
					energy += isum * vr * pw
					digits := 2*model.CurrentToDigits(isum, isumMax, nbps) - model.CurrentToDigits(inputSum, isumMax, nbps)
					net += model.DigitsToAlgorithm(digits, pSumMax, nbps)
					continue
				}

				var dsum, inputSum int
				for k := 0; k < arr.Rows; k++ {
					if (dIn[k]>>n)&1 == 1 {
						dsum += int(arr.ReadCell(j, k))
						inputSum += maxCode
					}
					energy += arr.ReadEnergyPerSynapse(j, k)
				}
				dsumMax := maxCode * arr.Rows
				net += float64(2*dsum-inputSum) / float64(dsumMax) * pSumMax
			}
			out[j] = model.Sigmoid(net)
		}
		return energy
	})

	if !accumulate {
		return out
	}
	arr.ReadEnergy += floats.Sum(parts)
	e.readPeriphery(l, activeRows(dIn, e.opts.NumBitInput))
	return out
}

// activeRows counts the set input bits over all bit-planes.
func activeRows(dIn []int, numBitInput int) int {
	active := 0
	for n := 0; n < numBitInput; n++ {
		for _, d := range dIn {
			if (d>>n)&1 == 1 {
				active++
			}
		}
	}
	return active
}

// readPeriphery charges the peripheral read cost of one forward pass. Reads
// are grouped so that each batch matches the column multiplexing, and the
// oracle sees the fraction of rows actually driven.
func (e *Engine) readPeriphery(l *Layer, active int) {
	cols := l.Array.Cols
	numBatch := (cols + e.opts.NumColMuxed - 1) / e.opts.NumColMuxed
	l.Sub.ActivityRowRead = float64(active) / float64(l.Array.Rows) / float64(e.opts.NumBitInput)
	for j := 0; j < cols; j += numBatch {
		periphery.ReadBatch(e.sim.Oracle, l.Sub, l.Neuron)
	}
}
