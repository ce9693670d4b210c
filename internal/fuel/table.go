package fuel

const (
	nRPMBins  = 8
	nLoadBins = 6
)

var rpmBreakpoints = [nRPMBins]uint16{500, 1000, 2000, 3000, 4000, 5000, 6000, 7000}

var loadBreakpoints = [nLoadBins]uint8{0, 20, 40, 60, 80, 100} // %

// mapTable holds manifold absolute pressure in Pa, indexed [rpm][load].
var mapTable = [nRPMBins][nLoadBins]uint32{
	{30000, 35000, 40000, 45000, 50000, 55000},   // 500 (idle/stall)
	{30000, 35000, 45000, 50000, 55000, 60000},   // 1000
	{30000, 40000, 50000, 60000, 70000, 80000},   // 2000
	{30000, 45000, 55000, 65000, 80000, 90000},   // 3000
	{30000, 50000, 60000, 75000, 90000, 100000},  // 4000
	{30000, 50000, 65000, 80000, 95000, 100000},  // 5000
	{30000, 50000, 65000, 85000, 100000, 100000}, // 6000
	{30000, 50000, 70000, 90000, 100000, 100000}, // 7000
}

// ManifoldPressure returns the interpolated manifold absolute pressure in Pa
// for an engine load [%] and RPM. Inputs outside the table are clamped to its
// edges, so the result always lies between the table's min and max.
//
// Interpolation weights are fixed-point, scaled by 1000.
func ManifoldPressure(load uint8, rpm uint16) uint32 {
	if rpm < rpmBreakpoints[0] {
		rpm = rpmBreakpoints[0]
	}
	if rpm > rpmBreakpoints[nRPMBins-1] {
		rpm = rpmBreakpoints[nRPMBins-1]
	}
	if load < loadBreakpoints[0] {
		load = loadBreakpoints[0]
	}
	if load > loadBreakpoints[nLoadBins-1] {
		load = loadBreakpoints[nLoadBins-1]
	}

	ix := 0
	for ix < nLoadBins-2 && load > loadBreakpoints[ix+1] {
		ix++
	}
	x1, x2 := int64(loadBreakpoints[ix]), int64(loadBreakpoints[ix+1])
	fx := weight(int64(load), x1, x2)

	iy := 0
	for iy < nRPMBins-2 && rpm > rpmBreakpoints[iy+1] {
		iy++
	}
	y1, y2 := int64(rpmBreakpoints[iy]), int64(rpmBreakpoints[iy+1])
	fy := weight(int64(rpm), y1, y2)

	m11 := int64(mapTable[iy][ix])
	m12 := int64(mapTable[iy][ix+1])
	m21 := int64(mapTable[iy+1][ix])
	m22 := int64(mapTable[iy+1][ix+1])

	m1 := m11 + (m12-m11)*fx/1000
	m2 := m21 + (m22-m21)*fx/1000
	return uint32(m1 + (m2-m1)*fy/1000)
}

// weight returns the position of v between lo and hi, scaled to 0..1000.
func weight(v, lo, hi int64) int64 {
	d := hi - lo
	if d == 0 {
		return 0
	}
	return (v - lo) * 1000 / d
}
