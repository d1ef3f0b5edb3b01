package expr

import "math"

// toFixed/fromFixed convert between a Q16.16 fixed-point int32 and a
// float64 for the duration of a single math library call.
func toFixed(f float64) int32   { return int32(f * float64(int32(1)<<FixedPointShift)) }
func fromFixed(v int32) float64 { return float64(v) / float64(int32(1)<<FixedPointShift) }

// turnsToRadians converts a fixed-point angle expressed in turns (1.0 turn
// == 360 degrees) to radians — spec.md §4.4 fixes SIN/COS/TAN's argument
// unit as turns, not radians, to keep a full rotation an exact power-of-
// two fixed-point value instead of an irrational one.
func turnsToRadians(turns float64) float64 { return turns * 2 * math.Pi }

func radiansToTurns(rad float64) float64 { return rad / (2 * math.Pi) }

func fixedTrig(arg int32, fn func(float64) float64) int32 {
	rad := turnsToRadians(fromFixed(arg))
	return toFixed(fn(rad))
}

func fixedInverseTrig(arg int32, fn func(float64) float64) int32 {
	rad := fn(fromFixed(arg))
	return toFixed(radiansToTurns(rad))
}

func fixedAtan2(y, x int32) int32 {
	rad := math.Atan2(fromFixed(y), fromFixed(x))
	return toFixed(radiansToTurns(rad))
}

func fixedLog(v, base int32) int32 {
	return toFixed(math.Log(fromFixed(v)) / math.Log(fromFixed(base)))
}

func fixedRound(v int32, fn func(float64) float64) int32 {
	return toFixed(fn(fromFixed(v)))
}
