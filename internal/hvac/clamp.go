package hvac

import "math"

// ClampQuantize clamps value into [min, max] and snaps it to the nearest
// multiple of step counted from min. A step of 0 disables quantisation.
// Setpoints use step 1, the sleep timer uses step 10.
func ClampQuantize(value, min, max, step float64) float64 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	if step <= 0 {
		return value
	}
	steps := math.Round((value - min) / step)
	v := min + steps*step
	if v > max {
		v = max
	}
	return v
}
