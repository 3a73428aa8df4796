package audio

import "math"

// RMS returns the root mean square level of samples normalised to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level returns the RMS level of the frame.
func (f Frame) Level() float64 {
	return RMS(f.Mono)
}
