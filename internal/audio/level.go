package audio

import "math"

// Level maps a chunk of samples to 0-100 using mean absolute amplitude / 100.
func Level(samples []int16) int {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	level := int(sum / int64(len(samples)) / 100)
	if level > 100 {
		return 100
	}
	return level
}

// RMS is the root-mean-square energy of the samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
