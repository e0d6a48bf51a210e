package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary condenses a trace into the numbers used to compare tunings.
type Summary struct {
	Steps         int     `json:"steps"`
	Arrived       bool    `json:"arrived"`
	ArrivedStep   int     `json:"arrived_step"` // -1 if never
	FinalDistance float64 `json:"final_distance"`

	CrossTrackMean   float64 `json:"cross_track_mean"`
	CrossTrackStd    float64 `json:"cross_track_std"`
	CrossTrackMaxAbs float64 `json:"cross_track_max_abs"`
	HeadingErrorStd  float64 `json:"heading_error_std"`
	MeanAmplitude    float64 `json:"mean_amplitude"`
	SaturatedSteps   int     `json:"saturated_steps"` // rudder at its limit
	Faults           int     `json:"faults"`
}

// Summarize computes the summary of a trace. finalDistance is measured
// after the last integration step; maxSteering is the rudder limit used to
// count saturated steps.
func Summarize(trace []Step, finalDistance, maxSteering float64) Summary {
	s := Summary{Steps: len(trace), ArrivedStep: -1, FinalDistance: finalDistance}
	if len(trace) == 0 {
		return s
	}

	cross := make([]float64, len(trace))
	heading := make([]float64, len(trace))
	amp := make([]float64, len(trace))
	for i, st := range trace {
		cross[i] = st.CrossTrack
		heading[i] = st.Output.HeadingError
		amp[i] = st.Output.TailAmplitude
		if maxSteering > 0 && math.Abs(st.Output.RudderAngle) >= maxSteering-1e-12 {
			s.SaturatedSteps++
		}
		if st.Output.Arrived && s.ArrivedStep < 0 {
			s.Arrived = true
			s.ArrivedStep = i
		}
		if st.Output.Fault {
			s.Faults++
		}
	}

	s.CrossTrackMean, s.CrossTrackStd = meanStdDev(cross)
	s.CrossTrackMaxAbs = floats.Norm(cross, math.Inf(1))
	_, s.HeadingErrorStd = meanStdDev(heading)
	s.MeanAmplitude = stat.Mean(amp, nil)
	return s
}

// meanStdDev is stat.MeanStdDev with a zero deviation for a single sample.
func meanStdDev(xs []float64) (mean, std float64) {
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// Distances extracts the distance-to-destination series of a trace.
func Distances(trace []Step) []float64 {
	out := make([]float64, len(trace))
	for i, st := range trace {
		out[i] = st.Distance
	}
	return out
}

// WindowMeans splits xs into consecutive windows of n samples and returns
// the mean of each. A trailing partial window is dropped.
func WindowMeans(xs []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, 0, len(xs)/n)
	for i := 0; i+n <= len(xs); i += n {
		out = append(out, stat.Mean(xs[i:i+n], nil))
	}
	return out
}
