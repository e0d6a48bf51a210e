// finwave prints the tail's joint angles, servo pulses and tail-tip position
// over one wave period, for checking a wave configuration on the bench.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/teslashibe/go-finbot/pkg/actuator"
	"github.com/teslashibe/go-finbot/pkg/kinematics"
	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/wave"
)

func main() {
	preset := flag.String("preset", "default", "pilot preset supplying the wave and segment length")
	amplitude := flag.Float64("amplitude", -1, "amplitude (deg); negative keeps the preset's")
	freq := flag.Float64("freq", -1, "frequency (Hz); negative keeps the preset's")
	phase := flag.Float64("phase", -1, "phase shift between joints (deg); negative keeps the preset's")
	reverse := flag.Bool("reverse", false, "run the wave head-ward")
	samples := flag.Int("samples", 12, "rows per period")
	flag.Parse()

	cfg, err := pilot.Preset(*preset)
	if err != nil {
		fatal(err)
	}
	p := cfg.Wave
	if *amplitude >= 0 {
		p.AmplitudeDeg = *amplitude
	}
	if *freq >= 0 {
		p.FrequencyHz = *freq
	}
	if *phase >= 0 {
		p.PhaseShiftDeg = *phase
	}
	if *reverse {
		p.Direction = wave.TailToHead
	}
	if err := p.Validate(); err != nil {
		fatal(err)
	}
	if *samples < 1 {
		fatal(fmt.Errorf("samples must be positive"))
	}

	chain, err := kinematics.NewChain(cfg.SegmentLength, cfg.Composition)
	if err != nil {
		fatal(err)
	}
	gen := wave.NewGenerator()

	period := 1.0
	if p.FrequencyHz > 0 {
		period = 1 / p.FrequencyHz
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "t\tjoints (deg)\tpwm (us)\ttip x\ttip y\t\n")
	for i := 0; i < *samples; i++ {
		t := period * float64(i) / float64(*samples)
		joints := gen.Joints(t, p)
		// Tail extends behind the head, which faces +x.
		tip := kinematics.TailTip(chain.ForwardDegrees(joints, pose.Pose{Theta: math.Pi}))

		deg := make([]string, len(joints))
		pwm := make([]string, len(joints))
		for j, a := range joints {
			deg[j] = fmt.Sprintf("%6.1f", a)
			pwm[j] = fmt.Sprintf("%4.0f", actuator.PulseWidth(a))
		}
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%.3f\t%.3f\t\n", t, strings.Join(deg, " "), strings.Join(pwm, " "), tip.X, tip.Y)
	}
	w.Flush()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "finwave:", err)
	os.Exit(1)
}
