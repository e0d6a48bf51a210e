package pilot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/actuator"
	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/kinematics"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/protocol"
	"github.com/teslashibe/go-finbot/pkg/wave"
)

// heartbeatTicks is how often the loop logs a status line.
const heartbeatTicks = 100

// PoseSource supplies the most recent localization fix. pose.Store
// satisfies it.
type PoseSource interface {
	Latest() (pose.Sample, bool)
}

// poseSeeder is implemented by sources that accept a pose on reset.
type poseSeeder interface {
	Publish(p pose.Pose, source string) uint64
}

// Stats are the loop's diagnostic counters.
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	StaleTicks uint64 `json:"stale_ticks"`
	Faults     uint64 `json:"faults"`
	SendErrors uint64 `json:"send_errors"`
	Overruns   uint64 `json:"overruns"`
}

// Loop runs the controller at a fixed rate. All tuning, target and mode
// changes go through here and take effect at the start of the next tick;
// the tick itself reads them once under a read lock and then works on
// private copies, so a slow sink or observer never holds the lock.
type Loop struct {
	dt          float64
	poseTimeout time.Duration
	stalePolicy StalePolicy

	ctrl        *control.Controller
	gen         *wave.Generator
	chain       *kinematics.Chain
	composition kinematics.Composition
	poses       PoseSource
	sink        actuator.Sink
	obs         []Observer

	mu         sync.RWMutex
	ctrlCfg    control.Config
	ctrlDirty  bool
	segLen     float64
	chainDirty bool
	target     *control.Target
	waveCfg    wave.Params
	manual     *Manual
	resetReq   bool
	resetPose  *pose.Pose

	// Owned by the tick goroutine.
	mem     control.Memory
	seq     uint64
	t       float64
	lastOut control.Output

	ticks      atomic.Uint64
	staleTicks atomic.Uint64
	faults     atomic.Uint64
	sendErrors atomic.Uint64
	overruns   atomic.Uint64
	errLog     *log.Throttle
	staleLog   *log.Throttle

	latest atomic.Pointer[Snapshot]

	stop     chan struct{}
	stopOnce sync.Once
}

// New validates cfg and builds a loop. A nil sink discards commands.
func New(cfg Config, poses PoseSource, sink actuator.Sink, observers ...Observer) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if poses == nil {
		return nil, errors.New("pilot: pose source is required")
	}
	ctrl, err := control.New(cfg.Control)
	if err != nil {
		return nil, err
	}
	chain, err := kinematics.NewChain(cfg.SegmentLength, cfg.Composition)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = actuator.Discard
	}
	policy := cfg.StalePolicy
	if policy == "" {
		policy = StaleNeutral
	}
	return &Loop{
		dt:          cfg.DT,
		poseTimeout: time.Duration(cfg.PoseTimeout * float64(time.Second)),
		stalePolicy: policy,
		ctrl:        ctrl,
		gen:         wave.NewGenerator(),
		chain:       chain,
		composition: cfg.Composition,
		segLen:      cfg.SegmentLength,
		poses:       poses,
		sink:        sink,
		obs:         observers,
		ctrlCfg:     cfg.Control,
		waveCfg:     cfg.Wave.Clone(),
		errLog:      log.NewThrottle(5 * time.Second),
		staleLog:    log.NewThrottle(5 * time.Second),
		stop:        make(chan struct{}),
	}, nil
}

// DT returns the loop period in seconds.
func (l *Loop) DT() float64 { return l.dt }

// Joints returns the number of tail joints currently driven.
func (l *Loop) Joints() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.waveCfg.Joints()
}

// SetTarget replaces the target and resets the controller memory. Nil
// clears the target and the loop goes neutral.
func (l *Loop) SetTarget(t *control.Target) error {
	if t != nil {
		if err := t.Validate(); err != nil {
			return err
		}
		cp := *t
		t = &cp
	}
	l.mu.Lock()
	l.target = t
	l.resetReq = true
	l.mu.Unlock()
	if t != nil {
		log.Info("target set", "mode", t.Mode, "destination", fmt.Sprintf("(%.2f, %.2f)", t.Destination.X, t.Destination.Y))
	} else {
		log.Info("target cleared")
	}
	return nil
}

// Target returns a copy of the current target, or nil.
func (l *Loop) Target() *control.Target {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.target == nil {
		return nil
	}
	cp := *l.target
	return &cp
}

// Reset zeroes the controller memory and loop time on the next tick. A
// non-nil seed is published to the pose source when it accepts poses.
func (l *Loop) Reset(seed *pose.Pose) error {
	if seed != nil && !seed.Valid() {
		return fmt.Errorf("pilot: reset pose is not finite")
	}
	l.mu.Lock()
	l.resetReq = true
	if seed != nil {
		p := *seed
		l.resetPose = &p
	}
	l.mu.Unlock()
	return nil
}

// SetWave replaces the wave parameters. The joint count must match the
// configured tail.
func (l *Loop) SetWave(p wave.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.Joints() != l.waveCfg.Joints() {
		return fmt.Errorf("%w: got %d joints, tail has %d", ErrJointCount, p.Joints(), l.waveCfg.Joints())
	}
	l.waveCfg = p.Clone()
	return nil
}

// Wave returns a copy of the configured wave parameters.
func (l *Loop) Wave() wave.Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.waveCfg.Clone()
}

// SetManual switches to joystick drive.
func (l *Loop) SetManual(m Manual) error {
	if !m.Valid() {
		return errors.New("pilot: manual input is not finite")
	}
	l.mu.Lock()
	wasAuto := l.manual == nil
	l.manual = &m
	l.mu.Unlock()
	if wasAuto {
		log.Info("manual drive engaged")
	}
	return nil
}

// SetAuto leaves manual drive. Controller memory is reset so integral
// terms do not carry over from before the override.
func (l *Loop) SetAuto() {
	l.mu.Lock()
	wasManual := l.manual != nil
	l.manual = nil
	if wasManual {
		l.resetReq = true
	}
	l.mu.Unlock()
	if wasManual {
		log.Info("automatic drive resumed")
	}
}

// Manual reports the joystick input when manual drive is active.
func (l *Loop) Manual() (Manual, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.manual == nil {
		return Manual{}, false
	}
	return *l.manual, true
}

// Latest returns the most recent snapshot.
func (l *Loop) Latest() (Snapshot, bool) {
	s := l.latest.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Stats returns the diagnostic counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:      l.ticks.Load(),
		StaleTicks: l.staleTicks.Load(),
		Faults:     l.faults.Load(),
		SendErrors: l.sendErrors.Load(),
		Overruns:   l.overruns.Load(),
	}
}

// Run ticks every DT until ctx is done or Stop is called, then sends one
// neutral command so the servos center. It returns nil after Stop and
// ctx.Err() after cancellation.
func (l *Loop) Run(ctx context.Context) error {
	period := time.Duration(l.dt * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	log.Info("pilot loop started", "dt", l.dt, "stale_policy", l.stalePolicy)
	defer l.park()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case now := <-ticker.C:
			l.Tick(now)
			if took := time.Since(now); took > period {
				l.overruns.Add(1)
				log.Debug("pilot tick overran", "took", took, "period", period)
			}
		}
	}
}

// Stop halts Run. It is safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Loop) park() {
	cmd := actuator.NeutralCommand(l.seq, l.t, l.Joints())
	if err := l.sink.Send(cmd); err != nil {
		log.Warn("pilot: neutral command on stop failed", "error", err)
	}
	log.Info("pilot loop stopped", "ticks", l.ticks.Load())
}

// Tick runs one control cycle at wall time now. Run calls it on every
// ticker fire; tests call it directly for deterministic stepping.
func (l *Loop) Tick(now time.Time) Snapshot {
	l.mu.Lock()
	cfg := l.ctrlCfg
	dirty := l.ctrlDirty
	l.ctrlDirty = false
	segLen, rebuild := l.segLen, l.chainDirty
	l.chainDirty = false
	target := l.target
	params := l.waveCfg
	manual := l.manual
	reset := l.resetReq
	seed := l.resetPose
	l.resetReq = false
	l.resetPose = nil
	l.mu.Unlock()

	if dirty {
		if err := l.ctrl.SetConfig(cfg); err != nil {
			log.Warn("pilot: tuning rejected", "error", err)
		}
	}
	if rebuild {
		if chain, err := kinematics.NewChain(segLen, l.composition); err == nil {
			l.chain = chain
		}
	}
	if reset {
		l.mem.Reset()
		l.t = 0
		l.lastOut = control.Output{}
		if seed != nil {
			if s, ok := l.poses.(poseSeeder); ok {
				s.Publish(*seed, "reset")
			}
		}
	}

	sample, ok := l.poses.Latest()
	fresh := ok && sample.Pose.Valid() && (l.poseTimeout <= 0 || sample.Age(now) <= l.poseTimeout)

	drive := DriveIdle
	var out control.Output
	switch {
	case manual != nil:
		drive = DriveManual
		out = manual.output(cfg)
		params.FrequencyHz = manual.Frequency(params.FrequencyHz)
	case target == nil:
		out = control.NeutralOutput()
	case !fresh:
		drive = DriveAuto
		l.staleTicks.Add(1)
		if allowed, dropped := l.staleLog.Allow(); allowed {
			log.Warn("pilot: no fresh pose", "policy", l.stalePolicy, "have_pose", ok, "suppressed", dropped)
		}
		if l.stalePolicy == StaleHold {
			out = l.lastOut
		} else {
			out = control.NeutralOutput()
		}
	default:
		drive = DriveAuto
		out = l.ctrl.Step(sample.Pose, target, l.dt, &l.mem)
		if out.Fault {
			l.faults.Add(1)
		}
		l.lastOut = out
	}

	scaled := params.ScaleAmplitude(out.TailAmplitude, cfg.MaxTailAmplitude)
	joints := l.gen.Joints(l.t, scaled)

	// The tail trails behind the head, so the chain starts reversed.
	origin := sample.Pose
	origin.Theta = pose.Wrap(origin.Theta + math.Pi)
	chain := l.chain.ForwardDegrees(joints, origin)

	cmd := actuator.NewCommand(l.seq, l.t, out.RudderAngle, joints, out.ThrustEstimate)
	cmd.Neutral = out.Neutral
	l.send(cmd)

	snap := Snapshot{
		Seq:          l.seq,
		Time:         l.t,
		Drive:        drive,
		Pose:         poseData(sample.Pose),
		PoseFresh:    fresh,
		Output:       out,
		Memory:       l.mem,
		AmplitudeDeg: scaled.AmplitudeDeg,
		FrequencyHz:  scaled.FrequencyHz,
		JointDeg:     cmd.JointDeg,
		PWM:          cmd.PWM,
		Chain:        pointsData(chain),
	}
	if target != nil {
		td := protocol.TargetFromControl(target)
		snap.Target = &td
	}
	l.latest.Store(&snap)
	for _, o := range l.obs {
		o.Observe(snap)
	}

	n := l.ticks.Add(1)
	if n%heartbeatTicks == 0 {
		log.Debug("pilot heartbeat",
			"ticks", n, "drive", drive, "stale", l.staleTicks.Load(), "send_errors", l.sendErrors.Load(),
			"rudder_deg", cmd.RudderDeg, "amplitude", out.TailAmplitude)
	}

	l.seq++
	l.t += l.dt
	return snap
}

// send never blocks; sinks queue or drop internally. Errors are counted and
// logged at most once per throttle window.
func (l *Loop) send(cmd actuator.Command) {
	err := l.sink.Send(cmd)
	if err == nil {
		return
	}
	total := l.sendErrors.Add(1)
	if allowed, dropped := l.errLog.Allow(); allowed {
		log.Warn("pilot: actuator send failed", "error", err, "total", total, "suppressed", dropped)
	}
}
