// Package orchestrator runs the session and race-features extractors as
// child processes of the same binary and cross-checks what they wrote.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultSeason is used when neither the flag nor the circuits file names one.
const DefaultSeason = 2024

// DefaultStepTimeout bounds each child process.
const DefaultStepTimeout = 5 * time.Minute

// Step names.
const (
	StepSession      = "session"
	StepRaceFeatures = "race-features"
)

// Options are the `all` command flags.
type Options struct {
	Circuit        string
	Season         int
	Round          int
	Event          string
	Date           string
	Session        string
	StartTime      string
	OutputDir      string
	Insecure       bool
	SkipDrivers    bool
	SkipRace       bool
	SkipValidation bool
}

// Step is one child invocation.
type Step struct {
	Name string
	Args []string
	Out  string
}

// Plan is the resolved set of steps for one race.
type Plan struct {
	RaceID   string
	RaceDate string
	Session  Step
	Race     Step
}

// BuildPlan validates opts against the circuits file and renders both child
// command lines.
func BuildPlan(c *Circuits, opts Options) (*Plan, error) {
	circuit, err := c.Circuit(opts.Circuit)
	if err != nil {
		return nil, err
	}

	raceDate := opts.Date
	if raceDate == "" && opts.Season > 0 && opts.Round > 0 {
		raceDate, _ = c.RaceDate(opts.Season, opts.Round)
	}
	if raceDate == "" {
		return nil, eris.New("Race date must be specified via --date or season/round configuration")
	}

	raceID := opts.Circuit + "_race"
	if opts.Season > 0 {
		raceID = strconv.Itoa(opts.Season) + "_" + raceID
	}

	season := firstInt(opts.Season, c.Defaults.Season, DefaultSeason)
	round := firstInt(opts.Round, 1)
	outDir := firstString(opts.OutputDir, c.Defaults.OutputDir, "data/processed")

	driverOut := filepath.Join(outDir, "session_driver.csv")
	sessionArgs := []string{
		StepSession,
		"--season", strconv.Itoa(season),
		"--session", firstString(opts.Session, c.Defaults.Session, "FP2"),
		"--out", driverOut,
	}
	switch {
	case opts.Event != "":
		sessionArgs = append(sessionArgs, "--event", opts.Event)
	case opts.Round > 0:
		sessionArgs = append(sessionArgs, "--round", strconv.Itoa(opts.Round))
	default:
		event := opts.Circuit
		if words := strings.Fields(circuit.Name); len(words) > 0 {
			event = words[0]
		}
		sessionArgs = append(sessionArgs, "--event", event)
	}

	raceOut := filepath.Join(outDir, "race_features.csv")
	raceArgs := []string{
		StepRaceFeatures,
		"--race-id", raceID,
		"--season", strconv.Itoa(season),
		"--round", strconv.Itoa(round),
		"--circuit-id", opts.Circuit,
		"--circuit-name", circuit.Name,
		"--country", circuit.Country,
		"--race-date", raceDate,
		"--start-time", firstString(opts.StartTime, c.Defaults.StartTime, "15:00"),
		"--timezone", circuit.Timezone,
		"--laps", strconv.Itoa(circuit.Laps),
		"--track-length-km", formatFloat(circuit.TrackLengthKM),
		"--lat", formatFloat(circuit.Lat),
		"--lon", formatFloat(circuit.Lon),
		"--altitude-m", strconv.Itoa(circuit.AltitudeM),
		"--drs-zones", strconv.Itoa(circuit.DRSZones),
		"--overtake-index", formatFloat(circuit.OvertakeIndex),
		"--pit-lane-loss-s", formatFloat(circuit.PitLaneLossS),
		"--sc-prob", formatFloat(circuit.SCProb),
		"--vsc-prob", formatFloat(circuit.VSCProb),
		"--sc-avg-count", formatFloat(circuit.SCAvgCount),
		"--retire-prob", formatFloat(circuit.RetireProb),
		"--tyre-stress", strconv.Itoa(circuit.TyreStress),
		"--asphalt-grip", strconv.Itoa(circuit.AsphaltGrip),
		"--asphalt-roughness", strconv.Itoa(circuit.AsphaltRoughness),
		"--out", raceOut,
	}
	if opts.Insecure {
		sessionArgs = append(sessionArgs, "--insecure")
		raceArgs = append(raceArgs, "--insecure")
	}

	return &Plan{
		RaceID:   raceID,
		RaceDate: raceDate,
		Session:  Step{Name: StepSession, Args: sessionArgs, Out: driverOut},
		Race:     Step{Name: StepRaceFeatures, Args: raceArgs, Out: raceOut},
	}, nil
}

// Runner executes one child command line.
type Runner interface {
	Run(ctx context.Context, args []string) error
}

// ExecRunner runs steps as subprocesses of a binary, by default the
// running executable.
type ExecRunner struct {
	binPath string
}

// NewExecRunner creates an ExecRunner. An empty binPath resolves to
// os.Executable.
func NewExecRunner(binPath string) (*ExecRunner, error) {
	if binPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, eris.Wrap(err, "orchestrator: resolve executable")
		}
		binPath = exe
	}
	return &ExecRunner{binPath: binPath}, nil
}

// Run executes the binary with args, logging its output.
func (r *ExecRunner) Run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		zap.L().Debug("child output", zap.String("step", args[0]), zap.String("stdout", out))
	}
	if err != nil {
		return eris.Wrapf(err, "orchestrator: %s failed: %s", args[0], strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Orchestrator runs a Plan.
type Orchestrator struct {
	runner      Runner
	stepTimeout time.Duration
	minDrivers  int
	maxDrivers  int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStepTimeout overrides DefaultStepTimeout.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stepTimeout = d
		}
	}
}

// WithDriverRange sets the driver count outside which validation warns.
func WithDriverRange(min, max int) Option {
	return func(o *Orchestrator) {
		o.minDrivers, o.maxDrivers = min, max
	}
}

// New creates an Orchestrator over runner.
func New(runner Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:      runner,
		stepTimeout: DefaultStepTimeout,
		minDrivers:  DefaultMinDrivers,
		maxDrivers:  DefaultMaxDrivers,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result reports what ran.
type Result struct {
	Steps     []string
	Validated bool
	Drivers   int
}

// Execute runs the plan's steps in order. The first failing step aborts
// the rest; validation runs only when both steps ran.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "orchestrator"), zap.String("race_id", plan.RaceID))
	res := &Result{}

	var steps []Step
	if !opts.SkipDrivers {
		steps = append(steps, plan.Session)
	}
	if !opts.SkipRace {
		steps = append(steps, plan.Race)
	}

	for _, step := range steps {
		if err := os.MkdirAll(filepath.Dir(step.Out), 0o755); err != nil {
			return res, eris.Wrapf(err, "orchestrator: create output dir for %s", step.Name)
		}
		log.Info("running step", zap.String("step", step.Name), zap.Strings("args", step.Args))
		start := time.Now()
		if err := o.runStep(ctx, step); err != nil {
			log.Error("step failed", zap.String("step", step.Name), zap.Error(err))
			return res, err
		}
		res.Steps = append(res.Steps, step.Name)
		log.Info("step complete", zap.String("step", step.Name), zap.Duration("elapsed", time.Since(start)))
	}

	if opts.SkipValidation || opts.SkipDrivers || opts.SkipRace {
		return res, nil
	}

	n, err := CrossValidate(plan.Session.Out, plan.Race.Out, o.minDrivers, o.maxDrivers)
	if err != nil {
		return res, err
	}
	res.Validated = true
	res.Drivers = n
	return res, nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step) error {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	err := o.runner.Run(stepCtx, step.Args)
	if err != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return eris.Errorf("orchestrator: %s timed out after %s", step.Name, o.stepTimeout)
	}
	return err
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
