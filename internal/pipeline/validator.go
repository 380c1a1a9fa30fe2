package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/obentoo/nixbump/internal/common/command"
	"github.com/obentoo/nixbump/internal/common/logger"
)

// ValidationStep is one labelled command of a validation plan.
type ValidationStep struct {
	Label   string
	Command command.Invocation
}

// StepResult is the captured result of a step, successful or not.
type StepResult struct {
	Step     ValidationStep
	Stdout   string
	Stderr   string
	Err      error
	Duration time.Duration
}

// ValidationError is returned for the first failing step.
type ValidationError struct {
	Result StepResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation step %q failed: %v", e.Result.Step.Label, e.Result.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Result.Err
}

func buildCheck(system, check string) command.Invocation {
	return command.New("nix", "build", "--accept-flake-config", "--no-link",
		fmt.Sprintf(".#checks.%s.%s", system, check))
}

// ValidationPlan returns the steps for the context's target kind.
func ValidationPlan(pc *PipelineContext) []ValidationStep {
	t := pc.Target()
	var steps []ValidationStep

	if t.Kind == KindPackage {
		steps = append(steps, ValidationStep{
			Label:   "build " + t.Name,
			Command: buildCheck(pc.System(), "pkgs-"+t.Name),
		})
	} else {
		steps = append(steps, ValidationStep{
			Label:   "flake check",
			Command: command.New("nix", "flake", "check", "--no-build", "--accept-flake-config"),
		})
	}

	for _, check := range pc.FormatterChecks() {
		steps = append(steps, ValidationStep{
			Label:   check,
			Command: buildCheck(pc.System(), check),
		})
	}

	if t.Kind == KindExternalInput {
		for _, pkg := range pc.SmokePackages() {
			steps = append(steps, ValidationStep{
				Label:   "smoke " + pkg,
				Command: buildCheck(pc.System(), "pkgs-"+pkg),
			})
		}
	}
	return steps
}

// Validator runs validation steps in order.
type Validator struct {
	runner command.Runner
	log    *logger.Logger
	now    func() time.Time
}

// NewValidator creates a Validator over runner.
func NewValidator(runner command.Runner, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Default()
	}
	return &Validator{runner: runner, log: log, now: time.Now}
}

// Run executes steps sequentially and stops at the first failure. The
// results of every step that ran are returned, including the failing one.
func (v *Validator) Run(ctx context.Context, steps []ValidationStep) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		v.log.Info("%s", step.Label)
		v.log.Debug("$ %s", step.Command)

		start := v.now()
		res, err := v.runner.Run(ctx, step.Command)
		r := StepResult{
			Step:     step,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Err:      err,
			Duration: v.now().Sub(start),
		}
		results = append(results, r)
		if err != nil {
			return results, &ValidationError{Result: r}
		}
		v.log.Debug("%s passed in %s", step.Label, r.Duration.Round(time.Millisecond))
	}
	return results, nil
}
