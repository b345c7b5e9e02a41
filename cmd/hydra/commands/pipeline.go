package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/policy"
	"github.com/openfroyo/hydra/pkg/telemetry"
)

// loadPipeline loads and validates a pipeline file. Validation errors are
// listed on w one per line.
func loadPipeline(ctx context.Context, w io.Writer, path string, logger zerolog.Logger) (*config.Pipeline, error) {
	p, err := config.NewLoader(logger).Load(ctx, path)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				fmt.Fprintln(w, e.String())
			}
		}
		return nil, err
	}
	return p, nil
}

// admit checks p against the built-in policies and the pipeline's own
// policy paths. A policy block with enabled set to false turns admission off.
// Violations and warnings are reported on obs when it is not nil.
func admit(ctx context.Context, p *config.Pipeline, operation string, logger zerolog.Logger, obs *telemetry.EngineObserver) (*policy.Result, error) {
	if policyDisabled(p) {
		logger.Debug().Str("pipeline", p.Name).Msg("Policy admission disabled")
		return nil, nil
	}

	pe, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	return admitWith(ctx, pe, p, operation, obs)
}

func policyDisabled(p *config.Pipeline) bool {
	return p.Policy != nil && !p.Policy.Enabled
}

// admitWith is admit over an existing policy engine.
func admitWith(ctx context.Context, pe *policy.Engine, p *config.Pipeline, operation string, obs *telemetry.EngineObserver) (*policy.Result, error) {
	result, err := pe.Admit(ctx, p, operation)
	if result != nil && obs != nil {
		for _, v := range result.Violations {
			obs.PolicyViolation(v.Task, v.Policy, string(v.Severity), v.Message)
		}
		for _, v := range result.Warnings {
			obs.PolicyViolation(v.Task, v.Policy, string(v.Severity), v.Message)
		}
	}
	return result, err
}

// printPolicyResult writes violations and warnings to w.
func printPolicyResult(w io.Writer, result *policy.Result) {
	if result == nil {
		return
	}
	for _, v := range result.Violations {
		fmt.Fprintf(w, "violation: %s\n", v.String())
	}
	for _, v := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", v.String())
	}
}
