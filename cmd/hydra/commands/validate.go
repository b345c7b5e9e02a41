package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hydra/pkg/policy"
)

// validateReport is the JSON form of a validate run.
type validateReport struct {
	Pipeline string         `json:"pipeline"`
	Source   string         `json:"source"`
	Tasks    int            `json:"tasks"`
	Rprims   int            `json:"rprims"`
	Frames   int            `json:"frames"`
	Policy   *policy.Result `json:"policy,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline>",
		Short: "Validate a pipeline without running it",
		Long: `Validate a pipeline file.

This command checks:
  - YAML, CUE or Starlark syntax
  - Schema conformance and cross-field rules
  - Admission policies (OPA/rego), built-in and the pipeline's own`,
		Example: `  # Validate a pipeline
  hydra validate scene.yaml

  # Print the policy result as JSON
  hydra validate --json scene.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry("")
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)
			logger := tel.Logger.Zerolog()

			p, err := loadPipeline(ctx, cmd.ErrOrStderr(), args[0], logger)
			if err != nil {
				return err
			}

			result, admitErr := admit(ctx, p, "validate", logger, tel.Observer(p.Name))

			out := newOutput(cmd.OutOrStdout())
			if out.jsonMode {
				if err := out.json(validateReport{
					Pipeline: p.Name,
					Source:   p.Source,
					Tasks:    len(p.Tasks),
					Rprims:   len(p.Rprims),
					Frames:   p.FrameCount(),
					Policy:   result,
				}); err != nil {
					return err
				}
				return admitErr
			}

			printPolicyResult(out.w, result)
			if admitErr != nil {
				return admitErr
			}
			fmt.Fprintf(out.w, "%s: pipeline %q is valid (%d tasks, %d rprims, %d frames)\n",
				args[0], p.Name, len(p.Tasks), len(p.Rprims), p.FrameCount())
			return nil
		},
	}

	return cmd
}
