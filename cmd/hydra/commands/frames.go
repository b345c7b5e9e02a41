package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hydra/pkg/stores"
)

// frameDetail is the JSON form of a single journaled frame.
type frameDetail struct {
	*stores.FrameRecord
	UsageErrors []*stores.UsageErrorRecord `json:"usage_errors,omitempty"`
}

func newFramesCommand() *cobra.Command {
	var (
		journal    string
		limit      int
		listErrors bool
	)

	cmd := &cobra.Command{
		Use:   "frames [frame-id]",
		Short: "List journaled frames",
		Long: `List frames recorded by "hydra run --journal", most recent first.

Given a frame ID, show that frame's phase timings and usage errors.`,
		Example: `  # List the last 20 frames
  hydra frames --journal frames.db

  # Show one frame
  hydra frames --journal frames.db 0b6f2c1e-...

  # List every usage error
  hydra frames --journal frames.db --errors`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if journal == "" {
				return fmt.Errorf("--journal is required")
			}

			store, err := stores.Open(ctx, journal)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer store.Close()

			out := newOutput(cmd.OutOrStdout())

			if listErrors {
				records, err := store.UsageErrors(ctx, "")
				if err != nil {
					return err
				}
				return printUsageErrors(out, records)
			}

			if len(args) == 1 {
				frame, err := store.GetFrame(ctx, args[0])
				if err != nil {
					return err
				}
				usage, err := store.UsageErrors(ctx, frame.ID)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(frame.Phases))
				for _, ph := range frame.Phases {
					rows = append(rows, []string{ph.Phase, ph.Duration.String()})
				}
				if err := out.print([]string{"PHASE", "DURATION"}, rows, frameDetail{FrameRecord: frame, UsageErrors: usage}); err != nil {
					return err
				}
				if !out.jsonMode && len(usage) > 0 {
					fmt.Fprintln(out.w)
					return printUsageErrors(out, usage)
				}
				return nil
			}

			frames, err := store.ListFrames(ctx, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(frames))
			for _, f := range frames {
				rows = append(rows, []string{
					f.ID,
					f.Pipeline,
					strconv.FormatUint(f.Sequence, 10),
					strconv.Itoa(f.TaskCount),
					fmt.Sprintf("%d/%d", f.BuffersCommitted, f.BuffersCommitted+f.BuffersFailed),
					f.Duration().String(),
					f.StartedAt.Format("2006-01-02 15:04:05"),
				})
			}
			return out.print([]string{"ID", "PIPELINE", "FRAME", "TASKS", "BUFFERS", "DURATION", "STARTED"}, rows, frames)
		},
	}

	cmd.Flags().StringVar(&journal, "journal", "", "SQLite journal written by hydra run")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum frames to list (0 lists all)")
	cmd.Flags().BoolVar(&listErrors, "errors", false, "list usage errors instead of frames")

	return cmd
}

func printUsageErrors(out *output, records []*stores.UsageErrorRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		frame := r.FrameID
		if frame == "" {
			frame = "-"
		}
		rows = append(rows, []string{frame, r.Code, r.Message})
	}
	return out.print([]string{"FRAME", "CODE", "MESSAGE"}, rows, records)
}
