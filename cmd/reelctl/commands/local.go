package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/reelscraper/internal/app"
	"github.com/kiranshivaraju/reelscraper/internal/config"
	"github.com/kiranshivaraju/reelscraper/internal/jobs"
	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// startEngine loads configuration from the environment and wires an engine.
func startEngine(ctx context.Context) (*app.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	eng, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return eng, nil
}

func newRunCmd() *cobra.Command {
	var (
		users    []string
		tags     []string
		maxItems int
		columns  []string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a job in-process and prints the result table.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := startEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			if maxItems == 0 {
				maxItems = eng.Config.Jobs.DefaultItemLimit
			}
			job, err := eng.Runner.Submit(ctx, jobs.Request{
				Targets:   models.TargetsFrom(users, tags),
				ItemLimit: maxItems,
				Columns:   columns,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "job %s queued\n", job.ID)

			p, err := waitLocal(ctx, eng.Service, job.ID, func(p models.Progress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d%%\n", p.State, p.Percent)
			})
			if err != nil {
				return err
			}
			eng.Runner.Wait()
			if p.State != models.JobStateDone {
				return fmt.Errorf("job %s failed: %s", job.ID, p.Reason)
			}

			art, err := eng.Service.Result(ctx, job.ID)
			if err != nil {
				return err
			}
			if out != "" {
				if err := writeFile(out, art.Data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			}
			res, err := sink.ReadCSV(bytes.NewReader(art.Data))
			if err != nil {
				return err
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&users, "user", "u", nil, "user handle to extract from (repeatable)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "hashtag to extract from (repeatable)")
	cmd.Flags().IntVarP(&maxItems, "max-items", "n", 0, "items per target (default DEFAULT_ITEM_LIMIT)")
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "optional columns: likes, comments, video_view_count")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the CSV table to this file")
	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Logs in with INSTA_USER/INSTA_PASS and saves the session artifact.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := startEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			s, err := eng.Sessions.Acquire(ctx)
			if err != nil {
				return err
			}
			defer s.Browser.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "session %s (%s)\n", s.State(), s.ArtifactPath)
			return nil
		},
	}
}

// waitLocal polls svc until the job is terminal.
func waitLocal(ctx context.Context, svc *jobs.Service, id uuid.UUID, onChange func(models.Progress)) (models.Progress, error) {
	ticker := time.NewTicker(pollInterval / 5)
	defer ticker.Stop()
	var last models.Progress
	for {
		p, err := svc.Progress(ctx, id)
		if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
			return p, err
		}
		if err == nil && (p.State != last.State || p.Percent != last.Percent) {
			onChange(p)
			last = p
		}
		if p.State.Terminal() {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-ticker.C:
		}
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
