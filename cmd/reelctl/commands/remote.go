package commands

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/reelscraper/internal/client"
	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

func newSubmitCmd(r *remote) *cobra.Command {
	var (
		req  client.SubmitRequest
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submits a job to the server and prints its ID.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := r.client()
			id, err := c.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			if !wait {
				return nil
			}

			p, err := c.Wait(cmd.Context(), id, pollInterval, func(p models.Progress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d%%\n", p.State, p.Percent)
			})
			if err != nil {
				return err
			}
			renderProgress(cmd.OutOrStdout(), p)
			if p.State != models.JobStateDone {
				return fmt.Errorf("job %s failed: %s", id, p.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&req.Usernames, "user", "u", nil, "user handle to extract from (repeatable)")
	cmd.Flags().StringSliceVarP(&req.Hashtags, "tag", "t", nil, "hashtag to extract from (repeatable)")
	cmd.Flags().IntVarP(&req.MaxItems, "max-items", "n", 0, "items per target (default: server setting)")
	cmd.Flags().StringSliceVarP(&req.Columns, "columns", "c", nil, "optional columns: likes, comments, video_view_count")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the job finishes")
	return cmd
}

func newStatusCmd(r *remote) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Shows a job's progress.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := r.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderProgress(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newCancelCmd(r *remote) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancels a queued or running job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.client().Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s\n", args[0])
			return nil
		},
	}
}

func newDownloadCmd(r *remote) *cobra.Command {
	var (
		dir   string
		show bool
	)
	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Downloads a finished job's CSV table.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := r.client().Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path := filepath.Join(dir, filepath.Base(d.Filename))
			if err := writeFile(path, d.Data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)

			if show {
				res, err := sink.ReadCSV(bytes.NewReader(d.Data))
				if err != nil {
					return err
				}
				renderResult(cmd.OutOrStdout(), res)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to write the table to")
	cmd.Flags().BoolVarP(&show, "print", "p", false, "also print the table")
	return cmd
}
