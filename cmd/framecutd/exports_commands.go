package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/framecut/framecut-backend/internal/exports"
)

func newExportsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Inspect export jobs",
	}
	cmd.AddCommand(newExportsListCommand(ctx))
	cmd.AddCommand(newExportsShowCommand(ctx))
	cmd.AddCommand(newExportsPresetsCommand(ctx))
	return cmd
}

func newExportsListCommand(ctx *commandContext) *cobra.Command {
	var projectID, status string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List export jobs for a project or in one status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (projectID == "") == (status == "") {
				return errors.New("exactly one of --project or --status is required")
			}
			a, err := ctx.open(io.Discard)
			if err != nil {
				return err
			}
			defer a.close()

			var jobs []*exports.Job
			if projectID != "" {
				jobs, err = a.ledger.ListByProject(commandCtx(cmd), projectID)
			} else {
				jobs, err = a.ledger.ListByStatus(commandCtx(cmd), status)
			}
			if err != nil {
				return err
			}
			if asJSON {
				if jobs == nil {
					jobs = []*exports.Job{}
				}
				return writeJSON(cmd, jobs)
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No export jobs")
				return nil
			}
			fmt.Fprintln(out, renderJobTable(jobs, time.Now(), shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id")
	cmd.Flags().StringVar(&status, "status", "", "Job status (queued, running, succeeded, failed, canceled)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newExportsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one export job and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open(io.Discard)
			if err != nil {
				return err
			}
			defer a.close()

			view, err := a.query.JobWithEvents(commandCtx(cmd), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, view)
			}
			printJob(cmd.OutOrStdout(), view, a.cfg.DataDir(), time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newExportsPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the export presets this build can render",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reg := buildRegistry(cfg.DataDir(), cfg.ExportStepDelay(), nil)
			for _, p := range reg.Presets() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func renderJobTable(jobs []*exports.Job, now time.Time, colorize bool) string {
	data := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		data = append(data, []string{
			j.ID,
			j.Preset,
			j.Status,
			j.Progress.String() + "%",
			humanize.RelTime(j.CreatedAt, now, "ago", "from now"),
		})
	}
	return renderTable(
		[]string{"ID", "Preset", "Status", "Progress", "Created"},
		data,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		colorize,
	)
}

func printJob(out io.Writer, view *exports.JobWithEvents, dataDir string, now time.Time) {
	j := view.Job
	fmt.Fprintf(out, "Job:      %s\n", j.ID)
	fmt.Fprintf(out, "Project:  %s\n", j.ProjectID)
	fmt.Fprintf(out, "Preset:   %s\n", j.Preset)
	fmt.Fprintf(out, "Status:   %s (%s%%)\n", j.Status, j.Progress)
	fmt.Fprintf(out, "Created:  %s (%s)\n", j.CreatedAt.Format(time.RFC3339), humanize.RelTime(j.CreatedAt, now, "ago", "from now"))
	if j.StartedAt != nil && j.FinishedAt != nil {
		fmt.Fprintf(out, "Duration: %s\n", j.FinishedAt.Sub(*j.StartedAt).Round(time.Millisecond))
	}
	if j.ErrorMessage != nil {
		fmt.Fprintf(out, "Error:    %s\n", *j.ErrorMessage)
	}
	if j.OutputURI != nil {
		size := "missing"
		if info, err := os.Stat(filepath.Join(dataDir, filepath.FromSlash(*j.OutputURI))); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(out, "Output:   %s (%s)\n", *j.OutputURI, size)
	}

	if len(view.Events) == 0 {
		return
	}
	rows := make([][]string, 0, len(view.Events))
	for _, e := range view.Events {
		progress, message := "", ""
		if e.Progress != nil {
			progress = e.Progress.String() + "%"
		}
		if e.Message != nil {
			message = *e.Message
		}
		rows = append(rows, []string{
			fmt.Sprint(e.ID),
			e.EventType,
			progress,
			message,
			e.CreatedAt.Format("15:04:05.000"),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Event", "Progress", "Message", "At"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
		shouldColorize(out),
	))
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
