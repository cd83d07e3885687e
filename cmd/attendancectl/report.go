package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"attendguard/internal/notify"
	"attendguard/internal/report"
)

func newReportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "report",
		Short: "Build the daily attendance report",
		Long: `Build the daily workbook for a day. It is emailed when EMAIL_SENDER and
EMAIL_RECEIVER are set, archived when REPORT_BUCKET is set, and written
to --out when given.

Example:
  attendancectl report --date 2026-03-02 --out report.xlsx`,
		Args: cobra.NoArgs,
		RunE: runReport,
	}
	c.Flags().String("date", "", "Day to report (YYYY-MM-DD), default today")
	c.Flags().String("out", "", "Also write the workbook to this path")
	return c
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, db, repo, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	day, err := resolveDay(cfg.Policy.Location, mustGetString(cmd, "date"))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	path := mustGetString(cmd, "out")
	if path == "" && !cfg.Email.Enabled() && cfg.Report.Bucket == "" {
		return errors.New("nothing to do: pass --out or configure EMAIL_SENDER/EMAIL_RECEIVER or REPORT_BUCKET")
	}

	if path != "" {
		sum, err := report.Build(ctx, repo, day)
		if err != nil {
			return err
		}
		if sum.Empty() {
			fmt.Fprintf(out, "no attendance data for %s\n", day)
			return nil
		}
		book, err := report.Workbook(sum)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, book, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(out, "wrote %s (%d identities)\n", path, len(sum.Totals))
	}

	var mailer notify.Notifier
	if cfg.Email.Enabled() {
		m, err := notify.NewMailer(ctx, nil, cfg.Email.Sender, cfg.Email.Receiver)
		if err != nil {
			return err
		}
		mailer = m
	}
	var archiver report.Archiver
	if cfg.Report.Bucket != "" {
		a, err := report.NewS3Archiver(ctx, nil, cfg.Report.Bucket)
		if err != nil {
			return err
		}
		archiver = a
	}
	if mailer == nil && archiver == nil {
		return nil
	}

	loc, err := cfg.Policy.Location()
	if err != nil {
		return err
	}
	sent, err := report.NewJob(repo, mailer, archiver, loc).Run(ctx, day)
	if err != nil {
		return err
	}
	if sent {
		fmt.Fprintf(out, "report for %s delivered\n", day)
	} else {
		fmt.Fprintf(out, "no attendance data for %s\n", day)
	}
	return nil
}
