package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"attendguard/internal/attendance"
	"attendguard/internal/session"
)

func newRecordsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "records",
		Short: "List attendance records",
		Args:  cobra.NoArgs,
		RunE:  runRecords,
	}
	c.Flags().String("date", "", "Day to list (YYYY-MM-DD), default today")
	c.Flags().String("identity", "", "Only records for this identity")
	c.Flags().Int("limit", 0, "Maximum number of records (0 = all)")
	return c
}

func runRecords(cmd *cobra.Command, _ []string) error {
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
	recs, err := repo.List(ctx, attendance.Filter{
		Date:       day,
		IdentityID: mustGetString(cmd, "identity"),
		Limit:      mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintf(out, "no records for %s\n", day)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tID\tNAME\tACTION\tTRIGGER\tHOURS")
	for _, r := range recs {
		hours := ""
		if r.Action == session.ActionLogout {
			hours = fmt.Sprintf("%.2f", r.HoursWorked)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Timestamp.Format("15:04:05"), r.IdentityID, r.Name, r.Action, r.Trigger, hours)
	}
	return w.Flush()
}

// resolveDay validates day or defaults it to today in the configured zone.
func resolveDay(location func() (*time.Location, error), day string) (string, error) {
	if day != "" {
		if _, err := time.Parse(session.DateLayout, day); err != nil {
			return "", fmt.Errorf("invalid --date %q: want YYYY-MM-DD", day)
		}
		return day, nil
	}
	loc, err := location()
	if err != nil {
		return "", err
	}
	return time.Now().In(loc).Format(session.DateLayout), nil
}
