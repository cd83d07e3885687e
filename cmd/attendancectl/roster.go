package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"attendguard/internal/identity"
)

func newRosterCmd() *cobra.Command {
	rosterCmd := &cobra.Command{
		Use:   "roster",
		Short: "List enrolled identities",
		Long: `List the identities the worker would load. Uses ROSTER_PATH when set,
otherwise the employees tables in the database.`,
		Args: cobra.NoArgs,
		RunE: runRosterList,
	}
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Copy a YAML roster into the database",
		Long: `Validate a YAML roster and upsert every identity, replacing stored
embeddings.

Example:
  attendancectl roster import roster.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runRosterImport,
	}
	rosterCmd.AddCommand(importCmd)
	return rosterCmd
}

func runRosterList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, db, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var src identity.Source = identity.NewSQLSource(db)
	if cfg.RosterPath != "" {
		src = identity.FileSource{Path: cfg.RosterPath}
	}
	roster, err := identity.Load(ctx, src)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESIGNATION\tDEPARTMENT\tSAMPLES")
	for _, id := range roster.IDs() {
		who, _ := roster.Get(id)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", who.ID, who.Name, who.Designation, who.Department, len(who.Embeddings))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d identities\n", roster.Len())
	return nil
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, db, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	roster, err := identity.Load(ctx, identity.FileSource{Path: args[0]})
	if err != nil {
		return err
	}
	dst := identity.NewSQLSource(db)
	for _, id := range roster.IDs() {
		who, _ := roster.Get(id)
		if err := dst.Save(ctx, *who); err != nil {
			return fmt.Errorf("failed to save %s: %w", id, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d identities\n", roster.Len())
	return nil
}
