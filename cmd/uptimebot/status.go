package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimebot/internal/storage"
)

func executeStatus(cmd *cobra.Command, db serviceFinder) error {
	out := cmd.OutOrStdout()
	services, err := db.Find(context.Background(), storage.Filter{})
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(services) == 0 {
		fmt.Fprintln(out, "No services registered. Add one with /add in the bot or POST /api/services.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tOWNER\tHEALTH\tUP\tDOWN\tENDPOINT\tADDED")
	for _, s := range services {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
			s.Name,
			s.Owner,
			s.Health,
			s.SuccessCount,
			s.FailureCount,
			s.Endpoint,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	return nil
}
