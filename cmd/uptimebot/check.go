package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimebot/internal/probe"
	"github.com/hazz-dev/uptimebot/internal/storage"
)

type serviceFinder interface {
	Find(ctx context.Context, f storage.Filter) ([]storage.Service, error)
}

func executeCheck(cmd *cobra.Command, db serviceFinder, prober probe.Prober) error {
	services, err := db.Find(context.Background(), storage.Filter{})
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	return runChecks(cmd.OutOrStdout(), services, prober)
}

// runChecks probes each service once, concurrently, and prints a table.
// It returns an error if any service is unreachable.
func runChecks(out io.Writer, services []storage.Service, prober probe.Prober) error {
	if len(services) == 0 {
		fmt.Fprintln(out, "No services registered.")
		return nil
	}

	results := make([]probe.Result, len(services))
	var wg sync.WaitGroup

	for i, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = prober.Probe(context.Background(), svc.Endpoint)
		}()
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tOWNER\tENDPOINT\tSTATUS\tRESPONSE\tERROR")
	allUp := true
	for i, svc := range services {
		r := results[i]
		status := "up"
		if !r.Reachable {
			status = "down"
			allUp = false
		}
		resp := "—"
		if r.ResponseTime > 0 {
			resp = r.ResponseTime.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			svc.Name,
			svc.Owner,
			svc.Endpoint,
			status,
			resp,
			r.Error,
		)
	}
	w.Flush()

	if !allUp {
		return fmt.Errorf("one or more services are down")
	}
	return nil
}
