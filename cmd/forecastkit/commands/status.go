package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	var (
		group string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Query the execution archive",
		Long: `Status lists recorded pipeline executions, newest first. With an
execution ID it shows that execution and the resources it touched.`,
		Example: `  # Recent executions across all dataset groups
  forecastkit status

  # Executions of one group
  forecastkit status --group taxi --limit 5

  # One execution in detail
  forecastkit status 2f1c9c4e-ab01-47c2-9f2e-1b2a3c4d5e6f`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 1 {
				exec, err := store.GetExecution(ctx, args[0])
				if err != nil {
					return err
				}
				resources, err := store.ListResources(ctx, exec.ID)
				if err != nil {
					return err
				}
				events, err := store.ListEvents(ctx, exec.ID)
				if err != nil {
					return err
				}
				printExecutionDetail(exec, resources, events)
				return nil
			}

			execs, err := store.ListExecutions(ctx, group, limit)
			if err != nil {
				return err
			}
			printExecutionList(execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "filter by dataset group")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum executions to list (0 for all)")

	return cmd
}

func printExecutionList(execs []*engine.Execution) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(execs)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTION\tGROUP\tSTATE\tSTARTED\tDURATION")
	for _, e := range execs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.DatasetGroup,
			e.State,
			e.StartedAt.Local().Format(time.RFC3339),
			e.Duration().Round(time.Second),
		)
	}
	_ = w.Flush()
}

func printExecutionDetail(exec *engine.Execution, resources []*engine.ResourceRecord, events []*stores.Event) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Execution *engine.Execution        `json:"execution"`
			Resources []*engine.ResourceRecord `json:"resources"`
			Events    []*stores.Event          `json:"events"`
		}{exec, resources, events})
		return
	}

	printExecution(exec)

	if len(resources) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tNAME\tSTATUS\tREUSED")
		for _, r := range resources {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", r.Kind, r.Name, r.Status, r.Reused)
		}
		_ = w.Flush()
	}

	if len(events) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLEVEL\tEVENT\tRESOURCE\tMESSAGE")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.RFC3339), e.Level, e.Type, e.Resource, e.Message)
		}
		_ = w.Flush()
	}
}
