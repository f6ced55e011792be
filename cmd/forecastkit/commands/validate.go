package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/forecastkit/forecastkit/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration document",
		Long: `Validate loads the configuration document and resolves every named
fragment against the Default layer, reporting structural and field-level
errors with their key paths. A document that validates here will resolve
cleanly at execution time.`,
		Example: `  forecastkit validate --config forecast.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(doc))
			for name := range doc {
				if name == config.DefaultKey || name == config.OverrideKey {
					continue
				}
				names = append(names, name)
			}
			sort.Strings(names)

			type result struct {
				Fragment string `json:"fragment"`
				Valid    bool   `json:"valid"`
				Error    string `json:"error,omitempty"`
			}
			results := make([]result, 0, len(names))
			failures := 0
			for _, name := range names {
				r := result{Fragment: name, Valid: true}
				if _, err := config.Resolve(doc, name, nil); err != nil {
					r.Valid = false
					r.Error = err.Error()
					failures++
				}
				results = append(results, r)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(results)
			} else {
				for _, r := range results {
					if r.Valid {
						fmt.Printf("ok    %s\n", r.Fragment)
					} else {
						fmt.Printf("error %s: %s\n", r.Fragment, r.Error)
					}
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d fragments failed validation", failures, len(names))
			}
			if len(names) == 0 {
				return fmt.Errorf("document has no named fragments to validate")
			}
			return nil
		},
	}

	return cmd
}
