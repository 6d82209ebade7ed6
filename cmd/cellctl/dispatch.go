package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/handylife-debug/webwaka-main-sub008/dispatch"
)

// payloadFlags reads a JSON object from --data or --data-file.
type payloadFlags struct {
	data string
	file string
}

func (p *payloadFlags) register(cmd *cobra.Command, what string) {
	cmd.Flags().StringVarP(&p.data, "data", "d", "", what+" as a JSON object")
	cmd.Flags().StringVar(&p.file, "data-file", "", what+" file (YAML or JSON)")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")
}

func (p *payloadFlags) load() (map[string]any, error) {
	out := map[string]any{}
	switch {
	case p.file != "":
		raw, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p.file, err)
		}
		if err := readDocument(raw, &out); err != nil {
			return nil, err
		}
	case p.data != "":
		if err := json.Unmarshal([]byte(p.data), &out); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	return out, nil
}

func (c *cli) callCmd() *cobra.Command {
	var payload payloadFlags
	cmd := &cobra.Command{
		Use:   "call SECTOR/NAME ACTION",
		Short: "Invoke a cell action through the dispatch bus",
		Long: `Invoke a cell action through the dispatch bus.

Example:
  cellctl call finance/tax-and-fee calculateTax -d '{"amount": 100}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cellPath(args[0])
			if err != nil {
				return err
			}
			body, err := payload.load()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := c.client.do(cmd.Context(), "POST", path+"/actions/"+url.PathEscape(args[1]), body, &out); err != nil {
				return err
			}
			return c.print(out)
		},
	}
	payload.register(cmd, "action payload")
	return cmd
}

func (c *cli) batchCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Invoke several actions concurrently",
		Long: `Invoke several actions concurrently from a file holding a list of calls:

  - cell_id: finance/tax-and-fee
    action: calculateTax
    payload: {amount: 100}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var calls []dispatch.CallRequest
			if err := readDocument(raw, &calls); err != nil {
				return err
			}
			var out struct {
				Results []map[string]any `json:"results"`
			}
			body := map[string]any{"calls": calls}
			if err := c.client.do(cmd.Context(), "POST", apiPrefix+"/dispatch/batch", body, &out); err != nil {
				return err
			}
			return c.print(out.Results)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "calls file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (c *cli) breakersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Show circuit breaker states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out []dispatch.BreakerStatus
			if err := c.client.do(cmd.Context(), "GET", apiPrefix+"/breakers", nil, &out); err != nil {
				return err
			}
			return c.print(out)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset SECTOR/NAME",
		Short: "Close the breaker of a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seg, err := cellSegment(args[0])
			if err != nil {
				return err
			}
			path := apiPrefix + "/breakers/" + seg + "/reset"
			var out dispatch.BreakerStatus
			if err := c.client.do(cmd.Context(), "POST", path, nil, &out); err != nil {
				return err
			}
			return c.print(out)
		},
	})
	return cmd
}
