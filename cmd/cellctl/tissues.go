package main

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/handylife-debug/webwaka-main-sub008/composition"
)

type executeBody struct {
	Input   map[string]any `json:"input"`
	Timeout string         `json:"timeout,omitempty"`
}

func readDefinition(file string, v any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	return readDocument(raw, v)
}

func (c *cli) tissueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tissue",
		Short: "Manage and run tissues",
	}

	var file string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register or replace a tissue definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var def composition.Tissue
			if err := readDefinition(file, &def); err != nil {
				return err
			}
			var stored composition.Tissue
			if err := c.client.do(cmd.Context(), "POST", apiPrefix+"/tissues", def, &stored); err != nil {
				return err
			}
			return c.print(stored)
		},
	}
	register.Flags().StringVarP(&file, "file", "f", "", "tissue definition (YAML or JSON)")
	_ = register.MarkFlagRequired("file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tissues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var defs []composition.Tissue
			if err := c.client.do(cmd.Context(), "GET", apiPrefix+"/tissues", nil, &defs); err != nil {
				return err
			}
			return c.print(defs)
		},
	}

	get := c.tissueGetter("get", "Show a tissue definition", "", func() any { return &composition.Tissue{} })
	hist := c.tissueGetter("history", "Show recent executions", "/history", func() any { return &[]composition.ExecutionResult{} })
	deps := c.tissueGetter("dependencies", "Show derived step dependencies", "/dependencies", func() any { return &[]composition.Dependency{} })
	health := c.tissueGetter("health", "Show tissue health", "/health", func() any { return &map[string]any{} })

	var (
		input   payloadFlags
		timeout time.Duration
	)
	execute := &cobra.Command{
		Use:   "execute ID",
		Short: "Execute a tissue",
		Long: `Execute a tissue. A failed execution still prints its record, including
the results of the steps that ran, and exits non-zero.

Example:
  cellctl tissue execute checkout -d '{"amount": 100}' --timeout 5s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := input.load()
			if err != nil {
				return err
			}
			body := executeBody{Input: in}
			if timeout > 0 {
				body.Timeout = timeout.String()
			}
			var res composition.ExecutionResult
			err = c.client.do(cmd.Context(), "POST", apiPrefix+"/tissues/"+url.PathEscape(args[0])+"/execute", body, &res)
			return c.printResult(res.ExecutionID != "", res, err)
		},
	}
	input.register(execute, "execution input")
	execute.Flags().DurationVar(&timeout, "timeout", 0, "execution deadline (server default when zero)")

	cmd.AddCommand(register, list, get, execute, hist, deps, health)
	return cmd
}

// tissueGetter builds a read-only "tissue <name> ID" subcommand.
func (c *cli) tissueGetter(name, short, suffix string, alloc func() any) *cobra.Command {
	return &cobra.Command{
		Use:   name + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := alloc()
			if err := c.client.do(cmd.Context(), "GET", apiPrefix+"/tissues/"+url.PathEscape(args[0])+suffix, nil, out); err != nil {
				return err
			}
			return c.print(out)
		},
	}
}

func (c *cli) organCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organ",
		Short: "Manage and run organs",
	}

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an organ from its definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var def composition.Organ
			if err := readDefinition(file, &def); err != nil {
				return err
			}
			var stored composition.Organ
			if err := c.client.do(cmd.Context(), "POST", apiPrefix+"/organs", def, &stored); err != nil {
				return err
			}
			return c.print(stored)
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "", "organ definition (YAML or JSON)")
	_ = create.MarkFlagRequired("file")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show an organ definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var def composition.Organ
			if err := c.client.do(cmd.Context(), "GET", apiPrefix+"/organs/"+url.PathEscape(args[0]), nil, &def); err != nil {
				return err
			}
			return c.print(def)
		},
	}

	var input payloadFlags
	execute := &cobra.Command{
		Use:   "execute ID",
		Short: "Execute an organ",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := input.load()
			if err != nil {
				return err
			}
			var res composition.OrganResult
			err = c.client.do(cmd.Context(), "POST", apiPrefix+"/organs/"+url.PathEscape(args[0])+"/execute", executeBody{Input: in}, &res)
			return c.printResult(res.OrganID != "", res, err)
		},
	}
	input.register(execute, "execution input")

	cmd.AddCommand(create, get, execute)
	return cmd
}

// printResult prints an execution record when the server returned one and
// passes err through.
func (c *cli) printResult(haveRecord bool, res any, err error) error {
	if haveRecord {
		if perr := c.print(res); perr != nil {
			return perr
		}
	}
	return err
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]any
			err := c.client.do(cmd.Context(), "GET", "/health", nil, &out)
			return c.printResult(len(out) > 0, out, err)
		},
	}
}
