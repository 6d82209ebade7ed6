package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/handylife-debug/webwaka-main-sub008/registry"
)

// publishBody mirrors the server's publish request.
type publishBody struct {
	Manifest  registry.Manifest `json:"manifest"`
	Artifacts struct {
		Endpoint     string          `json:"endpoint,omitempty"`
		ServerBundle []byte          `json:"server_bundle,omitempty"`
		ClientBundle []byte          `json:"client_bundle,omitempty"`
		Schema       json.RawMessage `json:"schema,omitempty"`
	} `json:"artifacts"`
	Channel string `json:"channel,omitempty"`
}

// cellSegment checks the sector/name form of a cell id and escapes it for
// use in a path.
func cellSegment(id string) (string, error) {
	sector, name, ok := strings.Cut(id, "/")
	if !ok || sector == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("cell id must be sector/name, got %q", id)
	}
	return url.PathEscape(sector) + "/" + url.PathEscape(name), nil
}

func cellPath(id string) (string, error) {
	seg, err := cellSegment(id)
	if err != nil {
		return "", err
	}
	return apiPrefix + "/cells/" + seg, nil
}

func (c *cli) publishCmd() *cobra.Command {
	var (
		manifestFile string
		body         publishBody
		schemaFile   string
		serverFile   string
		clientFile   string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a cell version",
		Long: `Publish a cell version from a YAML or JSON manifest.

Examples:
  cellctl publish -f ledger.yaml --endpoint http://ledger:9000
  cellctl publish -f ledger.yaml --endpoint nats://cells.ledger --schema schema.json --channel beta`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(manifestFile)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			if err := readDocument(data, &body.Manifest); err != nil {
				return err
			}
			if schemaFile != "" {
				raw, err := os.ReadFile(schemaFile)
				if err != nil {
					return fmt.Errorf("read schema: %w", err)
				}
				if !json.Valid(raw) {
					return fmt.Errorf("schema %s is not valid JSON", schemaFile)
				}
				body.Artifacts.Schema = raw
			}
			if serverFile != "" {
				if body.Artifacts.ServerBundle, err = os.ReadFile(serverFile); err != nil {
					return fmt.Errorf("read server bundle: %w", err)
				}
			}
			if clientFile != "" {
				if body.Artifacts.ClientBundle, err = os.ReadFile(clientFile); err != nil {
					return fmt.Errorf("read client bundle: %w", err)
				}
			}

			var entry registry.Entry
			if err := c.client.do(cmd.Context(), "POST", apiPrefix+"/cells", body, &entry); err != nil {
				return err
			}
			return c.print(entry)
		},
	}
	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "manifest file (YAML or JSON)")
	cmd.Flags().StringVar(&body.Artifacts.Endpoint, "endpoint", "", "invocation endpoint (http://, https:// or nats://)")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "action schema file (JSON)")
	cmd.Flags().StringVar(&serverFile, "server-bundle", "", "server bundle file")
	cmd.Flags().StringVar(&clientFile, "client-bundle", "", "client bundle file")
	cmd.Flags().StringVar(&body.Channel, "channel", "", "point this channel at the new version")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var sector string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cells, optionally in one sector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := apiPrefix + "/cells"
			if sector != "" {
				path += "?sector=" + url.QueryEscape(sector)
			}
			var entries []registry.Entry
			if err := c.client.do(cmd.Context(), "GET", path, nil, &entries); err != nil {
				return err
			}
			return c.print(entries)
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "filter by sector")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats SECTOR/NAME",
		Short: "Show usage and version statistics of a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cellPath(args[0])
			if err != nil {
				return err
			}
			var stats registry.CellStats
			if err := c.client.do(cmd.Context(), "GET", path+"/stats", nil, &stats); err != nil {
				return err
			}
			return c.print(stats)
		},
	}
}

func (c *cli) resolveCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "resolve SECTOR/NAME",
		Short: "Resolve a channel to a version and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cellPath(args[0])
			if err != nil {
				return err
			}
			path += "/resolve"
			if channel != "" {
				path += "?channel=" + url.QueryEscape(channel)
			}
			var res registry.Resolution
			if err := c.client.do(cmd.Context(), "GET", path, nil, &res); err != nil {
				return err
			}
			return c.print(res)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel to resolve (server default when empty)")
	return cmd
}

func (c *cli) channelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channel SECTOR/NAME CHANNEL VERSION",
		Short: "Point a channel at a published version",
		Long: `Point a channel at a published version. Moving a channel back is a rollback.

Example:
  cellctl channel finance/tax-and-fee stable 1.0.0`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cellPath(args[0])
			if err != nil {
				return err
			}
			body := map[string]string{"version": args[2]}
			var entry registry.Entry
			if err := c.client.do(cmd.Context(), "PUT", path+"/channels/"+url.PathEscape(args[1]), body, &entry); err != nil {
				return err
			}
			return c.print(entry)
		},
	}
}

func (c *cli) promoteCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "promote SECTOR/NAME",
		Short: "Copy one channel's version to another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cellPath(args[0])
			if err != nil {
				return err
			}
			body := map[string]string{"from": from, "to": to}
			var entry registry.Entry
			if err := c.client.do(cmd.Context(), "POST", path+"/promote", body, &entry); err != nil {
				return err
			}
			return c.print(entry)
		},
	}
	cmd.Flags().StringVar(&from, "from", "beta", "source channel")
	cmd.Flags().StringVar(&to, "to", "stable", "target channel")
	return cmd
}
