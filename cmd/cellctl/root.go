package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli is the state shared by every subcommand.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	client *apiClient
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}
	var cfgFile string

	root := &cobra.Command{
		Use:   "cellctl",
		Short: "Operate a cellbus server",
		Long: `cellctl publishes cells, moves release channels, calls actions and runs
tissues against the HTTP API of a cellbus server.

Settings come from flags, CELLCTL_* environment variables and an optional
YAML file (default: ~/.config/cellctl/config.yaml), in that order.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cfgFile)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file")
	flags.StringP("server", "s", "http://localhost:8080", "cellbus server URL")
	flags.Duration("timeout", 30*time.Second, "request timeout")
	flags.StringP("output", "o", "json", "output format: json, yaml")
	for _, name := range []string{"server", "timeout", "output"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		c.publishCmd(),
		c.listCmd(),
		c.statsCmd(),
		c.resolveCmd(),
		c.channelCmd(),
		c.promoteCmd(),
		c.callCmd(),
		c.batchCmd(),
		c.breakersCmd(),
		c.tissueCmd(),
		c.organCmd(),
		c.healthCmd(),
	)
	return root
}

func (c *cli) init(cfgFile string) error {
	c.v.SetEnvPrefix("CELLCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath("$HOME/.config/cellctl")
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	switch f := c.v.GetString("output"); f {
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid output format: %s", f)
	}

	server := strings.TrimRight(c.v.GetString("server"), "/")
	if server == "" {
		return errors.New("server URL is required")
	}
	c.client = &apiClient{
		base: server,
		http: &http.Client{Timeout: c.v.GetDuration("timeout")},
	}
	return nil
}

// print writes v in the configured output format.
func (c *cli) print(v any) error {
	return writeOutput(c.out, c.v.GetString("output"), v)
}
