// Package cli defines the gridrun command line interface.
package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

const description = `
Gridrun

Task orchestration over a shared tabular store.
Work groups are discovered from the grid header,
tasks are claimed, executed and answered in place.
`

type RootCommand struct {
	cmd    *cobra.Command
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand creates the parent of all sub-commands.
func NewRootCommand(stdout, stderr io.Writer) *RootCommand {
	root := &RootCommand{stdout: stdout, stderr: stderr}

	root.cmd = &cobra.Command{
		Use:           "gridrun",
		Short:         strings.TrimSpace(description),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.cmd.SetOut(stdout)
	root.cmd.SetErr(stderr)

	flags := root.cmd.PersistentFlags()
	flags.SortFlags = true
	flags.StringP("config", "c", "", "path to the configuration file")
	flags.BoolP("verbose", "v", false, "print details")
	flags.String("grid-url", "", "base URL of the grid cell API, empty selects the in-memory grid")
	flags.String("grid-token", "", "grid API token")
	flags.String("node-id", "", "scheduler node ID, defaults to hostname-PID")
	flags.String("probe-schedule", config.DefaultConfig().ProbeSchedule, "cron schedule of the opportunistic prober, empty disables it")

	root.cmd.AddCommand(newRunCommand(root))
	root.cmd.AddCommand(newInspectCommand(root))
	return root
}

// Execute runs the command and returns the process exit code,
// a multi error is flattened to a single line.
func (v *RootCommand) Execute() int {
	if err := v.cmd.Execute(); err != nil {
		_, _ = io.WriteString(v.stderr, "Error: "+errors.Format(err)+"\n")
		return 1
	}
	return 0
}

// loadConfig merges defaults, the optional configuration file,
// GRIDRUN_* environment variables and the command flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("GRIDRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"grid.url":       "grid-url",
		"grid.token":     "grid-token",
		"node-id":        "node-id",
		"probe-schedule": "probe-schedule",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return cfg, err
		}
	}

	if file, _ := flags.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.PrefixErrorf(err, `cannot read configuration file "%s"`, file)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.PrefixError(err, "invalid configuration")
	}

	if err := cfg.Validate(cmd.Context()); err != nil {
		return cfg, errors.PrefixError(err, "invalid configuration")
	}
	return cfg, nil
}
