package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridrun/gridrun/internal/pkg/encoding/json"
	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/structure"
)

func newInspectCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Analyze the grid header and print the discovered work groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			verbose, _ := cmd.Flags().GetBool("verbose")
			logger := log.NewServiceLogger(root.stderr, verbose)
			defer func() {
				_ = logger.Sync()
			}()

			d, cleanup, err := newDependencies(logger, cfg.NodeID, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := structure.Analyze(cmd.Context(), d)
			if err != nil {
				return err
			}

			fmt.Fprintln(root.stdout, json.MustEncodeString(s.Groups, true))
			return nil
		},
	}
}
