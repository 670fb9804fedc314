package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/lattice-autopilot/internal/config"
)

func initCommand(env *Env, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create .autopilot/ with a commented default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.InitDir(flags.dir); err != nil {
				return fmt.Errorf("cli: init %s: %w", flags.dir, err)
			}
			cfg, err := config.Load(flags.dir, flags.configPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(env.Out, "Initialized %s\n", cfg.ProjectConfigPath())
			return err
		},
	}
}
