package main

import (
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lettera/api/internal/config"
	"lettera/api/internal/logger"
)

type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	log        *zap.Logger
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, *zap.Logger, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		log, err := logger.New(cfg.LogLevel)
		if err != nil {
			c.configErr = err
			return
		}
		c.config, c.log = cfg, log
	})
	return c.config, c.log, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" || c.Name() == "completion" {
			return true
		}
	}
	return cmd.Name() == "help"
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "lettera",
		Short:         "Handwritten letter comparison service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, _, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCompareCommand(ctx))
	rootCmd.AddCommand(newExtractCommand())

	return rootCmd
}
