package main

import (
	"fmt"

	"github.com/goliatone/go-query-cache/querycache"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func flushCmd(env *cliEnv) *cobra.Command {
	var (
		driver   string
		prefix   string
		baseTags []string
		tags     []string
	)

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Flush cached queries by tag and group",
		Long: "Flush the tagged regions named by --tag (or --base-tag when no tag is given) " +
			"and the tracked group derived from --prefix and the first base tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(baseTags) == 0 {
				return fmt.Errorf("at least one --base-tag is required")
			}

			cfg, err := env.config()
			if err != nil {
				return err
			}

			container, err := env.container(cfg, env.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer container.Close()

			opts := querycache.Options{
				Driver:   driver,
				Prefix:   prefix,
				BaseTags: baseTags,
			}
			tagged, err := container.QueryCache().Flush(commandContext(cmd), opts, tags...)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "group: %s\n", container.QueryCache().GroupKey(opts))
			fmt.Fprintf(cmd.OutOrStdout(), "tagged: %t\n", tagged)
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Store to flush (default driver when empty)")
	cmd.Flags().StringVar(&prefix, "prefix", querycache.DefaultPrefix, "Key prefix of the cached queries")
	cmd.Flags().StringSliceVar(&baseTags, "base-tag", nil, "Base tags of the model, the first one names the group")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tags to flush")
	return cmd
}

func configCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.config()
			if err != nil {
				return err
			}

			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			defer encoder.Close()
			return encoder.Encode(cfg)
		},
	}
}
