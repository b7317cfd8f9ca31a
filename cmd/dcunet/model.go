package main

import (
	"encoding/json"
	"fmt"

	"github.com/example/go-dcunet/internal/dcunet"
	"github.com/example/go-dcunet/internal/enhance"
	"github.com/example/go-dcunet/internal/masknet"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Checkpoint inspection and creation commands",
	}

	cmd.AddCommand(newModelArgsCmd())
	cmd.AddCommand(newModelInitCmd())
	cmd.AddCommand(newModelArchsCmd())
	return cmd
}

func newModelArgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "args",
		Short: "Print the model_args stored in the checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			args, err := dcunet.ReadModelArgs(cfg.Paths.ModelPath)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(args.Map())
		},
	}
}

func newModelInitCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a checkpoint with freshly initialized weights",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			args, err := enhance.ArgsFromConfig(cfg.Model)
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.ModelPath
			}

			if err := dcunet.InitCheckpoint(out, args, cfg.Model.Seed); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, seed %d)\n", out, args.Architecture, cfg.Model.Seed)
			return err
		},
	}

	cmd.Flags().StringVar(&out, "output", "", "Checkpoint path (defaults to --paths-model-path)")

	return cmd
}

func newModelArchsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archs",
		Short: "List registered mask network architectures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range masknet.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
