package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weavemesh/weave/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect or scaffold this node's configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path.toml>",
	Short: "write a starter TOML config populated with weaved's defaults",
	Args:  cobra.ExactArgs(1),
	RunE:  configInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func configInit(cmd *cobra.Command, args []string) error {
	doc, err := config.WriteExample(config.Defaults())
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], []byte(doc), 0o644); err != nil {
		return fmt.Errorf("weaved: write %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
	return nil
}
