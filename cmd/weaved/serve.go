package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// nodeCmd starts the swarm and blocks, serving DHT/pubsub requests on
// behalf of other peers without running any workflow of its own.
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "start this peer's swarm and block, serving the network with no workflow of its own",
	RunE:  serveNode,
}

func serveNode(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer n.shutdown(cmd.Context())

	if n.runNetwork == nil {
		return fmt.Errorf("weaved: node command requires networking")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "weaved node running, ctrl-c to stop")
	return n.runNetwork(ctx)
}
