package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weavemesh/weave/runner"
	"github.com/weavemesh/weave/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a workflow to completion",
}

var runWorkflowCmd = &cobra.Command{
	Use:   "workflow <path.json>",
	Short: "parse a workflow document and run it against this node's swarm",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflow,
}

func init() {
	runCmd.AddCommand(runWorkflowCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("weaved: read %s: %w", args[0], err)
	}
	w, err := workflow.ParseWorkflowJSON(data)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer n.shutdown(context.Background())

	if n.runNetwork != nil {
		go func() {
			_ = n.runNetwork(ctx)
		}()
	}

	r := runner.New(runner.Config{
		Store:     n.Store,
		Evaluator: n.Evaluator,
		Network:   n.Network,
		Emitter:   n.Emitter,
	})

	wfCID, err := r.RunWorkflow(ctx, w, workflowNameFromPath(args[0]))
	if err != nil {
		return fmt.Errorf("weaved: start workflow: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "workflow %s started\n", wfCID)

	info, err := r.Wait(ctx, wfCID)
	if err != nil {
		return fmt.Errorf("weaved: workflow %s: %w", wfCID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "workflow %s complete: %d/%d tasks\n", wfCID, info.ProgressCount, info.NumTasks)
	return nil
}

func workflowNameFromPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
