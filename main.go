// Package main implements the agentstack binary, a deployment CLI for AWS
// Bedrock AgentCore application stacks: container registry, agent runtime
// with long-term memory, OAuth2 credential provider, and MCP gateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/agentstack-io/agentstack/internal/stack"
)

const usage = `Usage: agentstack <command> [flags]

Commands:
  plan      show the changes a deploy would make
  deploy    realize the full stack against AWS
  status    check deployed resources and report drift
  outputs   print the exported outputs of the last deploy
  destroy   tear down all deployed resources
  version   print version information

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "agentstack: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("agentstack", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "agentstack.yaml", "deploy config file")
	imageRef := flags.String("image", "", "external artifact reference overriding the derived default")
	statePath := flags.String("state", "", "state file path (default .agentstack/<app>.state.json)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}

	if len(args) == 0 {
		flags.Usage()
		return fmt.Errorf("no command given")
	}
	command := args[0]
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	if command == "version" {
		fmt.Printf("agentstack %s (commit %s, built %s)\n", stack.Version, stack.Commit, stack.Date)
		return nil
	}

	cfg, err := stack.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *imageRef != "" {
		cfg.ImageRef = *imageRef
	}

	path := *statePath
	if path == "" {
		path = stack.DefaultStatePath(cfg.App)
	}
	store := stack.NewStateStore(path)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch command {
	case "plan":
		return runPlan(cfg, store)
	case "deploy":
		return runDeploy(ctx, cfg, store)
	case "status":
		return runStatus(ctx, cfg, store)
	case "outputs":
		return runOutputs(cfg, store)
	case "destroy":
		return runDestroy(ctx, cfg, store)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runPlan(cfg *stack.Config, store *stack.StateStore) error {
	prior, err := store.Load()
	if err != nil {
		return err
	}
	plan, err := stack.Plan(cfg, prior)
	if err != nil {
		return err
	}
	for _, c := range plan.Changes {
		fmt.Printf("  %-6s  %-20s  %s\n", c.Action, c.Type, c.Name)
	}
	fmt.Printf("\nPlan: %s\n", plan.Summary)
	return nil
}

func runDeploy(ctx context.Context, cfg *stack.Config, store *stack.StateStore) error {
	clients, err := stack.NewAWSClients(ctx, cfg)
	if err != nil {
		return err
	}
	state, err := stack.Deploy(ctx, cfg, clients, store)
	if err != nil {
		return err
	}
	fmt.Printf("Deployed %d resources.\n\nOutputs:\n", len(state.Resources))
	return printOutputs(cfg, state)
}

func runStatus(ctx context.Context, cfg *stack.Config, store *stack.StateStore) error {
	clients, err := stack.NewAWSClients(ctx, cfg)
	if err != nil {
		return err
	}
	report, err := stack.Status(ctx, cfg, clients, store)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if report.Status == stack.DeployStatusDegraded {
		return fmt.Errorf("stack is degraded")
	}
	return nil
}

func runOutputs(cfg *stack.Config, store *stack.StateStore) error {
	state, err := store.Load()
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no state found; deploy first")
	}
	return printOutputs(cfg, state)
}

func runDestroy(ctx context.Context, cfg *stack.Config, store *stack.StateStore) error {
	clients, err := stack.NewAWSClients(ctx, cfg)
	if err != nil {
		return err
	}
	if err := stack.Destroy(ctx, cfg, clients, store); err != nil {
		return err
	}
	fmt.Println("Destroy complete.")
	return nil
}

// printOutputs prints the exported outputs in sorted key order.
func printOutputs(cfg *stack.Config, state *stack.StackState) error {
	exported := stack.ExportOutputs(cfg.App, state.Outputs)
	keys := make([]string, 0, len(exported))
	for k := range exported {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s = %s\n", k, exported[k])
	}
	return nil
}
