package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stewardlab/steward/internal/config"
	"github.com/stewardlab/steward/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and manage the tool registry",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools and their contracts",
	RunE:  listTools,
}

var toolsPromoteCmd = &cobra.Command{
	Use:   "promote <name>",
	Short: "Promote an experimental tool to the standing set",
	Long: `Promote a tool out of the experimental class. Experimental tools are
graded at minimum formality by the assurance gate, so their actions
tend to need review; a promoted tool is graded on its contract like
any built-in.

Tools forged during a session are always registered experimental. The
promotion is recorded in config and applied when future sessions see
a tool with the promoted name.`,
	Args: cobra.ExactArgs(1),
	RunE: promoteTool,
}

func init() {
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsPromoteCmd)
}

func listTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	registry := tools.NewBuiltinRegistry(cwd, nil)
	applyPromotions(registry, cfg.Tools.Promoted, false)

	for _, c := range registry.Contracts() {
		marker := ""
		if c.Experimental {
			marker = " (experimental)"
		}
		fmt.Printf("%-12s %-9s %-28s %s%s\n",
			c.Name, c.Risk, strings.Join(c.Scopes, ","), c.Description, marker)
	}
	return nil
}

func promoteTool(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, p := range cfg.Tools.Promoted {
		if p == name {
			return fmt.Errorf("tool %s is already promoted", name)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	registry := tools.NewBuiltinRegistry(cwd, nil)
	if c, ok := registry.Contract(name); ok && !c.Experimental {
		return fmt.Errorf("tool %s is already in the standing set", name)
	}

	cfg.Tools.Promoted = append(cfg.Tools.Promoted, name)
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Promoted %s. Future sessions treat it as a standing tool.\n", name)
	if _, ok := registry.Get(name); !ok {
		fmt.Println("The name is not a built-in; the promotion applies when a session forges a tool with it.")
	}
	return nil
}
