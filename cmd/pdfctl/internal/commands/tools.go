package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cuongbtq/pdf-gateway/internal/tools"
	"github.com/spf13/cobra"
)

// InitToolCommands registers the tools command, which needs no connections
func InitToolCommands(rootCmd *cobra.Command) {
	toolsCmd := &cobra.Command{
		Use:   "tools [NAME]",
		Short: "Print the tool catalog, or one tool's parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			if len(args) == 1 {
				return describeTool(cmd, args[0], asJSON)
			}
			return listTools(cmd, asJSON)
		},
	}
	toolsCmd.Flags().Bool("json", false, "Print JSON")

	rootCmd.AddCommand(toolsCmd)
}

func listTools(cmd *cobra.Command, asJSON bool) error {
	list := tools.List()
	if asJSON {
		return writeJSON(cmd, list)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tENGINE\tFILES\tOUTPUT")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\t%s\n", t.Name, t.Category, t.Engine, t.MinFiles, t.MaxFiles, t.OutputExt)
	}
	return tw.Flush()
}

func describeTool(cmd *cobra.Command, name string, asJSON bool) error {
	tool, err := tools.Lookup(name)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd, tool)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", tool.Title, tool.Name)
	fmt.Fprintf(out, "engine: %s, files: %d-%d, output: %s\n", tool.Engine, tool.MinFiles, tool.MaxFiles, tool.OutputExt)
	if len(tool.Params) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAM\tKIND\tREQUIRED\tDEFAULT\tRULE")
	for _, p := range tool.Params {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", p.Name, p.Kind, p.Required, dash(p.Default), dash(p.Rule))
	}
	return tw.Flush()
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
