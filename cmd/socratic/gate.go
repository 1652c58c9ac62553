package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/spf13/cobra"
)

func gateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gate <project-id>",
		Short: "Report whether a project may generate its document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			d, err := a.Pipeline.CanGenerate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), d)
			}
			printDecision(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func printDecision(w io.Writer, d maturity.Decision) {
	if d.Allowed {
		fmt.Fprintf(w, "allowed: maturity %d%%\n", d.MaturityScore)
		return
	}
	fmt.Fprintf(w, "denied: %s\nmaturity %d%%, %d open conflicts\n", d.Reason, d.MaturityScore, d.OpenConflicts)
	for _, g := range d.MissingCategories {
		fmt.Fprintf(w, "%s\t%d/%d\tneeds %d\n", g.Category, g.Current, g.Required, g.Gap)
	}
}

func generateCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "generate <project-id>",
		Short: "Generate the specification document once the gate allows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			res, err := a.Pipeline.RequestGeneration(cmd.Context(), args[0])
			var denied *pipeline.GateDeniedError
			if errors.As(err, &denied) && !opts.jsonOut {
				printDecision(out, denied.Decision)
				if denied.Coverage != nil {
					for _, g := range denied.Coverage.Gaps {
						fmt.Fprintf(out, "coverage\t%s\t%d/%d specs\n", g.Category, g.Count, g.Required)
					}
				}
				return err
			}
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(out, res)
			}
			if raw {
				_, err := io.WriteString(out, strings.TrimSpace(res.Generation.Content)+"\n")
				return err
			}
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return err
			}
			rendered, err := r.Render(res.Generation.Content)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, rendered)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal styling")
	return cmd
}
