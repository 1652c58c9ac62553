package main

import (
	"fmt"
	"strings"

	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/spf13/cobra"
)

func conflictCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflict",
		Short: "Inspect and resolve conflicts",
	}
	cmd.AddCommand(conflictListCmd(opts))
	cmd.AddCommand(conflictShowCmd(opts))
	cmd.AddCommand(conflictResolveCmd(opts))
	return cmd
}

func conflictListCmd(opts *rootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List conflicts of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var statusPtr *model.ConflictStatus
			switch s := model.ConflictStatus(status); s {
			case "":
			case model.ConflictOpen, model.ConflictResolved, model.ConflictIgnored:
				statusPtr = &s
			default:
				return fmt.Errorf("invalid status %q: must be open, resolved or ignored", status)
			}

			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			items, err := a.Pipeline.Conflicts(cmd.Context(), args[0], statusPtr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no conflicts")
				return nil
			}
			for _, c := range items {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Status, c.Type, c.Severity, c.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "open, resolved or ignored")
	return cmd
}

func conflictShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conflict-id>",
		Short: "Show a conflict with its blocked candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			c, err := a.Pipeline.Conflict(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, c)
			}
			fmt.Fprintf(out, "%s\n%s %s conflict, %s\n%s\n", c.ID, c.Severity, c.Type, c.Status, c.Description)
			if c.Reasoning != "" {
				fmt.Fprintf(out, "reasoning: %s\n", c.Reasoning)
			}
			if len(c.SpecIDs) > 0 {
				fmt.Fprintf(out, "existing: %s\n", strings.Join(c.SpecIDs, ", "))
			}
			for _, cand := range c.Candidates {
				fmt.Fprintf(out, "candidate: %s/%s: %s\n", cand.Category, cand.Key, cand.Value)
			}
			if c.Resolution != "" {
				fmt.Fprintf(out, "resolution: %s\n", c.Resolution)
			}
			return nil
		},
	}
}

func conflictResolveCmd(opts *rootOptions) *cobra.Command {
	var kind, notes string
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve an open conflict",
		Long: "Resolve an open conflict. keep_old, replace and merge mark it resolved, ignore marks it ignored.\n" +
			"Nothing is recorded by resolving: answer again to record the new specification.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			c, score, err := a.Pipeline.ResolveConflict(cmd.Context(), pipeline.ResolveConflictInput{
				ConflictID: args[0],
				Kind:       model.ResolutionKind(kind),
				Notes:      notes,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, map[string]any{"conflict": c, "maturity_score": score})
			}
			fmt.Fprintf(out, "conflict %s %s, maturity %d%%\n", c.ID, c.Status, score)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "keep_old, replace, merge or ignore")
	cmd.Flags().StringVar(&notes, "notes", "", "optional reason")
	return cmd
}
