package main

import (
	"fmt"
	"strings"

	"github.com/metalagman/socratic/internal/counselor"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/metalagman/socratic/internal/tui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func sessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run questioning sessions",
	}
	cmd.AddCommand(sessionStartCmd(opts))
	cmd.AddCommand(sessionAskCmd(opts))
	cmd.AddCommand(sessionAnswerCmd(opts))
	cmd.AddCommand(sessionTurnCmd(opts))
	cmd.AddCommand(sessionCompleteCmd(opts))
	cmd.AddCommand(sessionQuestionsCmd(opts))
	cmd.AddCommand(sessionChatCmd(opts))
	return cmd
}

func sessionStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <project-id>",
		Short: "Start a session for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			s, err := a.Counselor.StartSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), s)
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID)
			return nil
		},
	}
}

func sessionAskCmd(opts *rootOptions) *cobra.Command {
	var text, category string
	cmd := &cobra.Command{
		Use:   "ask <session-id>",
		Short: "Ask the next question, generated or given with --text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			var question model.Question
			if text != "" {
				question, err = a.Counselor.AddQuestion(ctx, counselor.AddQuestionInput{
					SessionID: args[0],
					Text:      text,
					Category:  category,
				})
			} else {
				question, err = a.Counselor.NextQuestion(ctx, args[0])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, question)
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", question.ID, question.Category, question.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "ask this question instead of generating one")
	cmd.Flags().StringVar(&category, "category", "", "category of the --text question")
	return cmd
}

func sessionAnswerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <session-id> <question-id> <answer>",
		Short: "Answer a question and record the extracted specifications",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := a.Pipeline.SubmitAnswer(cmd.Context(), pipeline.SubmitAnswerInput{
				SessionID:  args[0],
				QuestionID: args[1],
				Answer:     strings.Join(args[2:], " "),
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, res)
		},
	}
}

func sessionTurnCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "turn <session-id> <text>",
		Short: "Record a free conversation turn",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := a.Pipeline.SubmitTurn(cmd.Context(), pipeline.SubmitTurnInput{
				SessionID: args[0],
				Text:      strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, res)
		},
	}
}

func sessionCompleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Complete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			s, err := a.Counselor.CompleteSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), s)
			}
			log.Info().Msgf("session %s completed", s.ID)
			return nil
		},
	}
}

func sessionQuestionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "questions <session-id>",
		Short: "List the questions asked in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			items, err := a.Counselor.Questions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, items)
			}
			for _, q := range items {
				fmt.Fprintf(out, "%s\t%s\t%s\n", q.ID, q.Category, q.Text)
			}
			return nil
		},
	}
}

func sessionChatCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat <project-id>",
		Short: "Answer questions interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			project, err := a.Counselor.Project(ctx, args[0])
			if err != nil {
				return err
			}
			if sessionID == "" {
				s, err := a.Counselor.StartSession(ctx, project.ID)
				if err != nil {
					return err
				}
				sessionID = s.ID
			}
			return tui.Run(tui.New(ctx, a.Counselor, a.Pipeline, project, sessionID))
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an active session instead of starting one")
	return cmd
}
