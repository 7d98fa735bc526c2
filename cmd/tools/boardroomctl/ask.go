package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/boardroom/internal/model/event"
	"github.com/zhouzirui/boardroom/internal/service/ai"
	"github.com/zhouzirui/boardroom/internal/service/boardroom"
)

func newAskCmd(c *cli) *cobra.Command {
	var (
		asJSON  bool
		profile map[string]string
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one board orchestration and print its events",
		Long: `ask sends one message through the classifier, the persona calls and the
synthesizer, printing every event as it arrives. Onboarding is skipped; use
--profile to supply user context.`,
		Example: `  boardroomctl ask "Should we raise a seed round now?"
  boardroomctl ask --profile name=Ada --profile company_stage=Seed "@CFO @CEO runway?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" {
				return boardroom.ErrEmptyMessage
			}

			events := c.app.Engine.Stream(cmd.Context(), boardroom.RunInput{
				SessionID: "cli",
				Message:   message,
				Conversation: ai.ConversationContext{
					Profile: profile,
					Fields:  c.app.Script.Fields(),
				},
			})

			out := cmd.OutOrStdout()
			var failed bool
			for ev := range events {
				if ev.EventType() == event.TypeError {
					failed = true
				}
				if asJSON {
					if err := json.NewEncoder(out).Encode(ev); err != nil {
						return err
					}
					continue
				}
				printEvent(out, ev)
			}
			if failed {
				return fmt.Errorf("the board produced no answer")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw events as JSON lines")
	cmd.Flags().StringToStringVar(&profile, "profile", nil, "user profile fields (key=value)")
	return cmd
}

func printEvent(w io.Writer, ev event.Event) {
	switch e := ev.(type) {
	case event.Orchestration:
		fmt.Fprintf(w, "%s\n", e.Content)
		if e.Reasoning != "" {
			fmt.Fprintf(w, "  reasoning: %s\n", e.Reasoning)
		}
	case event.Routing:
		fmt.Fprintf(w, "%s\n", e.Content)
		for _, warning := range e.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
	case event.AgentResponse:
		status := fmt.Sprintf("%dms", e.LatencyMS)
		if e.Failed {
			status = e.Error
		}
		fmt.Fprintf(w, "\n%s %s [%s]\n%s\n", e.AgentEmoji, e.AgentName, status, e.Content)
	case event.Synthesis:
		title := "Board synthesis"
		if e.Aggregate {
			title = "Board answers (synthesis unavailable)"
		}
		fmt.Fprintf(w, "\n=== %s ===\n%s\n", title, e.Content)
	case event.Done:
		fmt.Fprintf(w, "\ndone: %d calls, %d ok, %d failed, %dms\n", e.PersonaCalls, e.Succeeded, e.Failed, e.DurationMS)
	case event.Error:
		fmt.Fprintf(w, "\nerror: %s\n", e.Content)
	}
}
