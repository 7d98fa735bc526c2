package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/boardroom/internal/service/onboarding"
)

func newOnboardCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Walk the onboarding script and print the collected profile",
		Long:  "onboard asks every onboarding question on the terminal. Reply " + onboarding.SkipSentinel + " to skip a question.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			in := bufio.NewScanner(cmd.InOrStdin())
			machine := c.app.Machine

			progress, q := machine.Start(nil)
			profile := map[string]string{}
			for {
				fmt.Fprintf(out, "[%d/%d] %s\n", progress.Step+1, progress.Total, q.Prompt)
				if len(q.Options) > 0 {
					fmt.Fprintf(out, "  options: %s\n", strings.Join(q.Options, " | "))
				}
				fmt.Fprint(out, "> ")
				if !in.Scan() {
					if err := in.Err(); err != nil {
						return err
					}
					return errors.New("onboarding aborted before the last question")
				}

				result, err := machine.Advance(progress, profile, in.Text())
				if errors.Is(err, onboarding.ErrEmptyAnswer) || errors.Is(err, onboarding.ErrInvalidChoice) {
					fmt.Fprintf(out, "  not accepted: %v\n", err)
					continue
				}
				if err != nil {
					return err
				}

				progress, profile = result.Progress, result.Context
				if result.Completed {
					fmt.Fprintf(out, "\n%s\n\n", result.Welcome)
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(profile)
				}
				q = *result.Next
			}
		},
	}
}
