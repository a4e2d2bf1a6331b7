package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/migraineai/voicelog/internal/extract"
)

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [text|-]",
		Short: "Extract an episode payload from a transcript",
		Long: `Extract a structured episode from a transcript and print it with the
dialogue context (collected, missing and provisional fields).

The transcript is read from the arguments, or from stdin when it is "-" or
omitted.

Examples:
  voicelog extract "it started 2 hours ago, 7 out of 10, behind my left eye"
  echo "woke up with a splitting headache" | voicelog extract -
  voicelog --llm openai/gpt-4o-mini extract "..."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := a.service(serviceOpts{live: a.llmFlag != "", requireLM: true})
			if err != nil {
				return err
			}
			res, err := svc.Extract(cmd.Context(), transcript)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newTurnCmd(a *app) *cobra.Command {
	var (
		payloadJSON string
		askedField  string
	)
	cmd := &cobra.Command{
		Use:   "turn [text|-]",
		Short: "Run one dialogue turn and print the next question",
		Long: `Merge a transcript into the episode collected so far and print the
merged payload with the assistant's next follow-up question.

Examples:
  voicelog turn "it's about a 6"
  voicelog turn --payload '{"intensity": 6}' --asked start_time "not sure"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(args, cmd.InOrStdin())
			if err != nil && !errors.Is(err, errNoTranscript) {
				return err
			}
			svc, err := a.service(serviceOpts{live: a.llmFlag != "", requireLM: true})
			if err != nil {
				return err
			}

			var prior *extract.Payload
			if strings.TrimSpace(payloadJSON) != "" {
				var an extract.AnalysisResult
				if err := json.Unmarshal([]byte(payloadJSON), &an); err != nil {
					return fmt.Errorf("parsing --payload: %w", err)
				}
				p := svc.Canonicalize(an)
				prior = &p
			}

			res, err := svc.Turn(cmd.Context(), transcript, prior, askedField)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "episode collected so far, as JSON")
	cmd.Flags().StringVar(&askedField, "asked", "", "field the previous question asked about")
	return cmd
}

var errNoTranscript = errors.New("no transcript given")

// readTranscript joins the arguments, or reads stdin for "-" or no
// arguments.
func readTranscript(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errNoTranscript
	}
	return text, nil
}
