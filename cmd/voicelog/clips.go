package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/migraineai/voicelog/internal/extract"
)

func newTranscribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, format, err := readAudio(args[0])
			if err != nil {
				return err
			}
			t, err := a.transcriber()
			if err != nil {
				return err
			}
			res, err := t.Transcribe(cmd.Context(), audio, format)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newProcessCmd(a *app) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "process FILE",
		Short: "Transcribe, analyze and store an audio clip as an episode",
		Long: `Run the full clip job on an audio file: record the clip, transcribe it,
analyze the transcript and save the resulting episode.

Example:
  voicelog process --user 1 ~/Downloads/attack.m4a`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user is required")
			}
			audio, format, err := readAudio(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service(serviceOpts{live: true, store: true, asr: true})
			if err != nil {
				return err
			}
			clip, err := svc.IngestClip(cmd.Context(), userID, audio, format)
			if err != nil {
				return err
			}
			ep, err := svc.SaveClip(cmd.Context(), userID, clip.ID, extract.Payload{})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ep)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "owner of the episode")
	return cmd
}

func readAudio(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading audio: %w", err)
	}
	return data, strings.TrimPrefix(filepath.Ext(path), "."), nil
}
