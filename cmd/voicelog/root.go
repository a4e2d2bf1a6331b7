package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/migraineai/voicelog/internal/asr"
	"github.com/migraineai/voicelog/internal/config"
	"github.com/migraineai/voicelog/internal/dialogue"
	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/llm"
	"github.com/migraineai/voicelog/internal/store"
	"github.com/migraineai/voicelog/internal/temporal"
	"github.com/migraineai/voicelog/internal/voice"
)

// Version is set at build time.
var Version = "0.1.0-dev"

// app carries global flags and the lazily opened resources shared by
// subcommands.
type app struct {
	configPath string
	dbPath     string
	llmFlag    string
	timezone   string
	verbose    bool

	cfg      config.ResolvedConfig
	logger   *slog.Logger
	closeLog func() error
	st       store.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "voicelog",
		Short: "Log migraine episodes from voice transcripts",
		Long: `voicelog extracts structured migraine episodes (onset, intensity, pain
location, symptoms, triggers, aura) from spoken reports, asks follow-up
questions for missing details and stores the result.

Without --llm, extraction runs in simulation mode: keyword heuristics only.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { a.close() },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.voicelog/config.yaml)")
	pf.StringVar(&a.dbPath, "db", "", "database path (default ~/.voicelog/voicelog.db)")
	pf.StringVar(&a.llmFlag, "llm", "", "LLM as provider/model, e.g. "+llm.DefaultFlag+" (enables live analysis)")
	pf.StringVar(&a.timezone, "tz", "", "reference timezone (default "+temporal.DefaultTimezone+")")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newExtractCmd(a),
		newTurnCmd(a),
		newTranscribeCmd(a),
		newProcessCmd(a),
		newEpisodesCmd(a),
		newDBCmd(a),
		newHarnessCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:  a.configPath,
		CLILLM:      a.llmFlag,
		CLIDBPath:   a.dbPath,
		CLITimezone: a.timezone,
		CLIVerbose:  a.verbose,
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	a.logger, a.closeLog = config.SetupLogger(cfg.LogFile.Value, cfg.Level())
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.logger.Warn("closing store", "error", err)
		}
		a.st = nil
	}
	if a.closeLog != nil {
		_ = a.closeLog()
		a.closeLog = nil
	}
}

func (a *app) openStore() (store.Store, error) {
	if a.st != nil {
		return a.st, nil
	}
	st, err := store.NewStore(store.StoreConfig{DBPath: a.cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.st = st
	return st, nil
}

func (a *app) resolver(now time.Time) (*temporal.Resolver, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := []temporal.Option{temporal.WithLocation(loc)}
	if !now.IsZero() {
		opts = append(opts, temporal.WithNow(func() time.Time { return now }))
	}
	return temporal.NewResolver(opts...), nil
}

// provider builds the configured LLM. When required is false a missing key
// is logged and reported as a nil provider.
func (a *app) provider(required bool) (llm.Provider, error) {
	flag := a.cfg.LLM.Value
	llmCfg, err := llm.ParseLLMFlag(flag)
	if err != nil {
		return nil, err
	}
	llmCfg.APIKey = a.cfg.APIKeyForProvider(flag).Value
	p, err := llm.NewProvider(llmCfg)
	if err != nil {
		if required {
			return nil, err
		}
		a.logger.Warn("LLM unavailable, using heuristics only", "llm", flag, "error", err)
		return nil, nil
	}
	return p, nil
}

func (a *app) transcriber() (asr.Transcriber, error) {
	key := a.cfg.APIKeyForProvider("openai").Value
	if key == "" {
		return nil, errors.New("transcription requires OPENAI_API_KEY")
	}
	return asr.New(key,
		asr.WithBaseURL(a.cfg.ASRBaseURL.Value),
		asr.WithModel(a.cfg.ASRModel.Value),
	), nil
}

type serviceOpts struct {
	live      bool // use the LLM analyzer and assistant
	requireLM bool // fail instead of degrading when the LLM is unavailable
	store     bool
	asr       bool
}

func (a *app) service(opts serviceOpts) (*voice.Service, error) {
	resolver, err := a.resolver(time.Time{})
	if err != nil {
		return nil, err
	}
	guard := extract.NewGuard(a.logger)
	cfg := voice.Config{
		Mapper: extract.NewMapper(resolver, guard),
		Logger: a.logger,
	}

	var provider llm.Provider
	if opts.live {
		if provider, err = a.provider(opts.requireLM); err != nil {
			return nil, err
		}
	}
	if provider != nil {
		cfg.Analyzer = extract.NewAnalyzer(provider,
			extract.WithCacheTTL(a.cfg.CacheTTLDuration()),
			extract.WithLogger(a.logger),
			extract.WithGuard(guard),
			extract.WithResolver(resolver),
		)
	}
	cfg.Assistant = dialogue.NewAssistant(provider, a.cfg.Threshold(), a.logger)

	if opts.store {
		st, err := a.openStore()
		if err != nil {
			return nil, err
		}
		cfg.Store = st
		cfg.ClipDir = clipDir(a.cfg.DBPath.Value)
	}
	if opts.asr {
		t, err := a.transcriber()
		if err != nil {
			return nil, err
		}
		cfg.Transcriber = t
	}
	return voice.New(cfg), nil
}

// clipDir keeps uploaded audio next to the database.
func clipDir(dbPath string) string {
	if dbPath == "" || strings.HasPrefix(dbPath, ":memory:") {
		return ""
	}
	return filepath.Join(filepath.Dir(dbPath), "clips")
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
