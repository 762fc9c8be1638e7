package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/example/go-curated-tokenizers/internal/config"
	"github.com/example/go-curated-tokenizers/internal/sentencepiece"
	"github.com/example/go-curated-tokenizers/internal/server"
	"github.com/example/go-curated-tokenizers/internal/wordpiece"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "curatedtok",
		Short:         "WordPiece and SentencePiece tokenizers for curated transformers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newWordPieceCmd())
	cmd.AddCommand(newSentencePieceCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg == (config.Config{}) {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}

func loadVocabulary(cfg config.Config) (*wordpiece.Vocabulary, error) {
	return wordpiece.LoadFile(cfg.Paths.VocabPath)
}

func loadProcessor(cfg config.Config) (*sentencepiece.Processor, error) {
	kind, err := sentencepiece.ParseKind(cfg.SentencePiece.Engine)
	if err != nil {
		return nil, err
	}

	return sentencepiece.LoadFile(cfg.Paths.ModelPath, sentencepiece.WithKind(kind))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
