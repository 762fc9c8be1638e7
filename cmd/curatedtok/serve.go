package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/example/go-curated-tokenizers/internal/pretokenize"
	"github.com/example/go-curated-tokenizers/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tokenizer HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			// A tokenizer that fails to load is disabled; its endpoints answer 503.
			var (
				wp server.WordPieceTokenizer
				sp server.SentenceTokenizer
			)

			if v, err := loadVocabulary(cfg); err != nil {
				slog.Warn("wordpiece disabled", slog.String("error", err.Error()))
			} else {
				wp = v
			}

			if p, err := loadProcessor(cfg); err != nil {
				slog.Warn("sentencepiece disabled", slog.String("error", err.Error()))
			} else {
				sp = p
			}

			if wp == nil && sp == nil {
				return errors.New("neither a wordpiece vocabulary nor a sentencepiece model could be loaded")
			}

			srv := server.New(cfg, wp, sp).
				WithLogger(slog.Default()).
				WithPretokenizer(pretokenize.NewBasic(pretokenize.Options{
					Lowercase:    cfg.WordPiece.Lowercase,
					StripAccents: cfg.WordPiece.StripAccents,
				}))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	return cmd
}
