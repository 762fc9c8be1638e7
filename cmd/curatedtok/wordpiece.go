package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/example/go-curated-tokenizers/internal/pretokenize"
	"github.com/example/go-curated-tokenizers/internal/wordpiece"
	"github.com/spf13/cobra"
)

func newWordPieceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wordpiece",
		Aliases: []string{"wp"},
		Short:   "Split tokens with a WordPiece vocabulary",
	}

	cmd.AddCommand(newWordPieceEncodeCmd())
	cmd.AddCommand(newWordPieceDecodeCmd())
	cmd.AddCommand(newWordPieceListCmd())

	return cmd
}

type tokenEncoding struct {
	Token string `json:"token"`
	wordpiece.Encoding
}

func newWordPieceEncodeCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "encode [token...]",
		Short: "Encode pre-tokenized tokens, or raw text with --text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			tokens := args
			if cmd.Flags().Changed("text") {
				if len(args) > 0 {
					return errors.New("pass either tokens or --text, not both")
				}
				tokens = pretokenize.NewBasic(pretokenize.Options{
					Lowercase:    cfg.WordPiece.Lowercase,
					StripAccents: cfg.WordPiece.StripAccents,
				}).Tokenize(text)
			}

			v, err := loadVocabulary(cfg)
			if err != nil {
				return err
			}

			out := make([]tokenEncoding, len(tokens))
			for i, tok := range tokens {
				out[i] = tokenEncoding{Token: tok, Encoding: v.Encode(tok)}
			}

			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Raw text to pre-tokenize before splitting")

	return cmd
}

func newWordPieceDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode id...",
		Short: "Concatenate the pieces for the given ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ids := make([]int64, len(args))
			for i, arg := range args {
				ids[i], err = strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("id %q: %w", arg, err)
				}
			}

			v, err := loadVocabulary(cfg)
			if err != nil {
				return err
			}

			text, err := v.Decode(ids)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]string{"text": text})
		},
	}
}

func newWordPieceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the vocabulary in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			v, err := loadVocabulary(cfg)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), v.ToList())
		},
	}
}
