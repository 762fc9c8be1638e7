package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSentencePieceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sentencepiece",
		Aliases: []string{"sp"},
		Short:   "Encode and decode text with a SentencePiece model",
	}

	cmd.AddCommand(newSentencePieceEncodeCmd())
	cmd.AddCommand(newSentencePieceDecodeCmd())
	cmd.AddCommand(newSentencePieceInfoCmd())
	cmd.AddCommand(newSentencePieceExportCmd())

	return cmd
}

func newSentencePieceEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode text...",
		Short: "Encode text; multiple arguments are joined with spaces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			p, err := loadProcessor(cfg)
			if err != nil {
				return err
			}

			tokens, err := p.Encode(strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := struct {
				IDs    []int    `json:"ids"`
				Pieces []string `json:"pieces"`
			}{
				IDs:    make([]int, len(tokens)),
				Pieces: make([]string, len(tokens)),
			}
			for i, tok := range tokens {
				out.IDs[i] = tok.ID
				out.Pieces[i] = tok.Text
			}

			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newSentencePieceDecodeCmd() *cobra.Command {
	var (
		ids    []int
		pieces []string
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode --ids or --pieces back to text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			useIDs := cmd.Flags().Changed("ids")
			usePieces := cmd.Flags().Changed("pieces")
			if useIDs == usePieces {
				return errors.New("pass exactly one of --ids or --pieces")
			}

			p, err := loadProcessor(cfg)
			if err != nil {
				return err
			}

			var text string
			if useIDs {
				text, err = p.DecodeFromIDs(ids)
			} else {
				text, err = p.DecodeFromPieces(pieces)
			}
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]string{"text": text})
		},
	}

	cmd.Flags().IntSliceVar(&ids, "ids", nil, "Comma-separated piece ids")
	cmd.Flags().StringSliceVar(&pieces, "pieces", nil, "Comma-separated pieces")

	return cmd
}

type modelInfo struct {
	Kind  string `json:"kind"`
	Size  int    `json:"size"`
	UnkID int    `json:"unk_id"`
	BOSID *int   `json:"bos_id"`
	EOSID *int   `json:"eos_id"`
	PadID *int   `json:"pad_id"`
}

func optionalID(id int, ok bool) *int {
	if !ok {
		return nil
	}
	return &id
}

func newSentencePieceInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print vocabulary size and special ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			p, err := loadProcessor(cfg)
			if err != nil {
				return err
			}

			// A loaded processor answers every query.
			kind, _ := p.Kind()
			size, _ := p.Len()
			unk, _ := p.UnkID()
			bos, hasBOS, _ := p.BOSID()
			eos, hasEOS, _ := p.EOSID()
			pad, hasPad, _ := p.PadID()

			return writeJSON(cmd.OutOrStdout(), modelInfo{
				Kind:  string(kind),
				Size:  size,
				UnkID: unk,
				BOSID: optionalID(bos, hasBOS),
				EOSID: optionalID(eos, hasEOS),
				PadID: optionalID(pad, hasPad),
			})
		},
	}
}

func newSentencePieceExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the serialized model bytes to --out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				return errors.New("--out is required")
			}

			p, err := loadProcessor(cfg)
			if err != nil {
				return err
			}

			data, err := p.Serialize()
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write model: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), out)
			return err
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Destination path")

	return cmd
}
