package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-curated-tokenizers/internal/doctor"
	"github.com/example/go-curated-tokenizers/internal/sentencepiece"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured vocabulary and model load",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			kind, err := sentencepiece.ParseKind(cfg.SentencePiece.Engine)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result := doctor.Run(doctor.Config{
				VocabPath: cfg.Paths.VocabPath,
				ModelPath: cfg.Paths.ModelPath,
				Engine:    kind,
			}, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}
