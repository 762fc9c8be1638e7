// Package doctor provides preflight checks for the configured tokenizer
// artifacts.
package doctor

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/example/go-curated-tokenizers/internal/sentencepiece"
	"github.com/example/go-curated-tokenizers/internal/wordpiece"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds the artifacts to check. An empty path skips its check.
type Config struct {
	// VocabPath is a WordPiece vocab.txt.
	VocabPath string
	// ModelPath is a trained SentencePiece model.
	ModelPath string
	// Engine selects the SentencePiece engine used to load ModelPath.
	Engine sentencepiece.Kind
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- wordpiece vocabulary ---------------------------------------------
	if cfg.VocabPath == "" {
		fmt.Fprintf(w, "%s wordpiece vocabulary: skipped\n", PassMark)
	} else if v, err := wordpiece.LoadFile(cfg.VocabPath); err != nil {
		res.fail(fmt.Sprintf("wordpiece vocabulary: %v", err))
		fmt.Fprintf(w, "%s wordpiece vocabulary: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s wordpiece vocabulary: %s (%s)\n", PassMark, cfg.VocabPath, describeVocabulary(v))
	}

	// ---- sentencepiece model ----------------------------------------------
	if cfg.ModelPath == "" {
		fmt.Fprintf(w, "%s sentencepiece model: skipped\n", PassMark)
	} else if p, err := sentencepiece.LoadFile(cfg.ModelPath, sentencepiece.WithKind(cfg.Engine)); err != nil {
		res.fail(fmt.Sprintf("sentencepiece model: %v", err))
		fmt.Fprintf(w, "%s sentencepiece model: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s sentencepiece model: %s (%s)\n", PassMark, cfg.ModelPath, describeModel(p))
	}

	return res
}

func describeVocabulary(v *wordpiece.Vocabulary) string {
	continuations := 0
	for _, piece := range v.ToList() {
		if len(piece) > len(wordpiece.ContinuationPrefix) && strings.HasPrefix(piece, wordpiece.ContinuationPrefix) {
			continuations++
		}
	}

	return fmt.Sprintf("%d entries, %d continuation", v.Len(), continuations)
}

func describeModel(p *sentencepiece.Processor) string {
	kind, _ := p.Kind()
	size, _ := p.Len()
	unk, _ := p.UnkID()
	bos, hasBOS, _ := p.BOSID()
	eos, hasEOS, _ := p.EOSID()
	pad, hasPad, _ := p.PadID()

	return fmt.Sprintf("%s, %d pieces, unk=%d bos=%s eos=%s pad=%s",
		kind, size, unk, formatID(bos, hasBOS), formatID(eos, hasEOS), formatID(pad, hasPad))
}

func formatID(id int, ok bool) string {
	if !ok {
		return "-"
	}
	return strconv.Itoa(id)
}
