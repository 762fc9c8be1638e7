// Package testutil provides shared skip helpers for tests that need real
// tokenizer artifacts.
//
// Each helper calls t.Skipf with a clear human-readable reason when the
// artifact is absent, so tests remain runnable in partial environments
// without failing noisily.
//
// Typical usage:
//
//	func TestRealModel(t *testing.T) {
//	    path := testutil.RequireArtifact(t, testutil.EnvUnigramModel, "models/toy.model")
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	// EnvUnigramModel points at a trained SentencePiece unigram model.
	EnvUnigramModel = "CURATEDTOK_TEST_UNIGRAM_MODEL"
	// EnvVocab points at a WordPiece vocab.txt.
	EnvVocab = "CURATEDTOK_TEST_VOCAB"
)

// RequireArtifact returns the path of a test artifact. The environment
// variable env takes precedence; otherwise rel is searched for in the
// working directory and its parents. The test is skipped when neither
// yields an existing file.
func RequireArtifact(tb testing.TB, env, rel string) string {
	tb.Helper()

	if p := os.Getenv(env); p != "" {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("artifact not found at %s=%q", env, p)
			return ""
		}

		return p
	}

	if p, ok := FindUp(rel); ok {
		return p
	}

	tb.Skipf("%s not found; set %s to run this test", rel, env)

	return ""
}

// FindUp looks for rel in the working directory and each parent.
func FindUp(rel string) (string, bool) {
	dir, err := filepath.Abs(".")
	if err != nil {
		return "", false
	}

	for {
		candidate := filepath.Join(dir, rel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}

		dir = parent
	}
}
