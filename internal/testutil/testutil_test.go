package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-curated-tokenizers/internal/testutil"
)

func TestRequireArtifact_Env(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("a\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(testutil.EnvVocab, path)

	got := testutil.RequireArtifact(t, testutil.EnvVocab, "does/not/matter.txt")
	if got != path {
		t.Errorf("RequireArtifact = %q; want %q", got, path)
	}
}

func TestRequireArtifact_SkipsWhenEnvPointsNowhere(t *testing.T) {
	t.Setenv(testutil.EnvUnigramModel, "/nonexistent/toy.model")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireArtifact(fakeT, testutil.EnvUnigramModel, "models/toy.model")
	if !skipped {
		t.Error("expected RequireArtifact to skip when the env path is absent")
	}
}

func TestRequireArtifact_SkipsWhenAbsent(t *testing.T) {
	t.Setenv(testutil.EnvUnigramModel, "")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireArtifact(fakeT, testutil.EnvUnigramModel, "no-such-dir/unigram-7f3a.model")
	if !skipped {
		t.Error("expected RequireArtifact to skip when the artifact is absent")
	}
}

func TestFindUp(t *testing.T) {
	// go.mod sits at the repository root, two levels above this package.
	p, ok := testutil.FindUp("go.mod")
	if !ok {
		t.Fatal("FindUp(go.mod) found nothing")
	}

	if filepath.Base(p) != "go.mod" {
		t.Errorf("FindUp(go.mod) = %q", p)
	}
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Do NOT call s.TB.Skip, that would actually skip the outer test.
}

func TestUnigramModel_WriteFile(t *testing.T) {
	data := testutil.UnigramModel(t, "<unk>", "<s>", "</s>", "▁a")
	if len(data) == 0 {
		t.Fatal("UnigramModel returned no bytes")
	}

	path := testutil.WriteFile(t, "toy.model", data)

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	if string(got) != string(data) {
		t.Error("WriteFile content differs from input")
	}
}
