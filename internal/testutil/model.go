package testutil

import (
	"os"
	"path/filepath"
	"testing"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

// UnigramModel serializes pieces as a SentencePiece UNIGRAM model. "<unk>"
// becomes the UNKNOWN piece, "<s>", "</s>" and "<pad>" become CONTROL
// pieces, and every other piece is NORMAL with a score of -1, so the
// segmentation with the fewest pieces wins.
func UnigramModel(tb testing.TB, pieces ...string) []byte {
	tb.Helper()

	var model gosp.ModelProto
	for _, p := range pieces {
		typ := gosp.ModelProto_SentencePiece_NORMAL
		score := float32(-1)

		switch p {
		case "<unk>":
			typ, score = gosp.ModelProto_SentencePiece_UNKNOWN, 0
		case "<s>", "</s>", "<pad>":
			typ, score = gosp.ModelProto_SentencePiece_CONTROL, 0
		}

		model.Pieces = append(model.Pieces, &gosp.ModelProto_SentencePiece{
			Piece: proto.String(p),
			Score: proto.Float32(score),
			Type:  typ.Enum(),
		})
	}

	data, err := proto.Marshal(&model)
	if err != nil {
		tb.Fatalf("marshal model: %v", err)
	}

	return data
}

// WriteFile writes data to name inside a fresh temporary directory and
// returns the path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}

	return path
}
