package sentencepiece

import (
	"fmt"
	"os"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// unigramEngine runs a UNIGRAM model through the pure-Go encoder. The
// encoder only produces ids; pieces and decoding come from the table.
type unigramEngine struct {
	table *pieceTable
	proc  gosp.Sentencepiece
}

func newUnigramEngineFromFile(table *pieceTable, path string) (*unigramEngine, error) {
	proc, err := gosp.NewSentencepieceFromFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	return &unigramEngine{table: table, proc: proc}, nil
}

// newUnigramEngineFromBytes writes the model to a temporary file, since the
// encoder library only loads from a path.
func newUnigramEngineFromBytes(table *pieceTable) (*unigramEngine, error) {
	f, err := os.CreateTemp("", "sp-*.model")
	if err != nil {
		return nil, fmt.Errorf("create temp sentencepiece file: %w", err)
	}

	defer func() { _ = os.Remove(f.Name()) }() // best-effort temp file cleanup

	_, err = f.Write(table.raw)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write sentencepiece model bytes: %w", err)
	}

	path := f.Name()

	err = f.Close()
	if err != nil {
		return nil, fmt.Errorf("close sentencepiece temp file: %w", err)
	}

	return newUnigramEngineFromFile(table, path)
}

func (e *unigramEngine) Kind() Kind { return KindUnigram }

func (e *unigramEngine) Encode(text string) ([]Token, error) {
	ids := e.proc.TokenizeToIDs(text)

	tokens := make([]Token, len(ids))
	for i, id := range ids {
		piece, ok := e.table.idToPiece(int(id))
		if !ok {
			return nil, fmt.Errorf("encoder produced id %d outside the vocabulary", id)
		}
		tokens[i] = Token{ID: int(id), Text: piece}
	}

	return tokens, nil
}

func (e *unigramEngine) Decode(ids []int) (string, error) {
	return e.table.decode(ids), nil
}

func (e *unigramEngine) Info() ModelInfo { return e.table.info }

func (e *unigramEngine) PieceToID(piece string) (int, bool) { return e.table.pieceToID(piece) }

func (e *unigramEngine) IDToPiece(id int) (string, bool) { return e.table.idToPiece(id) }

func (e *unigramEngine) Serialize() []byte { return e.table.serialize() }
