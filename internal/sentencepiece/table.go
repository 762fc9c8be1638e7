package sentencepiece

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

const (
	// wordBoundary is the SentencePiece whitespace marker (U+2581).
	wordBoundary = "▁"
	// unknownSurface is what an unknown piece decodes to.
	unknownSurface = " ⁇ "

	bosPiece = "<s>"
	eosPiece = "</s>"
	padPiece = "<pad>"
)

// pieceTable is the id/piece view of a ModelProto shared by all engines.
type pieceTable struct {
	pieces []string
	types  []gosp.ModelProto_SentencePiece_Type
	index  map[string]int
	info   ModelInfo
	raw    []byte
	// modelType is UNIGRAM when the model has no trainer spec.
	modelType gosp.TrainerSpec_ModelType
}

func parseModel(data []byte) (*pieceTable, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: model data must not be empty", ErrFormat)
	}

	var model gosp.ModelProto
	if err := proto.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	pieces := model.GetPieces()
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: model has no pieces", ErrFormat)
	}

	t := &pieceTable{
		pieces: make([]string, len(pieces)),
		types:  make([]gosp.ModelProto_SentencePiece_Type, len(pieces)),
		index:  make(map[string]int, len(pieces)),
		info: ModelInfo{
			Size:      len(pieces),
			UnknownID: -1,
			BOSID:     -1,
			EOSID:     -1,
			PadID:     -1,
		},
		raw:       bytes.Clone(data),
		modelType: model.GetTrainerSpec().GetModelType(),
	}

	for i, piece := range pieces {
		text, typ := piece.GetPiece(), piece.GetType()
		t.pieces[i] = text
		t.types[i] = typ
		if _, dup := t.index[text]; !dup {
			t.index[text] = i
		}

		switch {
		case typ == gosp.ModelProto_SentencePiece_UNKNOWN:
			if t.info.UnknownID < 0 {
				t.info.UnknownID = i
			}
		case typ == gosp.ModelProto_SentencePiece_CONTROL && text == bosPiece:
			t.info.BOSID = i
		case typ == gosp.ModelProto_SentencePiece_CONTROL && text == eosPiece:
			t.info.EOSID = i
		case text == padPiece:
			t.info.PadID = i
		}
	}

	if t.info.UnknownID < 0 {
		return nil, fmt.Errorf("%w: model defines no unknown piece", ErrFormat)
	}

	return t, nil
}

func (t *pieceTable) pieceToID(piece string) (int, bool) {
	id, ok := t.index[piece]
	return id, ok
}

func (t *pieceTable) idToPiece(id int) (string, bool) {
	if id < 0 || id >= len(t.pieces) {
		return "", false
	}

	return t.pieces[id], true
}

// decode joins pieces, drops control pieces and turns word boundary markers
// back into spaces. Runs of BYTE pieces are reassembled into raw bytes;
// bytes that do not form valid UTF-8 decode to U+FFFD each. ids must be in
// range.
func (t *pieceTable) decode(ids []int) string {
	var (
		b       strings.Builder
		pending []byte
	)

	flush := func() {
		for len(pending) > 0 {
			r, size := utf8.DecodeRune(pending)
			b.WriteRune(r)
			pending = pending[size:]
		}
	}

	for _, id := range ids {
		if t.types[id] == gosp.ModelProto_SentencePiece_BYTE {
			if v, ok := parseBytePiece(t.pieces[id]); ok {
				pending = append(pending, v)
				continue
			}
		}

		flush()

		switch t.types[id] {
		case gosp.ModelProto_SentencePiece_CONTROL:
			continue
		case gosp.ModelProto_SentencePiece_UNKNOWN:
			b.WriteString(unknownSurface)
		default:
			b.WriteString(t.pieces[id])
		}
	}
	flush()

	text := strings.ReplaceAll(b.String(), wordBoundary, " ")

	return strings.TrimPrefix(text, " ")
}

// parseBytePiece reads the value of a byte-fallback piece such as "<0xC3>".
func parseBytePiece(piece string) (byte, bool) {
	if len(piece) != 6 || !strings.HasPrefix(piece, "<0x") || piece[5] != '>' {
		return 0, false
	}

	v, err := strconv.ParseUint(piece[3:5], 16, 8)
	if err != nil {
		return 0, false
	}

	return byte(v), true
}

func (t *pieceTable) serialize() []byte {
	return bytes.Clone(t.raw)
}
