package wordpiece

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MissingID is the id emitted for segments that matched no piece.
const MissingID int64 = -1

// SegmentKind tells found segments from missing ones.
type SegmentKind uint8

const (
	// Found segments matched a vocabulary piece.
	Found SegmentKind = iota + 1
	// Missing segments cover a single rune that no piece starts with.
	Missing
)

func (k SegmentKind) String() string {
	switch k {
	case Found:
		return "found"
	case Missing:
		return "missing"
	default:
		return "invalid"
	}
}

// Segment is one step of a split. Piece, ID and Continuation are only set
// for Found segments. Start and End are byte offsets into the split token.
type Segment struct {
	Kind         SegmentKind
	Piece        string
	ID           int
	Continuation bool
	Start        int
	End          int
}

// Split divides token into pieces using greedy longest-match-first scanning.
// When no piece matches at the current position a Missing segment covering
// one rune is emitted and scanning resumes after it, so the segments always
// cover the whole token. An empty token yields no segments.
func (v *Vocabulary) Split(token string) []Segment {
	if token == "" {
		return nil
	}

	segments := make([]Segment, 0, 4)
	for start := 0; start < len(token); {
		id, size, continuation := v.root.longest(token[start:], start == 0)
		if id == noEntry {
			_, width := utf8.DecodeRuneInString(token[start:])
			segments = append(segments, Segment{Kind: Missing, Start: start, End: start + width})
			start += width

			continue
		}

		segments = append(segments, Segment{
			Kind:         Found,
			Piece:        v.entries[id].text,
			ID:           id,
			Continuation: continuation,
			Start:        start,
			End:          start + size,
		})
		start += size
	}

	return segments
}

// Encoding is the id/piece form of a split. Pieces[i] is nil where IDs[i]
// is MissingID.
type Encoding struct {
	IDs    []int64   `json:"ids"`
	Pieces []*string `json:"pieces"`
}

// Encode splits token and formats the result: the first piece is emitted
// as is, every later piece gets ContinuationPrefix, and missing segments
// become MissingID with a nil piece.
func (v *Vocabulary) Encode(token string) Encoding {
	segments := v.Split(token)

	enc := Encoding{
		IDs:    make([]int64, 0, len(segments)),
		Pieces: make([]*string, 0, len(segments)),
	}
	for i, seg := range segments {
		if seg.Kind == Missing {
			enc.IDs = append(enc.IDs, MissingID)
			enc.Pieces = append(enc.Pieces, nil)

			continue
		}

		piece := seg.Piece
		if i > 0 {
			piece = ContinuationPrefix + piece
		}
		enc.IDs = append(enc.IDs, int64(seg.ID))
		enc.Pieces = append(enc.Pieces, &piece)
	}

	return enc
}

// Decode concatenates the pieces for ids without their markers. MissingID
// and out-of-range ids fail with ErrUnknownID.
func (v *Vocabulary) Decode(ids []int64) (string, error) {
	var b strings.Builder
	for i, id := range ids {
		if !v.IsValidID(id) {
			return "", fmt.Errorf("%w: %d at position %d", ErrUnknownID, id, i)
		}
		b.WriteString(v.entries[id].text)
	}

	return b.String(), nil
}
