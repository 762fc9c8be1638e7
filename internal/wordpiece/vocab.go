// Package wordpiece implements WordPiece vocabularies and the greedy
// longest-match-first splitting used by BERT-style models.
//
// Vocabularies use the usual file convention: a piece written with a leading
// "##" is a continuation piece that can only follow another piece inside a
// word. Pieces are stored without the marker.
package wordpiece

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ContinuationPrefix marks pieces that attach to the preceding piece.
const ContinuationPrefix = "##"

var (
	// ErrInvalidVocabulary is returned when pieces cannot form a vocabulary.
	ErrInvalidVocabulary = errors.New("invalid wordpiece vocabulary")
	// ErrRead is returned when a vocabulary stream or file cannot be read.
	ErrRead = errors.New("read wordpiece vocabulary")
	// ErrUnknownID is returned when an id is not part of the vocabulary.
	ErrUnknownID = errors.New("unknown wordpiece id")
)

// maxLineBytes bounds a single vocabulary line.
const maxLineBytes = 1 << 20

type entry struct {
	text         string
	continuation bool
}

// Vocabulary maps WordPiece pieces to ids. It is immutable once built and
// safe for concurrent use.
type Vocabulary struct {
	entries []entry
	root    *trieNode
}

// Build creates a vocabulary in which every piece gets its index as id.
// Empty pieces, pieces that are not valid UTF-8 and duplicate pieces are
// rejected with an error wrapping ErrInvalidVocabulary.
func Build(pieces []string) (*Vocabulary, error) {
	v := &Vocabulary{
		entries: make([]entry, 0, len(pieces)),
		root:    newTrieNode(),
	}

	for id, piece := range pieces {
		e, err := parseEntry(piece)
		if err != nil {
			return nil, fmt.Errorf("piece %d: %w", id, err)
		}

		if prev := v.root.insert(e.text, id, e.continuation); prev != noEntry {
			return nil, fmt.Errorf("%w: piece %d %q duplicates piece %d", ErrInvalidVocabulary, id, piece, prev)
		}

		v.entries = append(v.entries, e)
	}

	return v, nil
}

func parseEntry(piece string) (entry, error) {
	if piece == "" {
		return entry{}, fmt.Errorf("%w: empty piece", ErrInvalidVocabulary)
	}
	if !utf8.ValidString(piece) {
		return entry{}, fmt.Errorf("%w: piece %q is not valid UTF-8", ErrInvalidVocabulary, piece)
	}

	// A bare "##" is an ordinary initial piece.
	if len(piece) > len(ContinuationPrefix) && strings.HasPrefix(piece, ContinuationPrefix) {
		return entry{text: piece[len(ContinuationPrefix):], continuation: true}, nil
	}

	return entry{text: piece}, nil
}

// Load reads a newline-delimited vocabulary, one piece per line. Line i
// (0-based) receives id i. A trailing newline at the end of the stream does
// not add a piece; any other empty line is rejected.
func Load(r io.Reader) (*Vocabulary, error) {
	var pieces []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			return nil, fmt.Errorf("%w: line %d is empty", ErrInvalidVocabulary, len(pieces)+1)
		}
		pieces = append(pieces, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	return Build(pieces)
}

// LoadFile reads a vocabulary file. Open errors keep the underlying
// *fs.PathError, so errors.Is(err, fs.ErrNotExist) holds for missing files.
func LoadFile(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer func() { _ = f.Close() }()

	v, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}

	return v, nil
}

// Len returns the number of pieces.
func (v *Vocabulary) Len() int { return len(v.entries) }

// IsValidID reports whether id belongs to a piece.
func (v *Vocabulary) IsValidID(id int64) bool {
	return id >= 0 && id < int64(len(v.entries))
}

// GetInitial returns the id of piece when it exists as an initial piece.
func (v *Vocabulary) GetInitial(piece string) (int, bool) {
	node := v.root.lookup(piece)
	if node == nil || node.initial == noEntry {
		return 0, false
	}

	return node.initial, true
}

// PieceToID looks up a piece in file form, so "##tie" finds the
// continuation piece and "tie" the initial one.
func (v *Vocabulary) PieceToID(piece string) (int, bool) {
	e, err := parseEntry(piece)
	if err != nil {
		return 0, false
	}

	node := v.root.lookup(e.text)
	if node == nil {
		return 0, false
	}

	id := node.initial
	if e.continuation {
		id = node.cont
	}
	if id == noEntry {
		return 0, false
	}

	return id, true
}

// IDToPiece returns the piece for id in file form.
func (v *Vocabulary) IDToPiece(id int64) (string, bool) {
	if !v.IsValidID(id) {
		return "", false
	}

	return v.entries[id].String(), true
}

// ToList returns all pieces in id order, in the form Build accepts.
func (v *Vocabulary) ToList() []string {
	pieces := make([]string, len(v.entries))
	for i, e := range v.entries {
		pieces[i] = e.String()
	}

	return pieces
}

func (e entry) String() string {
	if e.continuation {
		return ContinuationPrefix + e.text
	}

	return e.text
}
