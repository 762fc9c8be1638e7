// Package sentencepiece wraps trained SentencePiece models behind a
// read-only query surface. Segmentation itself is delegated to an Engine;
// the pure-Go unigram encoder is provided.
package sentencepiece

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNoModel is returned by every query on a Processor without a model.
	ErrNoModel = errors.New("no sentencepiece model loaded")
	// ErrFormat is returned when model bytes are not a valid ModelProto.
	ErrFormat = errors.New("invalid sentencepiece model")
	// ErrInvalidArgument is returned for input the model cannot handle, such
	// as unknown ids or pieces.
	ErrInvalidArgument = errors.New("invalid sentencepiece argument")
)

// Token is one encoded piece.
type Token struct {
	ID   int    `json:"id"`
	Text string `json:"piece"`
}

// ModelInfo describes the vocabulary of a model. Special ids are negative
// when the model does not define them; UnknownID is always set.
type ModelInfo struct {
	Size      int
	UnknownID int
	BOSID     int
	EOSID     int
	PadID     int
}

// Engine is a loaded segmentation model. Implementations must be safe for
// concurrent use and may assume ids and pieces passed to Decode are valid.
type Engine interface {
	Kind() Kind
	Encode(text string) ([]Token, error)
	Decode(ids []int) (string, error)
	Info() ModelInfo
	PieceToID(piece string) (int, bool)
	IDToPiece(id int) (string, bool)
	Serialize() []byte
}

// Processor forwards queries to an Engine. The zero value holds no model and
// fails every query with ErrNoModel.
type Processor struct {
	engine Engine
}

// NewProcessor wraps engine. A nil engine gives an unloaded Processor.
func NewProcessor(engine Engine) *Processor {
	return &Processor{engine: engine}
}

func (p *Processor) model() (Engine, error) {
	if p == nil || p.engine == nil {
		return nil, ErrNoModel
	}

	return p.engine, nil
}

// Loaded reports whether a model is present.
func (p *Processor) Loaded() bool {
	_, err := p.model()
	return err == nil
}

// Kind returns the engine kind of the loaded model.
func (p *Processor) Kind() (Kind, error) {
	e, err := p.model()
	if err != nil {
		return "", err
	}

	return e.Kind(), nil
}

// Encode segments text into tokens.
func (p *Processor) Encode(text string) ([]Token, error) {
	e, err := p.model()
	if err != nil {
		return nil, err
	}

	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidArgument)
	}

	if text == "" {
		return []Token{}, nil
	}

	tokens, err := e.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return tokens, nil
}

// EncodeAsIDs is Encode reduced to ids.
func (p *Processor) EncodeAsIDs(text string) ([]int, error) {
	tokens, err := p.Encode(text)
	if err != nil {
		return nil, err
	}

	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}

	return ids, nil
}

// EncodeAsPieces is Encode reduced to piece strings.
func (p *Processor) EncodeAsPieces(text string) ([]string, error) {
	tokens, err := p.Encode(text)
	if err != nil {
		return nil, err
	}

	pieces := make([]string, len(tokens))
	for i, tok := range tokens {
		pieces[i] = tok.Text
	}

	return pieces, nil
}

// DecodeFromIDs reconstructs text from ids.
func (p *Processor) DecodeFromIDs(ids []int) (string, error) {
	e, err := p.model()
	if err != nil {
		return "", err
	}

	size := e.Info().Size
	for i, id := range ids {
		if id < 0 || id >= size {
			return "", fmt.Errorf("%w: unknown id %d at position %d", ErrInvalidArgument, id, i)
		}
	}

	return decode(e, ids)
}

// DecodeFromPieces reconstructs text from piece strings.
func (p *Processor) DecodeFromPieces(pieces []string) (string, error) {
	e, err := p.model()
	if err != nil {
		return "", err
	}

	ids := make([]int, len(pieces))
	for i, piece := range pieces {
		id, ok := e.PieceToID(piece)
		if !ok {
			return "", fmt.Errorf("%w: unknown piece %q at position %d", ErrInvalidArgument, piece, i)
		}
		ids[i] = id
	}

	return decode(e, ids)
}

func decode(e Engine, ids []int) (string, error) {
	text, err := e.Decode(ids)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return text, nil
}

// PieceToID returns the id of piece, if the model knows it.
func (p *Processor) PieceToID(piece string) (int, bool, error) {
	e, err := p.model()
	if err != nil {
		return 0, false, err
	}

	id, ok := e.PieceToID(piece)

	return id, ok, nil
}

// IDToPiece returns the piece for id, if it is in range.
func (p *Processor) IDToPiece(id int) (string, bool, error) {
	e, err := p.model()
	if err != nil {
		return "", false, err
	}

	piece, ok := e.IDToPiece(id)

	return piece, ok, nil
}

// BOSID returns the beginning-of-sequence id, if the model has one.
func (p *Processor) BOSID() (int, bool, error) {
	return p.specialID(func(info ModelInfo) int { return info.BOSID })
}

// EOSID returns the end-of-sequence id, if the model has one.
func (p *Processor) EOSID() (int, bool, error) {
	return p.specialID(func(info ModelInfo) int { return info.EOSID })
}

// PadID returns the padding id, if the model has one.
func (p *Processor) PadID() (int, bool, error) {
	return p.specialID(func(info ModelInfo) int { return info.PadID })
}

func (p *Processor) specialID(pick func(ModelInfo) int) (int, bool, error) {
	e, err := p.model()
	if err != nil {
		return 0, false, err
	}

	id := pick(e.Info())
	if id < 0 {
		return 0, false, nil
	}

	return id, true, nil
}

// UnkID returns the unknown-piece id.
func (p *Processor) UnkID() (int, error) {
	e, err := p.model()
	if err != nil {
		return 0, err
	}

	return e.Info().UnknownID, nil
}

// Len returns the number of ids the model knows.
func (p *Processor) Len() (int, error) {
	e, err := p.model()
	if err != nil {
		return 0, err
	}

	return e.Info().Size, nil
}

// Serialize returns the model bytes exactly as they were loaded.
func (p *Processor) Serialize() ([]byte, error) {
	e, err := p.model()
	if err != nil {
		return nil, err
	}

	return e.Serialize(), nil
}
