package sentencepiece

import (
	"errors"
	"fmt"
	"os"
	"strings"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// Kind selects the engine used for a model.
type Kind string

const (
	// KindAuto picks the engine for the model. Only KindUnigram is built in.
	KindAuto Kind = "auto"
	// KindUnigram uses github.com/vikesh-raj/go-sentencepiece-encoder.
	KindUnigram Kind = "unigram"
)

// ErrEmptyPath is returned when LoadFile is called with an empty path.
var ErrEmptyPath = errors.New("sentencepiece model path must not be empty")

// ParseKind normalizes an engine name. An empty name selects KindAuto.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "":
		return KindAuto, nil
	case KindAuto, KindUnigram:
		return k, nil
	default:
		return "", fmt.Errorf("invalid sentencepiece engine %q (expected %s|%s)", raw, KindAuto, KindUnigram)
	}
}

type options struct {
	kind Kind
}

// Option configures model loading.
type Option func(*options)

// WithKind selects the engine. The default is KindAuto.
func WithKind(k Kind) Option {
	return func(o *options) { o.kind = k }
}

func loadOptions(optFns []Option) (options, error) {
	opts := options{kind: KindAuto}
	for _, fn := range optFns {
		fn(&opts)
	}

	kind, err := ParseKind(string(opts.kind))
	if err != nil {
		return options{}, err
	}
	opts.kind = kind

	return opts, nil
}

// LoadFile loads a trained model from path. Read failures keep the
// underlying *fs.PathError; malformed models fail with ErrFormat.
func LoadFile(path string, optFns ...Option) (*Processor, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	opts, err := loadOptions(optFns)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sentencepiece model: %w", err)
	}

	table, err := parseModel(data)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", path, err)
	}

	engine, err := newEngine(table, opts.kind, func() (*unigramEngine, error) {
		return newUnigramEngineFromFile(table, path)
	})
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", path, err)
	}

	return NewProcessor(engine), nil
}

// LoadBytes loads a model from its serialized form, as produced by
// Processor.Serialize.
func LoadBytes(data []byte, optFns ...Option) (*Processor, error) {
	opts, err := loadOptions(optFns)
	if err != nil {
		return nil, err
	}

	table, err := parseModel(data)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(table, opts.kind, func() (*unigramEngine, error) {
		return newUnigramEngineFromBytes(table)
	})
	if err != nil {
		return nil, err
	}

	return NewProcessor(engine), nil
}

func newEngine(table *pieceTable, kind Kind, unigram func() (*unigramEngine, error)) (Engine, error) {
	switch kind {
	case KindAuto, KindUnigram:
		if table.modelType != gosp.TrainerSpec_UNIGRAM {
			return nil, fmt.Errorf("%w: %s models are not supported by the unigram engine", ErrFormat, table.modelType)
		}
		return unigram()
	default:
		return nil, fmt.Errorf("unsupported sentencepiece engine %q", kind)
	}
}
