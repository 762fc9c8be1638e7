package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-curated-tokenizers/internal/config"
	"github.com/example/go-curated-tokenizers/internal/sentencepiece"
	"github.com/example/go-curated-tokenizers/internal/wordpiece"
	lru "github.com/hashicorp/golang-lru"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// WordPieceTokenizer splits single pre-tokenized tokens into pieces.
type WordPieceTokenizer interface {
	Encode(token string) wordpiece.Encoding
	Decode(ids []int64) (string, error)
}

// SentenceTokenizer encodes and decodes raw text with a SentencePiece model.
type SentenceTokenizer interface {
	Encode(text string) ([]sentencepiece.Token, error)
	DecodeFromIDs(ids []int) (string, error)
	DecodeFromPieces(pieces []string) (string, error)
	Len() (int, error)
	UnkID() (int, error)
	BOSID() (int, bool, error)
	EOSID() (int, bool, error)
	PadID() (int, bool, error)
}

// Pretokenizer splits raw text into the tokens fed to WordPiece.
type Pretokenizer interface {
	Tokenize(text string) []string
}

var (
	errNoVocabulary = errors.New("no wordpiece vocabulary loaded")
	errBadRequest   = errors.New("bad request")
)

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes int
	cacheSize    int
	logger       *slog.Logger
	pretokenizer Pretokenizer
}

func defaultOptions() options {
	return options{
		maxTextBytes: 64 * 1024,
		cacheSize:    4096,
		logger:       slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum request body size in bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithCacheSize sets the number of WordPiece token encodings kept in memory.
// Zero or a negative size disables the cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPretokenizer enables the "text" field of POST /wordpiece/encode.
func WithPretokenizer(p Pretokenizer) Option {
	return func(o *options) { o.pretokenizer = p }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	wp    WordPieceTokenizer
	sp    SentenceTokenizer
	opts  options
	cache *lru.Cache
	log   *slog.Logger
}

// NewHandler returns an http.Handler serving /health and the WordPiece and
// SentencePiece endpoints. Either tokenizer may be nil; its endpoints then
// answer 503.
func NewHandler(wp WordPieceTokenizer, sp SentenceTokenizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		wp:    wp,
		sp:    sp,
		opts:  opts,
		cache: newTokenCache(opts.cacheSize),
		log:   opts.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/wordpiece/encode", h.post("wordpiece encode", h.wordpieceEncode))
	mux.HandleFunc("/wordpiece/decode", h.post("wordpiece decode", h.wordpieceDecode))
	mux.HandleFunc("/sentencepiece/encode", h.post("sentencepiece encode", h.sentencepieceEncode))
	mux.HandleFunc("/sentencepiece/decode", h.post("sentencepiece decode", h.sentencepieceDecode))
	mux.HandleFunc("/sentencepiece/info", h.handleInfo)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

// endpoint decodes the request body itself and returns the response value.
type endpoint func(r *http.Request) (any, int, error)

// post wraps an endpoint with method and size checks, status mapping and a
// single log record per request.
func (h *handler) post(name string, fn endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if r.Body == nil || r.Body == http.NoBody {
			writeError(w, http.StatusBadRequest, "request body is required")
			return
		}

		if h.opts.maxTextBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes))
		}

		start := time.Now()
		resp, items, err := fn(r)
		durationMS := time.Since(start).Milliseconds()

		if err != nil {
			status := statusFor(err)
			h.log.WarnContext(r.Context(), name+" failed",
				slog.Int("status", status),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, status, err.Error())
			return
		}

		h.log.InfoContext(r.Context(), name+" complete",
			slog.Int("items", items),
			slog.Int64("duration_ms", durationMS),
		)
		writeJSON(w, http.StatusOK, resp)
	}
}

// statusFor maps tokenizer errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sentencepiece.ErrNoModel), errors.Is(err, errNoVocabulary):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, wordpiece.ErrUnknownID),
		errors.Is(err, sentencepiece.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, err)
	}

	return fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
}

// ---------------------------------------------------------------------------
// WordPiece
// ---------------------------------------------------------------------------

type wordpieceEncodeRequest struct {
	Tokens []string `json:"tokens"`
	Text   *string  `json:"text"`
}

type wordpieceTokenResult struct {
	Token string `json:"token"`
	wordpiece.Encoding
}

func (h *handler) wordpieceEncode(r *http.Request) (any, int, error) {
	if h.wp == nil {
		return nil, 0, errNoVocabulary
	}

	var req wordpieceEncodeRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, 0, err
	}

	tokens := req.Tokens
	switch {
	case req.Text != nil && req.Tokens != nil:
		return nil, 0, fmt.Errorf("%w: send either tokens or text, not both", errBadRequest)
	case req.Text != nil:
		if h.opts.pretokenizer == nil {
			return nil, 0, fmt.Errorf("%w: text input is not enabled on this server", errBadRequest)
		}
		tokens = h.opts.pretokenizer.Tokenize(*req.Text)
	case req.Tokens == nil:
		return nil, 0, fmt.Errorf("%w: tokens or text field is required", errBadRequest)
	}

	results := make([]wordpieceTokenResult, len(tokens))
	for i, tok := range tokens {
		results[i] = wordpieceTokenResult{Token: tok, Encoding: h.encodeToken(tok)}
	}

	return results, len(results), nil
}

// newTokenCache returns an LRU cache holding size encodings, or nil when
// size disables caching.
func newTokenCache(size int) *lru.Cache {
	if size <= 0 {
		return nil
	}

	cache, err := lru.New(size)
	if err != nil {
		// lru.New only rejects non-positive sizes.
		panic(fmt.Sprintf("server: token cache of size %d: %v", size, err))
	}

	return cache
}

// encodeToken consults the LRU cache before splitting. Cached encodings are
// shared between requests and must not be modified.
func (h *handler) encodeToken(tok string) wordpiece.Encoding {
	if h.cache != nil {
		if v, ok := h.cache.Get(tok); ok {
			return v.(wordpiece.Encoding)
		}
	}

	enc := h.wp.Encode(tok)
	if h.cache != nil {
		h.cache.Add(tok, enc)
	}

	return enc
}

type idsRequest struct {
	IDs    []int64  `json:"ids"`
	Pieces []string `json:"pieces"`
}

type textResponse struct {
	Text string `json:"text"`
}

func (h *handler) wordpieceDecode(r *http.Request) (any, int, error) {
	if h.wp == nil {
		return nil, 0, errNoVocabulary
	}

	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, 0, err
	}

	if req.IDs == nil {
		return nil, 0, fmt.Errorf("%w: ids field is required", errBadRequest)
	}

	text, err := h.wp.Decode(req.IDs)
	if err != nil {
		return nil, 0, err
	}

	return textResponse{Text: text}, len(req.IDs), nil
}

// ---------------------------------------------------------------------------
// SentencePiece
// ---------------------------------------------------------------------------

type sentencepieceEncodeRequest struct {
	Text *string `json:"text"`
}

type sentencepieceEncodeResponse struct {
	IDs    []int    `json:"ids"`
	Pieces []string `json:"pieces"`
}

func (h *handler) sentencepieceEncode(r *http.Request) (any, int, error) {
	if h.sp == nil {
		return nil, 0, sentencepiece.ErrNoModel
	}

	var req sentencepieceEncodeRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, 0, err
	}

	if req.Text == nil {
		return nil, 0, fmt.Errorf("%w: text field is required", errBadRequest)
	}

	tokens, err := h.sp.Encode(*req.Text)
	if err != nil {
		return nil, 0, err
	}

	resp := sentencepieceEncodeResponse{
		IDs:    make([]int, len(tokens)),
		Pieces: make([]string, len(tokens)),
	}
	for i, tok := range tokens {
		resp.IDs[i] = tok.ID
		resp.Pieces[i] = tok.Text
	}

	return resp, len(tokens), nil
}

func (h *handler) sentencepieceDecode(r *http.Request) (any, int, error) {
	if h.sp == nil {
		return nil, 0, sentencepiece.ErrNoModel
	}

	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, 0, err
	}

	var (
		text string
		n    int
		err  error
	)

	switch {
	case req.IDs != nil && req.Pieces != nil:
		return nil, 0, fmt.Errorf("%w: send either ids or pieces, not both", errBadRequest)
	case req.IDs != nil:
		ids := make([]int, len(req.IDs))
		for i, id := range req.IDs {
			ids[i] = int(id)
		}
		text, err = h.sp.DecodeFromIDs(ids)
		n = len(ids)
	case req.Pieces != nil:
		text, err = h.sp.DecodeFromPieces(req.Pieces)
		n = len(req.Pieces)
	default:
		return nil, 0, fmt.Errorf("%w: ids or pieces field is required", errBadRequest)
	}

	if err != nil {
		return nil, 0, err
	}

	return textResponse{Text: text}, n, nil
}

type modelInfoResponse struct {
	Size      int  `json:"size"`
	UnknownID int  `json:"unk_id"`
	BOSID     *int `json:"bos_id"`
	EOSID     *int `json:"eos_id"`
	PadID     *int `json:"pad_id"`
}

func (h *handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	info, err := h.modelInfo()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *handler) modelInfo() (modelInfoResponse, error) {
	if h.sp == nil {
		return modelInfoResponse{}, sentencepiece.ErrNoModel
	}

	var (
		info modelInfoResponse
		err  error
	)

	if info.Size, err = h.sp.Len(); err != nil {
		return modelInfoResponse{}, err
	}
	if info.UnknownID, err = h.sp.UnkID(); err != nil {
		return modelInfoResponse{}, err
	}

	special := []struct {
		dst  **int
		read func() (int, bool, error)
	}{
		{&info.BOSID, h.sp.BOSID},
		{&info.EOSID, h.sp.EOSID},
		{&info.PadID, h.sp.PadID},
	}
	for _, s := range special {
		id, ok, err := s.read()
		if err != nil {
			return modelInfoResponse{}, err
		}
		if ok {
			*s.dst = &id
		}
	}

	return info, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	wp              WordPieceTokenizer
	sp              SentenceTokenizer
	pretokenizer    Pretokenizer
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server for already loaded tokenizers. Either may be nil.
func New(cfg config.Config, wp WordPieceTokenizer, sp SentenceTokenizer) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		wp:              wp,
		sp:              sp,
		logger:          slog.Default(),
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithPretokenizer enables raw text input for WordPiece encoding.
func (s *Server) WithPretokenizer(p Pretokenizer) *Server {
	s.pretokenizer = p
	return s
}

// WithLogger replaces the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

func (s *Server) handlerOptions() []Option {
	opts := []Option{
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithCacheSize(s.cfg.WordPiece.CacheSize),
		WithLogger(s.logger),
	}
	if s.pretokenizer != nil {
		opts = append(opts, WithPretokenizer(s.pretokenizer))
	}
	return opts
}

func (s *Server) Start(ctx context.Context) error {
	h := NewHandler(s.wp, s.sp, s.handlerOptions()...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.InfoContext(ctx, "listening",
		slog.String("addr", s.cfg.Server.ListenAddr),
		slog.Bool("wordpiece", s.wp != nil),
		slog.Bool("sentencepiece", s.sp != nil),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
