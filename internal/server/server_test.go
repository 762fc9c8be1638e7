package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/go-curated-tokenizers/internal/pretokenize"
	"github.com/example/go-curated-tokenizers/internal/sentencepiece"
	"github.com/example/go-curated-tokenizers/internal/server"
	"github.com/example/go-curated-tokenizers/internal/wordpiece"
	"github.com/google/go-cmp/cmp"
)

// stubSentenceTokenizer implements server.SentenceTokenizer for tests.
type stubSentenceTokenizer struct {
	tokens  []sentencepiece.Token
	err     error
	decoded string
	seenIDs []int
	seenPcs []string
	bos     int
	hasBOS  bool
}

func (s *stubSentenceTokenizer) Encode(string) ([]sentencepiece.Token, error) {
	return s.tokens, s.err
}

func (s *stubSentenceTokenizer) DecodeFromIDs(ids []int) (string, error) {
	s.seenIDs = ids
	return s.decoded, s.err
}

func (s *stubSentenceTokenizer) DecodeFromPieces(pieces []string) (string, error) {
	s.seenPcs = pieces
	return s.decoded, s.err
}

func (s *stubSentenceTokenizer) Len() (int, error)   { return 1000, s.err }
func (s *stubSentenceTokenizer) UnkID() (int, error) { return 0, s.err }

func (s *stubSentenceTokenizer) BOSID() (int, bool, error) { return s.bos, s.hasBOS, s.err }
func (s *stubSentenceTokenizer) EOSID() (int, bool, error) { return 2, true, s.err }
func (s *stubSentenceTokenizer) PadID() (int, bool, error) { return -1, false, s.err }

func toyVocabulary(t *testing.T) *wordpiece.Vocabulary {
	t.Helper()

	v, err := wordpiece.Build([]string{"voor", "##tie", "coördina", "##kom", "##en"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	return v
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}

	if body["error"] == "" {
		t.Error("want non-empty error field")
	}

	return body["error"]
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := server.NewHandler(nil, nil)

	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
}

// ---------------------------------------------------------------------------
// POST /wordpiece/encode
// ---------------------------------------------------------------------------

type tokenResult struct {
	Token  string    `json:"token"`
	IDs    []int64   `json:"ids"`
	Pieces []*string `json:"pieces"`
}

func TestWordPieceEncode_Tokens(t *testing.T) {
	h := server.NewHandler(toyVocabulary(t), nil)

	rec := do(t, h, http.MethodPost, "/wordpiece/encode", `{"tokens":["voorkomen","voorman"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got []tokenResult
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}

	if got[0].Token != "voorkomen" {
		t.Errorf("token = %q; want voorkomen", got[0].Token)
	}

	if diff := cmp.Diff([]int64{0, 3, 4}, got[0].IDs); diff != "" {
		t.Errorf("voorkomen ids (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int64{0, -1, -1, -1}, got[1].IDs); diff != "" {
		t.Errorf("voorman ids (-want +got):\n%s", diff)
	}

	if got[1].Pieces[0] == nil || *got[1].Pieces[0] != "voor" {
		t.Errorf("voorman first piece = %v; want voor", got[1].Pieces[0])
	}

	for i, p := range got[1].Pieces[1:] {
		if p != nil {
			t.Errorf("voorman piece %d = %q; want null", i+1, *p)
		}
	}
}

func TestWordPieceEncode_TextUsesPretokenizer(t *testing.T) {
	h := server.NewHandler(toyVocabulary(t), nil,
		server.WithPretokenizer(pretokenize.NewBasic(pretokenize.Options{Lowercase: true})),
	)

	rec := do(t, h, http.MethodPost, "/wordpiece/encode", `{"text":"Voorkomen coördinatie"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got []tokenResult
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(got) != 2 || got[0].Token != "voorkomen" || got[1].Token != "coördinatie" {
		t.Fatalf("unexpected tokens: %+v", got)
	}

	if diff := cmp.Diff([]int64{2, 1}, got[1].IDs); diff != "" {
		t.Errorf("coördinatie ids (-want +got):\n%s", diff)
	}
}

func TestWordPieceEncode_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"tokens":`, http.StatusBadRequest},
		{"missing fields", `{}`, http.StatusBadRequest},
		{"both fields", `{"tokens":["a"],"text":"a"}`, http.StatusBadRequest},
		{"text without pretokenizer", `{"text":"voor"}`, http.StatusBadRequest},
	}

	h := server.NewHandler(toyVocabulary(t), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/wordpiece/encode", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d", tt.want, rec.Code)
			}

			decodeError(t, rec)
		})
	}
}

func TestWordPieceEncode_MissingBodyIs400(t *testing.T) {
	h := server.NewHandler(toyVocabulary(t), nil)

	rec := do(t, h, http.MethodPost, "/wordpiece/encode", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestWordPieceEncode_MethodNotAllowed(t *testing.T) {
	h := server.NewHandler(toyVocabulary(t), nil)

	rec := do(t, h, http.MethodGet, "/wordpiece/encode", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestWordPieceEncode_NoVocabularyIs503(t *testing.T) {
	h := server.NewHandler(nil, nil)

	rec := do(t, h, http.MethodPost, "/wordpiece/encode", `{"tokens":["voor"]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}
}

func TestWordPieceEncode_BodyTooLarge(t *testing.T) {
	h := server.NewHandler(toyVocabulary(t), nil, server.WithMaxTextBytes(16))

	body := `{"tokens":["` + strings.Repeat("voor", 10) + `"]}`

	rec := do(t, h, http.MethodPost, "/wordpiece/encode", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /wordpiece/decode
// ---------------------------------------------------------------------------

func TestWordPieceDecode(t *testing.T) {
	h := server.NewHandler(toyVocabulary(t), nil)

	rec := do(t, h, http.MethodPost, "/wordpiece/decode", `{"ids":[0,3,4]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["text"] != "voorkomen" {
		t.Errorf("text = %q; want voorkomen", body["text"])
	}
}

func TestWordPieceDecode_UnknownIDIs400(t *testing.T) {
	h := server.NewHandler(toyVocabulary(t), nil)

	for _, body := range []string{`{"ids":[0,-1]}`, `{"ids":[5]}`, `{}`} {
		rec := do(t, h, http.MethodPost, "/wordpiece/decode", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want 400, got %d", body, rec.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// SentencePiece endpoints
// ---------------------------------------------------------------------------

func TestSentencePieceEncode(t *testing.T) {
	sp := &stubSentenceTokenizer{tokens: []sentencepiece.Token{
		{ID: 8, Text: "▁I"},
		{ID: 465, Text: "▁saw"},
	}}
	h := server.NewHandler(nil, sp)

	rec := do(t, h, http.MethodPost, "/sentencepiece/encode", `{"text":"I saw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		IDs    []int    `json:"ids"`
		Pieces []string `json:"pieces"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if diff := cmp.Diff([]int{8, 465}, got.IDs); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"▁I", "▁saw"}, got.Pieces); diff != "" {
		t.Errorf("pieces (-want +got):\n%s", diff)
	}
}

func TestSentencePieceEncode_InvalidArgumentIs400(t *testing.T) {
	sp := &stubSentenceTokenizer{err: sentencepiece.ErrInvalidArgument}
	h := server.NewHandler(nil, sp)

	rec := do(t, h, http.MethodPost, "/sentencepiece/encode", `{"text":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestSentencePiece_UnloadedProcessorIs503(t *testing.T) {
	h := server.NewHandler(nil, &sentencepiece.Processor{})

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/sentencepiece/encode", `{"text":"I saw"}`},
		{http.MethodPost, "/sentencepiece/decode", `{"ids":[1]}`},
		{http.MethodGet, "/sentencepiece/info", ""},
	}

	for _, c := range cases {
		rec := do(t, h, c.method, c.path, c.body)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: want 503, got %d", c.method, c.path, rec.Code)
		}
	}
}

func TestSentencePieceDecode_IDsAndPieces(t *testing.T) {
	sp := &stubSentenceTokenizer{decoded: "I saw"}
	h := server.NewHandler(nil, sp)

	rec := do(t, h, http.MethodPost, "/sentencepiece/decode", `{"ids":[8,465]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ids: want 200, got %d", rec.Code)
	}

	if diff := cmp.Diff([]int{8, 465}, sp.seenIDs); diff != "" {
		t.Errorf("ids forwarded (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodPost, "/sentencepiece/decode", `{"pieces":["▁I","▁saw"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pieces: want 200, got %d", rec.Code)
	}

	if diff := cmp.Diff([]string{"▁I", "▁saw"}, sp.seenPcs); diff != "" {
		t.Errorf("pieces forwarded (-want +got):\n%s", diff)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["text"] != "I saw" {
		t.Errorf("text = %q; want %q", body["text"], "I saw")
	}

	rec = do(t, h, http.MethodPost, "/sentencepiece/decode", `{"ids":[1],"pieces":["a"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("both fields: want 400, got %d", rec.Code)
	}
}

func TestSentencePieceInfo(t *testing.T) {
	h := server.NewHandler(nil, &stubSentenceTokenizer{bos: 1, hasBOS: true})

	rec := do(t, h, http.MethodGet, "/sentencepiece/info", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	want := map[string]any{
		"size":   float64(1000),
		"unk_id": float64(0),
		"bos_id": float64(1),
		"eos_id": float64(2),
		"pad_id": nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("info (-want +got):\n%s", diff)
	}
}

var errBoom = errors.New("boom")

func TestSentencePieceEncode_UnexpectedErrorIs500(t *testing.T) {
	h := server.NewHandler(nil, &stubSentenceTokenizer{err: errBoom})

	rec := do(t, h, http.MethodPost, "/sentencepiece/encode", `{"text":"x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}

	if msg := decodeError(t, rec); !strings.Contains(msg, "boom") {
		t.Errorf("error = %q; want it to mention boom", msg)
	}
}
