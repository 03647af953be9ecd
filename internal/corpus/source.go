// Package corpus reads documents from files or streams and turns them into
// token sets ready for hashing.
package corpus

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
)

// Document is one corpus entry.
type Document struct {
	ID     minhash.DocID
	Tokens []string
}

// Source yields documents until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Document, error)
	Close() error
}

// Each calls fn for every document in src and closes it afterwards.
func Each(ctx context.Context, src Source, fn func(Document) error) (int, error) {
	defer src.Close()
	n := 0
	for {
		doc, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := fn(doc); err != nil {
			return n, err
		}
		n++
	}
}

// TextOptions control how a plain text corpus is read: one document per line.
type TextOptions struct {
	// HeaderLines are skipped before the first document.
	HeaderLines int
	// FirstID is the id of the first document; later lines count up.
	FirstID minhash.DocID
	// MaxDocuments stops reading after this many documents when positive.
	MaxDocuments int
	Tokenizer    Tokenizer
}

type textSource struct {
	scanner *bufio.Scanner
	closers []io.Closer
	opts    TextOptions
	nextID  minhash.DocID
	read    int
	skipped bool
	lineNo  int
}

// OpenText opens path as a line-per-document corpus. Files ending in .gz are
// decompressed.
func OpenText(path string, opts TextOptions) (Source, error) {
	if err := opts.Tokenizer.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	var r io.Reader = f
	closers := []io.Closer{f}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading gzip corpus %s: %w", path, err)
		}
		r = gz
		closers = append([]io.Closer{gz}, closers...)
	}
	src := NewTextReader(r, opts)
	src.(*textSource).closers = closers
	return src, nil
}

// NewTextReader reads a line-per-document corpus from r.
func NewTextReader(r io.Reader, opts TextOptions) Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &textSource{
		scanner: sc,
		opts:    opts,
		nextID:  opts.FirstID,
	}
}

func (s *textSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if !s.skipped {
		s.skipped = true
		for range s.opts.HeaderLines {
			if !s.scanner.Scan() {
				return Document{}, s.endErr()
			}
			s.lineNo++
		}
	}
	if s.opts.MaxDocuments > 0 && s.read >= s.opts.MaxDocuments {
		return Document{}, io.EOF
	}
	if !s.scanner.Scan() {
		return Document{}, s.endErr()
	}
	s.lineNo++
	line := strings.TrimRight(s.scanner.Text(), "\r")
	doc := Document{ID: s.nextID, Tokens: s.opts.Tokenizer.Tokens(line)}
	s.nextID++
	s.read++
	return doc, nil
}

func (s *textSource) endErr() error {
	if err := s.scanner.Err(); err != nil {
		return fmt.Errorf("reading corpus line %d: %w", s.lineNo+1, err)
	}
	return io.EOF
}

func (s *textSource) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Record is the JSON lines format: either explicit tokens or text to run
// through the tokenizer.
type Record struct {
	ID     minhash.DocID `json:"id"`
	Tokens []string      `json:"tokens,omitempty"`
	Text   string        `json:"text,omitempty"`
}

// ToDocument converts r, tokenizing Text when no Tokens are given.
func (r Record) ToDocument(t Tokenizer) Document {
	if r.Tokens != nil {
		return Document{ID: r.ID, Tokens: dedupe(append([]string(nil), r.Tokens...))}
	}
	return Document{ID: r.ID, Tokens: t.Tokens(r.Text)}
}

type jsonSource struct {
	dec       *json.Decoder
	closer    io.Closer
	tokenizer Tokenizer
}

// NewJSONReader reads a stream of Record objects.
func NewJSONReader(r io.Reader, t Tokenizer) Source {
	var c io.Closer
	if rc, ok := r.(io.Closer); ok {
		c = rc
	}
	return &jsonSource{dec: json.NewDecoder(r), closer: c, tokenizer: t}
}

func (s *jsonSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	var rec Record
	if err := s.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, io.EOF
		}
		return Document{}, apperrors.Newf(apperrors.ErrInvalidInput, "decoding json record: %v", err)
	}
	return rec.ToDocument(s.tokenizer), nil
}

func (s *jsonSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open picks a reader by file extension: .jsonl/.json for JSON records,
// anything else (optionally .gz compressed) for line-per-document text.
func Open(path string, opts TextOptions) (Source, error) {
	if strings.HasSuffix(path, ".jsonl") || strings.HasSuffix(path, ".json") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening corpus %s: %w", path, err)
		}
		return NewJSONReader(f, opts.Tokenizer), nil
	}
	return OpenText(path, opts)
}

type sliceSource struct {
	docs []Document
	pos  int
}

// FromDocuments serves docs from memory.
func FromDocuments(docs []Document) Source {
	return &sliceSource{docs: docs}
}

func (s *sliceSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if s.pos >= len(s.docs) {
		return Document{}, io.EOF
	}
	d := s.docs[s.pos]
	s.pos++
	return d, nil
}

func (s *sliceSource) Close() error { return nil }
