package host

import (
	stderrors "errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

func TestSource_Lines(t *testing.T) {
	b := New()
	ref, err := b.sources.Build(&impl.SourceRequest{Language: jsonLanguageID, Content: "[1,\n 22,\r\n 333]"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, r := ref.Dispatch, ref.Receiver

	if d.Name(r) != "Unnamed" || d.MimeType(r) != jsonMimeType {
		t.Fatalf("name=%q mime=%q", d.Name(r), d.MimeType(r))
	}
	if d.LineCount(r) != 3 {
		t.Fatalf("LineCount = %d", d.LineCount(r))
	}

	tests := []struct {
		offset    int
		line, col int
	}{
		{0, 1, 1},
		{3, 1, 4},
		{4, 2, 1},
		{6, 2, 3},
		{11, 3, 2},
	}
	for _, tt := range tests {
		line, err := d.LineNumber(r, tt.offset)
		if err != nil || line != tt.line {
			t.Errorf("LineNumber(%d) = %d, %v; want %d", tt.offset, line, err, tt.line)
		}
		col, _ := d.ColumnNumber(r, tt.offset)
		if col != tt.col {
			t.Errorf("ColumnNumber(%d) = %d; want %d", tt.offset, col, tt.col)
		}
	}

	if text, _ := d.LineCharacters(r, 2); text != " 22," {
		t.Fatalf("line 2 = %q", text)
	}
	if n, _ := d.LineLength(r, 3); n != 5 {
		t.Fatalf("line 3 length = %d", n)
	}
	if start, _ := d.LineStartOffset(r, 3); start != 10 {
		t.Fatalf("line 3 start = %d", start)
	}
	if _, err := d.LineCharacters(r, 4); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
	if _, err := d.LineNumber(r, 100); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
}

func TestSource_Sections(t *testing.T) {
	b := New()
	ref := jsonSource(t, b, "{\n  \"a\": 1\n}")
	s := ref.Receiver.(*source)

	sec := s.section(4, 3)
	d := b.sections
	if d.Code(sec) != `"a"` {
		t.Fatalf("Code = %q", d.Code(sec))
	}
	if d.StartLine(sec) != 2 || d.StartColumn(sec) != 3 || d.EndLine(sec) != 2 || d.EndColumn(sec) != 5 {
		t.Fatalf("range %d:%d-%d:%d", d.StartLine(sec), d.StartColumn(sec), d.EndLine(sec), d.EndColumn(sec))
	}
	if d.String(sec) != "test.json:2:3-2:5" {
		t.Fatalf("String = %q", d.String(sec))
	}
	if !d.Equal(sec, s.section(4, 3)) || d.Equal(sec, s.section(4, 2)) {
		t.Fatal("section equality mismatch")
	}

	clamped := s.section(10, 100)
	if d.CharEndIndex(clamped) != len(s.chars) {
		t.Fatalf("section not clamped: %d", d.CharEndIndex(clamped))
	}
}

func TestSource_Bytes(t *testing.T) {
	b := New()
	ref, err := b.sources.Build(&impl.SourceRequest{Language: jsonLanguageID, Content: []byte{0, 1, 2}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, r := ref.Dispatch, ref.Receiver
	if !d.HasBytes(r) || d.HasCharacters(r) || d.Length(r) != 3 {
		t.Fatal("byte source reported as characters")
	}
	if _, err := d.Characters(r); !stderrors.Is(err, errors.ErrUnsupportedOperation) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	data, _ := d.Bytes(r)
	data[0] = 9
	again, _ := d.Bytes(r)
	if again[0] != 0 {
		t.Fatal("Bytes exposed internal storage")
	}
}

func TestSource_Encoding(t *testing.T) {
	b := New()
	ref, err := b.sources.Build(&impl.SourceRequest{Language: jsonLanguageID, Content: []byte("\"caf\xe9\""), Encoding: "latin1"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chars, _ := ref.Dispatch.Characters(ref.Receiver); chars != `"café"` {
		t.Fatalf("decoded %q", chars)
	}

	_, err = b.sources.Build(&impl.SourceRequest{Language: jsonLanguageID, Content: []byte("x"), Encoding: "no-such-encoding"})
	if !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSource_Reader(t *testing.T) {
	b := New()
	ref, err := b.sources.Build(&impl.SourceRequest{Language: jsonLanguageID, Name: "r", Content: strings.NewReader("[true]")})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chars, _ := ref.Dispatch.Characters(ref.Receiver); chars != "[true]" {
		t.Fatalf("chars %q", chars)
	}

	if _, err := b.sources.Build(&impl.SourceRequest{Language: jsonLanguageID, Content: 42}); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSource_LanguageDetection(t *testing.T) {
	b := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte(`{"k": "v"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ref, err := b.sources.Build(&impl.SourceRequest{Path: path})
	if err != nil {
		t.Fatalf("Build from path: %v", err)
	}
	d, r := ref.Dispatch, ref.Receiver
	if d.Language(r) != jsonLanguageID || d.Name(r) != "data.json" || !d.HasCharacters(r) {
		t.Fatalf("language=%q name=%q", d.Language(r), d.Name(r))
	}

	if id, err := d.FindLanguageOfFile(path); err != nil || id != jsonLanguageID {
		t.Fatalf("FindLanguageOfFile = %q, %v", id, err)
	}
	if mt, err := d.FindMimeType(path); err != nil || mt != jsonMimeType {
		t.Fatalf("FindMimeType = %q, %v", mt, err)
	}
	if id, ok := d.FindLanguage("application/json; charset=utf-8"); !ok || id != jsonLanguageID {
		t.Fatalf("FindLanguage = %q, %v", id, ok)
	}

	text := filepath.Join(dir, "notes")
	if err := os.WriteFile(text, []byte("plain words"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if mt, _ := d.FindMimeType(text); mt != "text/plain" {
		t.Fatalf("sniffed %q", mt)
	}
	if _, err := d.FindLanguageOfFile(text); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := b.sources.Build(&impl.SourceRequest{Content: "1"}); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected undetectable language, got %v", err)
	}
	if _, err := b.sources.Build(&impl.SourceRequest{Path: filepath.Join(dir, "missing.json")}); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSource_DetectFromName(t *testing.T) {
	b := New()
	u, _ := url.Parse("file:///srv/config.json")
	tests := []struct {
		name string
		req  *impl.SourceRequest
	}{
		{"name", &impl.SourceRequest{Name: "list.json", Content: "[1]"}},
		{"upper case extension", &impl.SourceRequest{Name: "LIST.JSON", Content: "[1]"}},
		{"uri", &impl.SourceRequest{URI: u, Content: "{}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := b.sources.Build(tt.req)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if lang := ref.Dispatch.Language(ref.Receiver); lang != jsonLanguageID {
				t.Fatalf("language = %q", lang)
			}
		})
	}

	if _, err := b.sources.Build(&impl.SourceRequest{Name: "notes", Content: "1"}); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected undetectable language, got %v", err)
	}
}

func TestSource_Equality(t *testing.T) {
	b := New()
	a := jsonSource(t, b, "1")
	c := jsonSource(t, b, "1")
	other := jsonSource(t, b, "2")

	d := b.sources
	if !d.Equal(a.Receiver, c.Receiver) || d.Hash(a.Receiver) != d.Hash(c.Receiver) {
		t.Fatal("identical sources differ")
	}
	if d.Equal(a.Receiver, other.Receiver) {
		t.Fatal("different sources equal")
	}
}
