package host

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

const sniffLen = 512

// source is an immutable in-memory source. Character offsets are byte
// offsets into the UTF-8 text.
type source struct {
	name        string
	path        string
	uri         *url.URL
	language    string
	mimeType    string
	chars       string
	bytes       []byte
	lines       []int
	hasChars    bool
	interactive bool
	internal    bool
	cached      bool
}

func lineStarts(s string) []int {
	if s == "" {
		return nil
	}
	starts := []int{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && i+1 < len(s) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (s *source) length() int {
	if s.hasChars {
		return len(s.chars)
	}
	return len(s.bytes)
}

func (s *source) lineOf(offset int) (int, error) {
	if !s.hasChars {
		return 0, errors.UnsupportedOperation("LineNumber", s)
	}
	if offset < 0 || offset > len(s.chars) {
		return 0, errors.OutOfBounds(errors.PhaseSource, []string{s.name}, int64(offset), int64(len(s.chars)))
	}
	if len(s.lines) == 0 {
		return 1, nil
	}
	return sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > offset }), nil
}

func (s *source) lineBounds(line int) (int, int, error) {
	if !s.hasChars {
		return 0, 0, errors.UnsupportedOperation("LineStartOffset", s)
	}
	if line < 1 || line > len(s.lines) {
		return 0, 0, errors.OutOfBounds(errors.PhaseSource, []string{s.name, "line"}, int64(line), int64(len(s.lines)))
	}
	start := s.lines[line-1]
	end := len(s.chars)
	if line < len(s.lines) {
		end = s.lines[line]
	}
	end = start + len(strings.TrimRight(s.chars[start:end], "\r\n"))
	return start, end, nil
}

func (s *source) section(start, length int) *section {
	n := s.length()
	start = min(max(start, 0), n)
	length = min(max(length, 0), n-start)
	return &section{src: s, start: start, length: length}
}

func (s *source) whole() *section {
	return s.section(0, s.length())
}

func (s *source) equal(o *source) bool {
	return s.name == o.name && s.path == o.path && s.language == o.language &&
		s.mimeType == o.mimeType && s.hasChars == o.hasChars &&
		s.chars == o.chars && string(s.bytes) == string(o.bytes) &&
		s.interactive == o.interactive && s.internal == o.internal
}

func (s *source) hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.language))
	h.Write([]byte{0})
	h.Write([]byte(s.name))
	h.Write([]byte{0})
	if s.hasChars {
		h.Write([]byte(s.chars))
	} else {
		h.Write(s.bytes)
	}
	return h.Sum64()
}

type sourceDispatch struct{ b *Backend }

func sourceOf(r any) *source { return r.(*source) }

func (d sourceDispatch) Build(req *impl.SourceRequest) (impl.SourceRef, error) {
	s := &source{
		name:        req.Name,
		path:        req.Path,
		uri:         req.URI,
		language:    req.Language,
		mimeType:    req.MimeType,
		interactive: req.Interactive,
		internal:    req.Internal,
		cached:      req.Cached,
	}

	content := req.Content
	if content == nil && req.Path != "" {
		data, err := os.ReadFile(req.Path)
		if err != nil {
			return impl.SourceRef{}, errors.Wrap(errors.PhaseSource, errors.KindNotFound, err, "cannot read source file")
		}
		content = data
		if req.Encoding == "" && isText(data) {
			content = string(data)
		}
	}

	switch c := content.(type) {
	case string:
		s.chars, s.hasChars = c, true
	case []byte:
		if req.Encoding != "" {
			text, err := decodeText(c, req.Encoding)
			if err != nil {
				return impl.SourceRef{}, err
			}
			s.chars, s.hasChars = text, true
		} else {
			s.bytes = c
		}
	case io.Reader:
		data, err := io.ReadAll(c)
		if err != nil {
			return impl.SourceRef{}, errors.Wrap(errors.PhaseSource, errors.KindInvalidInput, err, "cannot read source content")
		}
		if req.Encoding != "" {
			text, err := decodeText(data, req.Encoding)
			if err != nil {
				return impl.SourceRef{}, err
			}
			s.chars, s.hasChars = text, true
		} else {
			s.chars, s.hasChars = string(data), true
		}
	default:
		return impl.SourceRef{}, errors.New(errors.PhaseSource, errors.KindInvalidInput).
			GoType(typeName(content)).
			Detail("source content must be a string, []byte or io.Reader").
			Build()
	}
	if s.hasChars {
		s.lines = lineStarts(s.chars)
	}

	hint := s.path
	switch {
	case hint != "":
	case s.name != "":
		hint = s.name
	case s.uri != nil:
		hint = s.uri.Path
	}

	if s.name == "" {
		switch {
		case s.path != "":
			s.name = filepath.Base(s.path)
		case s.uri != nil:
			s.name = filepath.Base(s.uri.Path)
		default:
			s.name = "Unnamed"
		}
	}

	head := s.bytes
	if s.hasChars {
		head = []byte(s.chars[:min(len(s.chars), sniffLen)])
	}
	if s.mimeType == "" {
		if m, ok := d.detectMimeType(hint, head); ok {
			s.mimeType = m
		}
	}
	if s.language == "" && s.mimeType != "" {
		s.language, _ = d.FindLanguage(s.mimeType)
	}
	if s.language == "" {
		return impl.SourceRef{}, errors.New(errors.PhaseSource, errors.KindInvalidInput).
			Path(s.name).
			Detail("cannot determine the language of the source").
			Build()
	}
	if s.mimeType == "" && s.language == jsonLanguageID {
		s.mimeType = jsonMimeType
	}
	return impl.SourceRef{Dispatch: d, Receiver: s}, nil
}

// isText reports whether file content reads as text: valid UTF-8 without
// NUL bytes.
func isText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0
}

func decodeText(data []byte, encoding string) (string, error) {
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", errors.New(errors.PhaseSource, errors.KindInvalidInput).
			Value(encoding).
			Cause(err).
			Detail("unknown encoding").
			Build()
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrap(errors.PhaseSource, errors.KindInvalidInput, err, "cannot decode source")
	}
	if !utf8.Valid(out) {
		return "", errors.InvalidInput(errors.PhaseSource, "decoded source is not valid UTF-8")
	}
	return string(out), nil
}

func (d sourceDispatch) Name(r any) string           { return sourceOf(r).name }
func (d sourceDispatch) Path(r any) string           { return sourceOf(r).path }
func (d sourceDispatch) URI(r any) *url.URL          { return sourceOf(r).uri }
func (d sourceDispatch) Language(r any) string       { return sourceOf(r).language }
func (d sourceDispatch) MimeType(r any) string       { return sourceOf(r).mimeType }
func (d sourceDispatch) IsInteractive(r any) bool    { return sourceOf(r).interactive }
func (d sourceDispatch) IsInternal(r any) bool       { return sourceOf(r).internal }
func (d sourceDispatch) HasCharacters(r any) bool    { return sourceOf(r).hasChars }
func (d sourceDispatch) HasBytes(r any) bool         { return !sourceOf(r).hasChars }
func (d sourceDispatch) Length(r any) int            { return sourceOf(r).length() }
func (d sourceDispatch) LineCount(r any) int         { return len(sourceOf(r).lines) }
func (d sourceDispatch) Hash(r any) uint64           { return sourceOf(r).hash() }
func (d sourceDispatch) Equal(r any, other any) bool { return equalSources(r, other) }

func equalSources(a, b any) bool {
	x, ok1 := a.(*source)
	y, ok2 := b.(*source)
	return ok1 && ok2 && (x == y || x.equal(y))
}

func (d sourceDispatch) Characters(r any) (string, error) {
	s := sourceOf(r)
	if !s.hasChars {
		return "", errors.UnsupportedOperation("Characters", s)
	}
	return s.chars, nil
}

func (d sourceDispatch) Bytes(r any) ([]byte, error) {
	s := sourceOf(r)
	if s.hasChars {
		return nil, errors.UnsupportedOperation("Bytes", s)
	}
	out := make([]byte, len(s.bytes))
	copy(out, s.bytes)
	return out, nil
}

func (d sourceDispatch) LineNumber(r any, offset int) (int, error) {
	return sourceOf(r).lineOf(offset)
}

func (d sourceDispatch) ColumnNumber(r any, offset int) (int, error) {
	s := sourceOf(r)
	line, err := s.lineOf(offset)
	if err != nil {
		return 0, err
	}
	if len(s.lines) == 0 {
		return 1, nil
	}
	return offset - s.lines[line-1] + 1, nil
}

func (d sourceDispatch) LineStartOffset(r any, line int) (int, error) {
	start, _, err := sourceOf(r).lineBounds(line)
	return start, err
}

func (d sourceDispatch) LineLength(r any, line int) (int, error) {
	start, end, err := sourceOf(r).lineBounds(line)
	return end - start, err
}

func (d sourceDispatch) LineCharacters(r any, line int) (string, error) {
	s := sourceOf(r)
	start, end, err := s.lineBounds(line)
	if err != nil {
		return "", err
	}
	return s.chars[start:end], nil
}

func (d sourceDispatch) String(r any) string {
	s := sourceOf(r)
	return fmt.Sprintf("Source[language=%s, name=%s, path=%s]", s.language, s.name, s.path)
}

// FindLanguage asks the chain's detectors for the language of a MIME type.
func (d sourceDispatch) FindLanguage(mimeType string) (string, bool) {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	for _, det := range d.b.detectors() {
		if id, ok := det.LanguageOfMimeType(mimeType); ok {
			return id, true
		}
	}
	return "", false
}

func (d sourceDispatch) FindLanguageOfFile(path string) (string, error) {
	mt, err := d.FindMimeType(path)
	if err != nil {
		return "", err
	}
	if id, ok := d.FindLanguage(mt); ok {
		return id, nil
	}
	return "", errors.NotFound(errors.PhaseSource, "language of file", path)
}

// FindMimeType sniffs a file: detectors first, then the extension table,
// then content sniffing.
func (d sourceDispatch) FindMimeType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(errors.PhaseSource, errors.KindNotFound, err, "cannot open file")
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.Wrap(errors.PhaseSource, errors.KindInvalidInput, err, "cannot read file")
	}
	head = head[:n]

	if mt, ok := d.detectMimeType(path, head); ok {
		return mt, nil
	}
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return stripParams(mt), nil
	}
	return stripParams(http.DetectContentType(head)), nil
}

func (d sourceDispatch) detectMimeType(path string, head []byte) (string, bool) {
	for _, det := range d.b.detectors() {
		if mt, ok := det.DetectMimeType(path, head); ok {
			return mt, true
		}
	}
	return "", false
}

func stripParams(mt string) string {
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}

// section is a character range of a source.
type section struct {
	src    *source
	start  int
	length int
}

type sectionDispatch struct{}

func sectionOf(r any) *section { return r.(*section) }

func (sectionDispatch) IsAvailable(r any) bool  { return sectionOf(r).src != nil }
func (sectionDispatch) HasLines(r any) bool     { return sectionOf(r).src.hasChars }
func (sectionDispatch) HasColumns(r any) bool   { return sectionOf(r).src.hasChars }
func (sectionDispatch) HasCharIndex(r any) bool { return true }
func (sectionDispatch) CharIndex(r any) int     { return sectionOf(r).start }
func (sectionDispatch) CharLength(r any) int    { return sectionOf(r).length }
func (sectionDispatch) CharEndIndex(r any) int  { return sectionOf(r).start + sectionOf(r).length }

func (s *section) lineCol(offset int) (int, int) {
	if !s.src.hasChars {
		return 0, 0
	}
	line, err := s.src.lineOf(offset)
	if err != nil || len(s.src.lines) == 0 {
		return 1, 1
	}
	return line, offset - s.src.lines[line-1] + 1
}

// endOffset is the offset of the last character, or the start of an empty
// section.
func (s *section) endOffset() int {
	if s.length == 0 {
		return s.start
	}
	return s.start + s.length - 1
}

func (sectionDispatch) StartLine(r any) int {
	l, _ := sectionOf(r).lineCol(sectionOf(r).start)
	return l
}

func (sectionDispatch) StartColumn(r any) int {
	_, c := sectionOf(r).lineCol(sectionOf(r).start)
	return c
}

func (sectionDispatch) EndLine(r any) int {
	s := sectionOf(r)
	l, _ := s.lineCol(s.endOffset())
	return l
}

func (sectionDispatch) EndColumn(r any) int {
	s := sectionOf(r)
	_, c := s.lineCol(s.endOffset())
	return c
}

func (sectionDispatch) Code(r any) string {
	s := sectionOf(r)
	if !s.src.hasChars {
		return ""
	}
	return s.src.chars[s.start : s.start+s.length]
}

func (d sectionDispatch) String(r any) string {
	s := sectionOf(r)
	if !s.src.hasChars {
		return fmt.Sprintf("%s:[%d-%d]", s.src.name, s.start, s.start+s.length)
	}
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.src.name, d.StartLine(r), d.StartColumn(r), d.EndLine(r), d.EndColumn(r))
}

func (sectionDispatch) Equal(r any, other any) bool {
	a := sectionOf(r)
	b, ok := other.(*section)
	return ok && a.start == b.start && a.length == b.length && equalSources(a.src, b.src)
}

func (sectionDispatch) Hash(r any) uint64 {
	s := sectionOf(r)
	return s.src.hash()*31 + uint64(s.start)*17 + uint64(s.length)
}
