package polyglot

import (
	"net/url"

	"github.com/wippyai/polyglot/impl"
)

// SourceConfig describes a source to build.
type SourceConfig struct {
	// Content is a string for character sources, []byte for binary ones or
	// an io.Reader. When nil the file at Path is read.
	Content any

	// Language may be empty when it can be detected from MimeType, Path or
	// the content.
	Language string
	Name     string
	Path     string
	URI      *url.URL
	MimeType string

	// Encoding decodes binary content into characters.
	Encoding string

	// Chain overrides the process chain.
	Chain *impl.Chain

	Interactive bool
	Internal    bool
	Cached      bool
}

// Source is a handle to a unit of guest code.
type Source struct {
	ref impl.SourceRef
}

// NewSource builds a character source of language with the process chain.
func NewSource(language, code, name string) (*Source, error) {
	return BuildSource(SourceConfig{Language: language, Content: code, Name: name})
}

// BuildSource builds a source from cfg.
func BuildSource(cfg SourceConfig) (*Source, error) {
	chain := cfg.Chain
	if chain == nil {
		chain = impl.DefaultChain()
	}
	return buildSource(chain, cfg)
}

func buildSource(chain *impl.Chain, cfg SourceConfig) (*Source, error) {
	if err := bootstrap(); err != nil {
		return nil, err
	}
	d, err := chain.SourceDispatch()
	if err != nil {
		return nil, err
	}
	ref, err := d.Build(&impl.SourceRequest{
		Content:     cfg.Content,
		URI:         cfg.URI,
		Language:    cfg.Language,
		Name:        cfg.Name,
		Path:        cfg.Path,
		MimeType:    cfg.MimeType,
		Encoding:    cfg.Encoding,
		Interactive: cfg.Interactive,
		Internal:    cfg.Internal,
		Cached:      cfg.Cached,
	})
	if err != nil {
		return nil, err
	}
	return &Source{ref: ref}, nil
}

// FindLanguage returns the language of a MIME type.
func FindLanguage(mimeType string) (string, bool) {
	d, err := impl.DefaultChain().SourceDispatch()
	if err != nil {
		return "", false
	}
	return d.FindLanguage(mimeType)
}

// FindLanguageOfFile detects the language of the file at path.
func FindLanguageOfFile(path string) (string, error) {
	d, err := impl.DefaultChain().SourceDispatch()
	if err != nil {
		return "", err
	}
	return d.FindLanguageOfFile(path)
}

// FindMimeType detects the MIME type of the file at path.
func FindMimeType(path string) (string, error) {
	d, err := impl.DefaultChain().SourceDispatch()
	if err != nil {
		return "", err
	}
	return d.FindMimeType(path)
}

func (s *Source) Name() string        { return s.ref.Dispatch.Name(s.ref.Receiver) }
func (s *Source) Path() string        { return s.ref.Dispatch.Path(s.ref.Receiver) }
func (s *Source) URI() *url.URL       { return s.ref.Dispatch.URI(s.ref.Receiver) }
func (s *Source) Language() string    { return s.ref.Dispatch.Language(s.ref.Receiver) }
func (s *Source) MimeType() string    { return s.ref.Dispatch.MimeType(s.ref.Receiver) }
func (s *Source) IsInteractive() bool { return s.ref.Dispatch.IsInteractive(s.ref.Receiver) }
func (s *Source) IsInternal() bool    { return s.ref.Dispatch.IsInternal(s.ref.Receiver) }
func (s *Source) HasCharacters() bool { return s.ref.Dispatch.HasCharacters(s.ref.Receiver) }
func (s *Source) HasBytes() bool      { return s.ref.Dispatch.HasBytes(s.ref.Receiver) }
func (s *Source) Length() int         { return s.ref.Dispatch.Length(s.ref.Receiver) }
func (s *Source) LineCount() int      { return s.ref.Dispatch.LineCount(s.ref.Receiver) }
func (s *Source) String() string      { return s.ref.Dispatch.String(s.ref.Receiver) }
func (s *Source) Hash() uint64        { return s.ref.Dispatch.Hash(s.ref.Receiver) }

// Characters returns the text of a character source.
func (s *Source) Characters() (string, error) {
	return s.ref.Dispatch.Characters(s.ref.Receiver)
}

// Bytes returns the content of a binary source.
func (s *Source) Bytes() ([]byte, error) {
	return s.ref.Dispatch.Bytes(s.ref.Receiver)
}

// LineNumber returns the 1-based line of a character offset.
func (s *Source) LineNumber(offset int) (int, error) {
	return s.ref.Dispatch.LineNumber(s.ref.Receiver, offset)
}

// ColumnNumber returns the 1-based column of a character offset.
func (s *Source) ColumnNumber(offset int) (int, error) {
	return s.ref.Dispatch.ColumnNumber(s.ref.Receiver, offset)
}

func (s *Source) LineStartOffset(line int) (int, error) {
	return s.ref.Dispatch.LineStartOffset(s.ref.Receiver, line)
}

func (s *Source) LineLength(line int) (int, error) {
	return s.ref.Dispatch.LineLength(s.ref.Receiver, line)
}

func (s *Source) LineCharacters(line int) (string, error) {
	return s.ref.Dispatch.LineCharacters(s.ref.Receiver, line)
}

// Equal reports whether both sources have the same content and metadata.
func (s *Source) Equal(other *Source) bool {
	if other == nil {
		return false
	}
	return s.ref.Dispatch.Equal(s.ref.Receiver, other.ref.Receiver)
}

// SourceSection is a handle to a range of a source.
type SourceSection struct {
	source *Source
	ref    impl.SourceSectionRef
}

// Source returns the source of the section, when known.
func (s *SourceSection) Source() *Source { return s.source }

func (s *SourceSection) IsAvailable() bool  { return s.ref.Dispatch.IsAvailable(s.ref.Receiver) }
func (s *SourceSection) HasLines() bool     { return s.ref.Dispatch.HasLines(s.ref.Receiver) }
func (s *SourceSection) HasColumns() bool   { return s.ref.Dispatch.HasColumns(s.ref.Receiver) }
func (s *SourceSection) HasCharIndex() bool { return s.ref.Dispatch.HasCharIndex(s.ref.Receiver) }
func (s *SourceSection) StartLine() int     { return s.ref.Dispatch.StartLine(s.ref.Receiver) }
func (s *SourceSection) StartColumn() int   { return s.ref.Dispatch.StartColumn(s.ref.Receiver) }
func (s *SourceSection) EndLine() int       { return s.ref.Dispatch.EndLine(s.ref.Receiver) }
func (s *SourceSection) EndColumn() int     { return s.ref.Dispatch.EndColumn(s.ref.Receiver) }
func (s *SourceSection) CharIndex() int     { return s.ref.Dispatch.CharIndex(s.ref.Receiver) }
func (s *SourceSection) CharLength() int    { return s.ref.Dispatch.CharLength(s.ref.Receiver) }
func (s *SourceSection) CharEndIndex() int  { return s.ref.Dispatch.CharEndIndex(s.ref.Receiver) }
func (s *SourceSection) Code() string       { return s.ref.Dispatch.Code(s.ref.Receiver) }
func (s *SourceSection) String() string     { return s.ref.Dispatch.String(s.ref.Receiver) }
func (s *SourceSection) Hash() uint64       { return s.ref.Dispatch.Hash(s.ref.Receiver) }

func (s *SourceSection) Equal(other *SourceSection) bool {
	if other == nil {
		return false
	}
	return s.ref.Dispatch.Equal(s.ref.Receiver, other.ref.Receiver)
}

func newSection(ref impl.SourceSectionRef, ok bool) (*SourceSection, bool) {
	if !ok || ref.Dispatch == nil {
		return nil, false
	}
	return &SourceSection{ref: ref}, true
}
