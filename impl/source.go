package impl

import "net/url"

// SourceRequest carries the fields of a source being built. Content is a
// string for character sources or []byte for binary ones.
type SourceRequest struct {
	Origin      any
	Content     any
	URI         *url.URL
	Language    string
	Name        string
	Path        string
	MimeType    string
	Encoding    string
	Interactive bool
	Internal    bool
	Cached      bool
}

// SourceDispatch is the operation contract of a source.
type SourceDispatch interface {
	Build(req *SourceRequest) (SourceRef, error)

	Name(receiver any) string
	Path(receiver any) string
	URI(receiver any) *url.URL
	Language(receiver any) string
	MimeType(receiver any) string
	IsInteractive(receiver any) bool
	IsInternal(receiver any) bool

	HasCharacters(receiver any) bool
	HasBytes(receiver any) bool
	Characters(receiver any) (string, error)
	Bytes(receiver any) ([]byte, error)
	Length(receiver any) int

	LineCount(receiver any) int
	LineNumber(receiver any, offset int) (int, error)
	ColumnNumber(receiver any, offset int) (int, error)
	LineStartOffset(receiver any, line int) (int, error)
	LineLength(receiver any, line int) (int, error)
	LineCharacters(receiver any, line int) (string, error)

	String(receiver any) string
	Equal(receiver any, other any) bool
	Hash(receiver any) uint64

	// FindLanguage maps a MIME type to a language id.
	FindLanguage(mimeType string) (string, bool)
	// FindLanguageOfFile sniffs a file's name and content.
	FindLanguageOfFile(path string) (string, error)
	// FindMimeType sniffs a file's MIME type.
	FindMimeType(path string) (string, error)
}

// SourceSectionDispatch is the operation contract of a source section.
// Lines and columns are 1-based; character indices are 0-based.
type SourceSectionDispatch interface {
	IsAvailable(receiver any) bool
	HasLines(receiver any) bool
	HasColumns(receiver any) bool
	HasCharIndex(receiver any) bool
	StartLine(receiver any) int
	StartColumn(receiver any) int
	EndLine(receiver any) int
	EndColumn(receiver any) int
	CharIndex(receiver any) int
	CharLength(receiver any) int
	CharEndIndex(receiver any) int
	Code(receiver any) string
	String(receiver any) string
	Equal(receiver any, other any) bool
	Hash(receiver any) uint64
}
