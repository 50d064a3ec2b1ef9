package host

import (
	"fmt"
	"strings"

	"github.com/wippyai/polyglot/impl"
)

type exceptionKind uint16

const (
	excSyntax exceptionKind = 1 << iota
	excIncomplete
	excInternal
	excCancelled
	excInterrupted
	excExit
	excResourceExhausted
	excHost
)

// guestError is the receiver of exceptions raised by the host backend.
type guestError struct {
	msg        string
	kind       exceptionKind
	exitStatus int
	hostErr    error
	guest      any
	location   *section
	frames     []frame
	scope      *scope
}

func (g *guestError) Error() string { return g.msg }

func (g *guestError) Unwrap() error { return g.hostErr }

type frame struct {
	root     string
	lang     *language
	location *section
	host     bool
}

type exceptionDispatch struct{ b *Backend }

func exceptionOf(r any) *guestError { return r.(*guestError) }

func (exceptionDispatch) Message(r any) string       { return exceptionOf(r).msg }
func (exceptionDispatch) IsInternalError(r any) bool { return exceptionOf(r).kind&excInternal != 0 }
func (exceptionDispatch) IsCancelled(r any) bool     { return exceptionOf(r).kind&excCancelled != 0 }
func (exceptionDispatch) IsInterrupted(r any) bool   { return exceptionOf(r).kind&excInterrupted != 0 }
func (exceptionDispatch) IsExit(r any) bool          { return exceptionOf(r).kind&excExit != 0 }
func (exceptionDispatch) ExitStatus(r any) int       { return exceptionOf(r).exitStatus }
func (exceptionDispatch) IsSyntaxError(r any) bool   { return exceptionOf(r).kind&excSyntax != 0 }
func (exceptionDispatch) IsIncompleteSource(r any) bool {
	return exceptionOf(r).kind&excIncomplete != 0
}
func (exceptionDispatch) IsResourceExhausted(r any) bool {
	return exceptionOf(r).kind&excResourceExhausted != 0
}
func (exceptionDispatch) IsHostException(r any) bool { return exceptionOf(r).kind&excHost != 0 }
func (exceptionDispatch) HostError(r any) error      { return exceptionOf(r).hostErr }

func (d exceptionDispatch) GuestObject(r any) (impl.ValueRef, bool) {
	g := exceptionOf(r)
	if g.guest == nil || g.scope == nil {
		return impl.ValueRef{}, false
	}
	return g.scope.wrap(g.guest), true
}

func (d exceptionDispatch) SourceLocation(r any) (impl.SourceSectionRef, bool) {
	g := exceptionOf(r)
	if g.location == nil {
		return impl.SourceSectionRef{}, false
	}
	return impl.SourceSectionRef{Dispatch: d.b.sections, Receiver: g.location}, true
}

func (d exceptionDispatch) StackTrace(r any) []impl.StackFrameRef {
	g := exceptionOf(r)
	out := make([]impl.StackFrameRef, len(g.frames))
	for i := range g.frames {
		out[i] = impl.StackFrameRef{Dispatch: d.b.frames, Receiver: &g.frames[i]}
	}
	return out
}

type frameDispatch struct{ b *Backend }

func frameOf(r any) *frame { return r.(*frame) }

func (frameDispatch) RootName(r any) string  { return frameOf(r).root }
func (frameDispatch) IsHostFrame(r any) bool { return frameOf(r).host }

func (d frameDispatch) Language(r any) (impl.LanguageRef, bool) {
	f := frameOf(r)
	if f.lang == nil {
		return impl.LanguageRef{}, false
	}
	return impl.LanguageRef{Dispatch: d.b.languages, Receiver: f.lang}, true
}

func (d frameDispatch) SourceLocation(r any) (impl.SourceSectionRef, bool) {
	f := frameOf(r)
	if f.location == nil {
		return impl.SourceSectionRef{}, false
	}
	return impl.SourceSectionRef{Dispatch: d.b.sections, Receiver: f.location}, true
}

func (d frameDispatch) String(r any) string {
	f := frameOf(r)
	var b strings.Builder
	if f.lang != nil {
		b.WriteString("<" + f.lang.id + "> ")
	} else if f.host {
		b.WriteString("<host> ")
	}
	b.WriteString(f.root)
	if f.location != nil {
		fmt.Fprintf(&b, "(%s)", d.b.sections.String(f.location))
	}
	return b.String()
}
