package wasm

import (
	stderrors "errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/polyglot/impl"
)

type exceptionKind uint16

const (
	excSyntax exceptionKind = 1 << iota
	excInternal
	excCancelled
	excInterrupted
	excExit
	excResourceExhausted
)

// guestError is the receiver of exceptions raised by the wasm backend.
type guestError struct {
	msg        string
	kind       exceptionKind
	exitStatus int
	frames     []frame
	cause      error
}

func (g *guestError) Error() string { return g.msg }

func (g *guestError) Unwrap() error { return g.cause }

type frame struct {
	root string
}

func interruptedError() *guestError {
	return &guestError{msg: "execution interrupted", kind: excInterrupted | excCancelled}
}

// trap classifies an error of a wazero call and raises it.
func (c *execContext) trap(err error) error {
	return c.engine.backend.raise(classify(err, c.interrupted.Load()))
}

func classify(err error, interrupted bool) *guestError {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		switch code := exit.ExitCode(); code {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			g := interruptedError()
			g.cause = err
			return g
		default:
			if interrupted {
				g := interruptedError()
				g.cause = err
				return g
			}
			return &guestError{
				msg:        err.Error(),
				kind:       excExit,
				exitStatus: int(code),
				cause:      err,
			}
		}
	}
	msg, frames := splitTrace(err.Error())
	g := &guestError{msg: msg, frames: frames, cause: err}
	if !strings.HasPrefix(msg, "wasm error:") {
		g.kind = excInternal
	}
	return g
}

// splitTrace separates a wazero error message from the stack trace wazero
// appends to it. Frames read like "module.function(i32,i32) i32".
func splitTrace(s string) (string, []frame) {
	msg, trace, ok := strings.Cut(s, "\nwasm stack trace:")
	if !ok {
		return s, nil
	}
	var frames []frame
	for _, line := range strings.Split(trace, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "0x") {
			continue
		}
		if i := strings.IndexByte(line, '('); i >= 0 {
			line = line[:i]
		}
		if i := strings.LastIndexByte(line, '.'); i >= 0 {
			line = line[i+1:]
		}
		frames = append(frames, frame{root: line})
	}
	return msg, frames
}

type exceptionDispatch struct{ b *Backend }

func exceptionOf(r any) *guestError { return r.(*guestError) }

func (exceptionDispatch) Message(r any) string        { return exceptionOf(r).msg }
func (exceptionDispatch) IsInternalError(r any) bool  { return exceptionOf(r).kind&excInternal != 0 }
func (exceptionDispatch) IsCancelled(r any) bool      { return exceptionOf(r).kind&excCancelled != 0 }
func (exceptionDispatch) IsInterrupted(r any) bool    { return exceptionOf(r).kind&excInterrupted != 0 }
func (exceptionDispatch) IsExit(r any) bool           { return exceptionOf(r).kind&excExit != 0 }
func (exceptionDispatch) ExitStatus(r any) int        { return exceptionOf(r).exitStatus }
func (exceptionDispatch) IsSyntaxError(r any) bool    { return exceptionOf(r).kind&excSyntax != 0 }
func (exceptionDispatch) IsIncompleteSource(any) bool { return false }
func (exceptionDispatch) IsResourceExhausted(r any) bool {
	return exceptionOf(r).kind&excResourceExhausted != 0
}
func (exceptionDispatch) IsHostException(any) bool              { return false }
func (exceptionDispatch) HostError(any) error                   { return nil }
func (exceptionDispatch) GuestObject(any) (impl.ValueRef, bool) { return impl.ValueRef{}, false }

func (exceptionDispatch) SourceLocation(any) (impl.SourceSectionRef, bool) {
	return impl.SourceSectionRef{}, false
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

func (frameDispatch) RootName(r any) string { return frameOf(r).root }
func (frameDispatch) IsHostFrame(any) bool  { return false }
func (frameDispatch) String(r any) string   { return "<wasm> " + frameOf(r).root }

func (d frameDispatch) Language(any) (impl.LanguageRef, bool) {
	return impl.LanguageRef{Dispatch: d.b.languages, Receiver: wasmLanguage}, true
}

func (frameDispatch) SourceLocation(any) (impl.SourceSectionRef, bool) {
	return impl.SourceSectionRef{}, false
}
