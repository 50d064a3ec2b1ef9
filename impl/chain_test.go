package impl

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/polyglot/errors"
)

type stubEngine struct{ owner string }

type stubBackend struct {
	name     string
	priority int
	accept   func(Request) bool
	buildErr error
	closeErr error

	env      *Env
	built    int
	asked    int
	preInits int
	resets   int
	closed   bool
	lastReq  *EngineRequest
}

func (b *stubBackend) Name() string  { return b.name }
func (b *stubBackend) Priority() int { return b.priority }

func (b *stubBackend) Initialize(env *Env) error {
	b.env = env
	return nil
}

func (b *stubBackend) Supports(req Request) bool {
	b.asked++
	if b.accept == nil {
		return false
	}
	return b.accept(req)
}

func (b *stubBackend) BuildEngine(req *EngineRequest) (EngineRef, error) {
	b.built++
	b.lastReq = req
	if b.buildErr != nil {
		return EngineRef{}, b.buildErr
	}
	return EngineRef{Receiver: &stubEngine{owner: b.name}}, nil
}

func (b *stubBackend) PreInitializeEngine() error {
	b.preInits++
	return nil
}

func (b *stubBackend) ResetPreInitializedEngine() error {
	b.resets++
	return nil
}

func (b *stubBackend) SourceDispatch() SourceDispatch               { return nil }
func (b *stubBackend) SourceSectionDispatch() SourceSectionDispatch { return nil }
func (b *stubBackend) ManagementDispatch() ManagementDispatch       { return nil }
func (b *stubBackend) HostAccess() HostAccessDispatch               { return nil }

func (b *stubBackend) Close(context.Context) error {
	b.closed = true
	return b.closeErr
}

type detectingBackend struct {
	stubBackend
}

func (*detectingBackend) LanguageOfMimeType(mime string) (string, bool) {
	return "stub", mime == "text/x-stub"
}

func (*detectingBackend) DetectMimeType(path string, _ []byte) (string, bool) {
	return "text/x-stub", strings.HasSuffix(path, ".stub")
}

func acceptAll(Request) bool { return true }

func acceptOp(op Operation) func(Request) bool {
	return func(req Request) bool { return req.Op == op }
}

func TestChain_ResolveLowestPriority(t *testing.T) {
	slow := &stubBackend{name: "slow", priority: 100, accept: acceptAll}
	fast := &stubBackend{name: "fast", priority: 10, accept: acceptAll}

	chain, err := NewChain(NewCapabilities(), slow, fast)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	got, err := chain.Resolve(Request{Op: OpBuildEngine})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != fast {
		t.Errorf("resolved %s, want fast", got.Name())
	}
	if slow.asked != 0 {
		t.Errorf("lower-ranked backend was asked %d times", slow.asked)
	}
}

func TestChain_FallsThroughDecliningBackend(t *testing.T) {
	// priority 0 declines, priority 1 accepts: the engine must come from
	// priority 1 and priority 0 must never build anything.
	p0 := &stubBackend{name: "p0", priority: 0}
	p1 := &stubBackend{name: "p1", priority: 1, accept: acceptAll}

	chain, err := NewChain(NewCapabilities(), p1, p0)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	ref, b, err := chain.BuildEngine(&EngineRequest{Options: map[string]string{"x": "1"}})
	if err != nil {
		t.Fatalf("BuildEngine failed: %v", err)
	}
	if b != p1 {
		t.Errorf("engine built by %s, want p1", b.Name())
	}
	if ref.Receiver.(*stubEngine).owner != "p1" {
		t.Errorf("receiver owned by %s", ref.Receiver.(*stubEngine).owner)
	}
	if p0.asked != 1 {
		t.Errorf("p0 asked %d times, want 1", p0.asked)
	}
	if p0.built != 0 {
		t.Errorf("declining backend built %d engines", p0.built)
	}
	if p1.lastReq.Log == nil {
		t.Error("chain did not build a logger for the request")
	}
}

func TestChain_EmptyChain(t *testing.T) {
	chain, err := NewChain(NewCapabilities())
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	if _, err := chain.Resolve(Request{Op: OpBuildEngine}); !stderrors.Is(err, errors.ErrNoCompatibleBackend) {
		t.Errorf("Resolve: expected no compatible backend, got %v", err)
	}
	if _, _, err := chain.BuildEngine(&EngineRequest{}); !stderrors.Is(err, errors.ErrNoCompatibleBackend) {
		t.Errorf("BuildEngine: expected no compatible backend, got %v", err)
	}
	if _, err := chain.SourceDispatch(); !stderrors.Is(err, errors.ErrNoCompatibleBackend) {
		t.Errorf("SourceDispatch: expected no compatible backend, got %v", err)
	}
	if err := chain.PreInitialize(); err != nil {
		t.Errorf("PreInitialize on empty chain should be a no-op, got %v", err)
	}
}

func TestChain_NoBackendAccepts(t *testing.T) {
	a := &stubBackend{name: "a", priority: 1}
	b := &stubBackend{name: "b", priority: 2}
	chain, err := NewChain(NewCapabilities(), a, b)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	_, _, err = chain.BuildEngine(&EngineRequest{})
	if !stderrors.Is(err, errors.ErrNoCompatibleBackend) {
		t.Fatalf("expected no compatible backend, got %v", err)
	}
	if a.built+b.built != 0 {
		t.Error("a backend that declined was asked to build")
	}
}

func TestChain_BuildFailureIsFinal(t *testing.T) {
	boom := stderrors.New("boom")
	first := &stubBackend{name: "first", priority: 1, accept: acceptAll, buildErr: boom}
	second := &stubBackend{name: "second", priority: 2, accept: acceptAll}

	chain, err := NewChain(NewCapabilities(), first, second)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	ref, b, err := chain.BuildEngine(&EngineRequest{})
	if !stderrors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if ref.Receiver != nil || b != nil {
		t.Error("failed build returned a handle")
	}
	if second.built != 0 {
		t.Error("chain fell through after a build failure")
	}
}

func TestChain_ResolveAfter(t *testing.T) {
	a := &stubBackend{name: "a", priority: 1, accept: acceptAll}
	b := &stubBackend{name: "b", priority: 2, accept: acceptOp(OpHostAccess)}
	c := &stubBackend{name: "c", priority: 3, accept: acceptAll}

	chain, err := NewChain(NewCapabilities(), c, b, a)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	got, err := chain.ResolveAfter(a, Request{Op: OpSourceDispatch})
	if err != nil {
		t.Fatalf("ResolveAfter failed: %v", err)
	}
	if got != c {
		t.Errorf("ResolveAfter(a) = %s, want c", got.Name())
	}

	got, err = chain.ResolveAfter(a, Request{Op: OpHostAccess})
	if err != nil {
		t.Fatalf("ResolveAfter failed: %v", err)
	}
	if got != b {
		t.Errorf("ResolveAfter(a, host) = %s, want b", got.Name())
	}

	if _, err := chain.ResolveAfter(c, Request{Op: OpSourceDispatch}); !stderrors.Is(err, errors.ErrNoCompatibleBackend) {
		t.Errorf("ResolveAfter(last) expected no compatible backend, got %v", err)
	}

	stranger := &stubBackend{name: "stranger"}
	if _, err := chain.ResolveAfter(stranger, Request{}); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("ResolveAfter(unknown) expected not found, got %v", err)
	}
}

func TestChain_RejectsRepeatedBackend(t *testing.T) {
	a := &stubBackend{name: "a"}
	if _, err := NewChain(NewCapabilities(), a, a); err == nil {
		t.Fatal("expected error for a backend listed twice")
	}
	if _, err := NewChain(NewCapabilities(), a, nil); err == nil {
		t.Fatal("expected error for a nil backend")
	}
}

func TestChain_StableOrderForTies(t *testing.T) {
	a := &stubBackend{name: "a", priority: 5, accept: acceptAll}
	b := &stubBackend{name: "b", priority: 5, accept: acceptAll}
	chain, err := NewChain(NewCapabilities(), a, b)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}
	got, _ := chain.Resolve(Request{Op: OpBuildEngine})
	if got != a {
		t.Errorf("tie resolved to %s, want a", got.Name())
	}
	if names := chain.Backends(); len(names) != 2 || names[0] != a || names[1] != b {
		t.Errorf("Backends() order wrong")
	}
}

func TestChain_InitializeGetsEnv(t *testing.T) {
	caps := NewCapabilities()
	a := &stubBackend{name: "a"}
	chain, err := NewChain(caps, a)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}
	if a.env == nil || a.env.Chain != chain || a.env.Capabilities != caps {
		t.Error("backend did not receive the chain environment")
	}
}

func TestChain_PreInitializeRouting(t *testing.T) {
	plain := &stubBackend{name: "plain", priority: 1, accept: acceptOp(OpBuildEngine)}
	warm := &stubBackend{name: "warm", priority: 2, accept: acceptOp(OpPreInitialize)}
	chain, err := NewChain(NewCapabilities(), plain, warm)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	if err := chain.PreInitialize(); err != nil {
		t.Fatalf("PreInitialize failed: %v", err)
	}
	if err := chain.ResetPreInitialized(); err != nil {
		t.Fatalf("ResetPreInitialized failed: %v", err)
	}
	if warm.preInits != 1 || warm.resets != 1 {
		t.Errorf("warm backend preInits=%d resets=%d", warm.preInits, warm.resets)
	}
	if plain.preInits != 0 {
		t.Error("backend without warmup support was pre-initialized")
	}
}

func TestChain_LogLevelOption(t *testing.T) {
	var buf bytes.Buffer
	a := &stubBackend{name: "a", accept: acceptAll}
	chain, err := NewChain(NewCapabilities(), a)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	req := &EngineRequest{
		LogSink: &buf,
		Options: map[string]string{LogLevelOption: "debug"},
	}
	_, _, err = chain.BuildEngine(req)
	if err != nil {
		t.Fatalf("BuildEngine failed: %v", err)
	}
	if req.Log != nil {
		t.Error("BuildEngine modified the caller's request")
	}
	if a.lastReq == req || a.lastReq.LogSink != req.LogSink {
		t.Error("backend did not get a derived copy of the request")
	}
	a.lastReq.Log.Debug("hello from the engine")
	if !strings.Contains(buf.String(), "hello from the engine") {
		t.Errorf("debug message missing from sink: %q", buf.String())
	}

	_, _, err = chain.BuildEngine(&EngineRequest{
		Options: map[string]string{LogLevelOption: "loud"},
	})
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestChain_Detectors(t *testing.T) {
	d := &detectingBackend{stubBackend{name: "d", priority: 2}}
	a := &stubBackend{name: "a", priority: 1}
	chain, err := NewChain(NewCapabilities(), a, d)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	dets := chain.Detectors()
	if len(dets) != 1 {
		t.Fatalf("got %d detectors, want 1", len(dets))
	}
	if mime, ok := dets[0].DetectMimeType("x.stub", nil); !ok || mime != "text/x-stub" {
		t.Errorf("DetectMimeType = %q, %v", mime, ok)
	}
}

func TestChain_Close(t *testing.T) {
	boom := stderrors.New("boom")
	a := &stubBackend{name: "a", closeErr: boom}
	b := &stubBackend{name: "b"}
	chain, err := NewChain(NewCapabilities(), a, b)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	err = chain.Close(context.Background())
	if !stderrors.Is(err, boom) {
		t.Errorf("Close error = %v, want boom", err)
	}
	if !a.closed || !b.closed {
		t.Error("not every backend was closed")
	}
}

func TestChain_ConcurrentResolve(t *testing.T) {
	ro := &readOnlyBackend{stubBackend{name: "ro", priority: 1}}
	chain, err := NewChain(NewCapabilities(), ro)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := chain.Resolve(Request{Op: OpBuildEngine})
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent Resolve failed: %v", err)
		}
	}
}

// readOnlyBackend keeps Supports free of writes so it can be resolved from
// many goroutines.
type readOnlyBackend struct {
	stubBackend
}

func (*readOnlyBackend) Supports(Request) bool { return true }
