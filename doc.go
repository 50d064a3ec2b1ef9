// Package polyglot embeds guest languages behind a stable facade.
//
// The facade holds no execution logic. Every handle it returns (Engine,
// Context, Value, Source, ...) pairs a dispatch table with a receiver owned
// by a backend, and every operation is forwarded through the table. Backends
// form a chain ordered by priority: the first backend that accepts a request
// serves it, so an optimising backend can decline what it does not know and
// let a baseline backend answer.
//
// # Architecture Overview
//
//	polyglot/            Facade handles, configs, capability providers
//	├── impl/            Dispatch contracts, backend chain, capability registry
//	├── convert/         Adaptive conversion cache at the native boundary
//	├── backend/host/    Baseline backend: Go values, json language, sources
//	├── backend/wasm/    Optimising backend: WebAssembly with wazero
//	├── errors/          Structured error types
//	└── cmd/polyglot/    Command line runner and interactive shell
//
// # Quick Start
//
//	if err := polyglot.Install(wasm.New(), host.New()); err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := polyglot.NewEngine(polyglot.EngineConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(true)
//
//	ctx, err := eng.NewContext(polyglot.ContextConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	src, _ := polyglot.BuildSource(polyglot.SourceConfig{Path: "add.wasm"})
//	mod, err := ctx.Eval(src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sum, _ := mod.Invoke("add", int32(1), int32(2))
//	fmt.Println(sum) // 3
//
// # Capabilities
//
// Three providers exist at most once per process: the API bridge backends
// use to build and take apart handles, the management bridge that builds
// execution events, and the I/O bridge for process commands and redirects.
// The facade registers the first two when it is first used; the I/O bridge
// is loaded on first request.
//
// # Values
//
// A Value answers capability queries (IsNumber, HasMembers, CanExecute,
// HasBufferElements, ...) and offers the operations each capability gates.
// Calling an operation whose capability is absent fails with
// errors.ErrUnsupportedOperation. Buffer reads and writes take an explicit
// byte order and offset; writes to a read-only buffer fail with
// errors.ErrBufferNotWritable.
//
// # Options
//
// EngineConfig.Options go to the backend chain. With UseSystemProperties the
// POLYGLOT_OPTIONS environment variable (k=v,k=v) is merged underneath.
package polyglot
