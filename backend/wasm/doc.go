// Package wasm is the optimising backend of the implementation chain. It
// runs WebAssembly modules with wazero.
//
// The backend builds an engine only when it knows every option of the
// request; otherwise the chain falls back to the next link. An engine it
// builds wraps an engine of the next link, which serves every other
// language and turns call results into host values.
//
// Evaluating a wasm source compiles and instantiates it. The resulting
// module value exposes exported functions as executable members, exported
// memories as writable buffers and exported globals by value:
//
//	mod, _ := ctx.Eval(src)
//	sum, _ := mod.Invoke("add", int32(1), int32(2))
//
// Arguments and results cross through per-function conversion sites keyed
// by the WebAssembly value types of the signature.
//
// # Options
//
//	wasm.MemoryLimitPages  maximum memory size in 64KiB pages
//	wasm.Interpreter       use the interpreter instead of the compiler
//	wasm.Interruptible     stop running calls on interrupt (default true)
//	wasm.Threads           threads proposal, experimental
package wasm
