// Package impl is the service-provider interface between the polyglot facade
// and the backends that implement it.
//
// Three pieces live here:
//
//   - Capabilities: a registry of the three process-wide providers (API
//     access, management access, I/O access). Each capability holds at most
//     one concrete provider type; the first registration wins.
//   - Chain: the backends ordered by ascending priority. A request is served
//     by the first backend whose Supports method accepts it, which lets an
//     optimising backend decline and fall through to a baseline one.
//   - Dispatch tables: one interface per handle kind (engine, context,
//     value, source and so on). Backends implement them over opaque
//     receivers; the facade pairs each receiver with its table in a Ref.
//
// Backends import this package and never the facade:
//
//	type myBackend struct{ env *impl.Env }
//
//	func (b *myBackend) Priority() int { return 50 }
//	func (b *myBackend) Supports(req impl.Request) bool {
//	    return req.Op == impl.OpBuildEngine
//	}
//
//	chain, err := impl.NewChain(impl.DefaultCapabilities(), &myBackend{}, host.New())
//
// Values expose two halves: Caps reports what a value can do and the
// remaining ValueDispatch methods do it. BaseValueDispatch answers every
// operation with errors.ErrUnsupportedOperation so backends only override
// what their values support.
package impl
