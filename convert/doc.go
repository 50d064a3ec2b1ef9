// Package convert converts values across a native-interop boundary.
//
// A Descriptor names a native type. Descriptors are interned, so identity
// comparison is type comparison:
//
//	convert.Of(convert.KindSint32) == convert.Of(convert.KindSint32)
//	convert.ArrayOf(convert.Of(convert.KindDouble)) // array<double>
//
// Native forms follow the WebAssembly stack encoding used by wazero:
//
//	bool, integers, float, double, pointer  uint64 raw bits
//	string                                  NUL-terminated []byte
//	object                                  uint64 handle (0 is nil)
//	array                                   []any of element natives
//	void                                    nil
//
// A Site caches converters per descriptor. Up to Limit descriptors are
// served by cached converters; the next distinct descriptor switches the
// site to the generic path, which looks the converter up on every call.
// Both paths produce identical results. Failures are errors.ErrUnsupportedType
// and carry the offending value and descriptor.
//
//	b := convert.NewBoundary()
//	site := b.NewSite()
//	raw, err := site.ToNative(convert.Of(convert.KindSint32), 42)
//	v, err := site.FromNative(convert.Of(convert.KindSint32), raw)
package convert
