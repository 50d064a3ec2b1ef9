// Package errors provides structured error types for the polyglot layer.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending value, the Go type and the native
// descriptor involved, a member path and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
//		GoType("string").
//		Descriptor("sint32").
//		Value("abc").
//		Detail("no native form").
//		Build()
//
// Or use the constructors, one per failure the layer reports:
//
//	errors.DuplicateCapability("api-access", "*polyglot.apiAccess", "*other.api")
//	errors.NoCompatibleBackend("build-engine")
//	errors.UnsupportedOperation("getArrayElement", value)
//	errors.BufferNotWritable(value)
//	errors.UnsupportedType(value, "sint32")
//
// Sentinels such as ErrNoCompatibleBackend match any phase:
//
//	if errors.Is(err, errors.ErrNoCompatibleBackend) { ... }
package errors
