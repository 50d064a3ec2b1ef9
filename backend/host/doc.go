// Package host is the baseline backend. It accepts every request the chain
// routes to it, so it belongs last in a chain.
//
// # Values
//
// Host values are Go values exposed by reflection:
//
//	Go value                     capabilities
//	─────────────────────────────────────────────────────────
//	nil                          null
//	bool                         boolean
//	integers, floats             number (uintptr: + native pointer)
//	string                       string
//	[]byte                       writable buffer, array, iterable
//	ReadOnlyBuffer               buffer
//	slices, arrays               array, iterable
//	map[string]T                 members, hash entries
//	other maps                   hash entries
//	structs, *struct             members (exported fields and methods)
//	funcs                        executable
//	time.Time                    date, time, instant, time zone
//	time.Duration                duration
//	*time.Location               time zone
//	error                        exception
//	ProxyObject                  proxy, members
//	ProxyExecutable              proxy, executable
//
// Every non-null value has a meta object describing its Go type. Meta
// objects are instantiable: NewInstance returns the zero value of the type.
//
// # Languages
//
// The engine offers one language, "json", evaluated with encoding/json.
// With the json.UseNumber option, integral numbers decode as int64.
//
// # Instruments
//
// The "counter" instrument counts evaluations and executions. Look it up
// with the *Counter type.
package host
