package wasm

// Hand-assembled modules for the tests. Only the sections the tests need
// are encoded: types, functions, one memory, one mutable i32 global,
// exports and code.

const (
	i32 byte = 0x7f
	i64 byte = 0x7e
	f32 byte = 0x7d
	f64 byte = 0x7c
	ref byte = 0x6f
)

type testFunc struct {
	export  string
	params  []byte
	results []byte
	body    []byte
}

type testModule struct {
	funcs  []testFunc
	memory string
	pages  uint32
	global string
}

func uleb(n uint32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			return out
		}
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, body []byte) []byte {
	out := append([]byte{id}, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func (m testModule) encode() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	var types, indices, codes, exports [][]byte
	for i, f := range m.funcs {
		ft := append([]byte{0x60}, vec(bytesOf(f.params)...)...)
		ft = append(ft, vec(bytesOf(f.results)...)...)
		types = append(types, ft)
		indices = append(indices, uleb(uint32(i)))

		body := append([]byte{0x00}, f.body...)
		body = append(body, 0x0b)
		codes = append(codes, append(uleb(uint32(len(body))), body...))

		exports = append(exports, append(append(name(f.export), 0x00), uleb(uint32(i))...))
	}
	if m.memory != "" {
		exports = append(exports, append(name(m.memory), 0x02, 0x00))
	}
	if m.global != "" {
		exports = append(exports, append(name(m.global), 0x03, 0x00))
	}

	out = append(out, section(0x01, vec(types...))...)
	out = append(out, section(0x03, vec(indices...))...)
	if m.memory != "" {
		out = append(out, section(0x05, vec(append([]byte{0x00}, uleb(m.pages)...)))...)
	}
	if m.global != "" {
		out = append(out, section(0x06, vec([]byte{i32, 0x01, 0x41, 0x00, 0x0b}))...)
	}
	out = append(out, section(0x07, vec(exports...))...)
	out = append(out, section(0x0a, vec(codes...))...)
	return out
}

func bytesOf(types []byte) [][]byte {
	out := make([][]byte, len(types))
	for i, t := range types {
		out[i] = []byte{t}
	}
	return out
}

var addFunc = testFunc{
	export:  "add",
	params:  []byte{i32, i32},
	results: []byte{i32},
	body:    []byte{0x20, 0x00, 0x20, 0x01, 0x6a},
}

var add64Func = testFunc{
	export:  "add64",
	params:  []byte{i64, i64},
	results: []byte{i64},
	body:    []byte{0x20, 0x00, 0x20, 0x01, 0x7c},
}

var mulFunc = testFunc{
	export:  "mul",
	params:  []byte{f64, f64},
	results: []byte{f64},
	body:    []byte{0x20, 0x00, 0x20, 0x01, 0xa2},
}

var negFunc = testFunc{
	export:  "neg",
	params:  []byte{f32},
	results: []byte{f32},
	body:    []byte{0x20, 0x00, 0x8c},
}

var divFunc = testFunc{
	export:  "div",
	params:  []byte{i32, i32},
	results: []byte{i32},
	body:    []byte{0x20, 0x00, 0x20, 0x01, 0x6d},
}

// pair returns (7, 9).
var pairFunc = testFunc{
	export:  "pair",
	results: []byte{i32, i64},
	body:    []byte{0x41, 0x07, 0x42, 0x09},
}

var trapFunc = testFunc{
	export: "trap",
	body:   []byte{0x00},
}

// spin loops forever.
var spinFunc = testFunc{
	export: "spin",
	body:   []byte{0x03, 0x40, 0x0c, 0x00, 0x0b},
}

var noopFunc = testFunc{
	export: "noop",
}

var storeFunc = testFunc{
	export: "store",
	params: []byte{i32, i32},
	body:   []byte{0x20, 0x00, 0x20, 0x01, 0x36, 0x02, 0x00},
}

var loadFunc = testFunc{
	export:  "load",
	params:  []byte{i32},
	results: []byte{i32},
	body:    []byte{0x20, 0x00, 0x28, 0x02, 0x00},
}

// bump increments the exported global.
var bumpFunc = testFunc{
	export: "bump",
	body:   []byte{0x23, 0x00, 0x41, 0x01, 0x6a, 0x24, 0x00},
}

// echo returns its externref argument.
var echoFunc = testFunc{
	export:  "echo",
	params:  []byte{ref},
	results: []byte{ref},
	body:    []byte{0x20, 0x00},
}

// sink drops its externref argument.
var sinkFunc = testFunc{
	export: "sink",
	params: []byte{ref},
	body:   []byte{0x20, 0x00, 0x1a},
}

var (
	refModule    = testModule{funcs: []testFunc{echoFunc, sinkFunc}}
	mathModule   = testModule{funcs: []testFunc{addFunc, add64Func, mulFunc, negFunc, divFunc, pairFunc, trapFunc, noopFunc}}
	memoryModule = testModule{funcs: []testFunc{storeFunc, loadFunc}, memory: "memory", pages: 1}
	globalModule = testModule{funcs: []testFunc{bumpFunc}, global: "counter"}
	spinModule   = testModule{funcs: []testFunc{spinFunc}}
)
