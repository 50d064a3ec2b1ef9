package main

import "testing"

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"0x10", int64(16)},
		{"1.5", 1.5},
		{"true", true},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		if got := parseArg(tt.in); got != tt.want {
			t.Errorf("parseArg(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	if got, err := parseArgs("  "); err != nil || got != nil {
		t.Fatalf("blank args = %v, %v", got, err)
	}
	got, err := parseArgs("1, x, http://host")
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if len(got) != 3 || got[0] != int64(1) || got[1] != "x" || got[2] != "http://host" {
		t.Fatalf("parseArgs = %#v", got)
	}
}

func TestParseArgs_WITTypes(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"u8:200", uint8(200)},
		{"s8:-3", int8(-3)},
		{"s32:0x10", int32(16)},
		{"u64:18446744073709551615", uint64(18446744073709551615)},
		{"f32:1.5", float32(1.5)},
		{"f64:2.25", 2.25},
		{"bool:true", true},
		{"char:é", uint32('é')},
		{"string:a:b", "a:b"},
	}
	for _, tt := range tests {
		got, err := parseArgs(tt.in)
		if err != nil {
			t.Errorf("parseArgs(%q): %v", tt.in, err)
			continue
		}
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("parseArgs(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}

	got, err := parseArgs("list<u16>:1 2 300")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	list, ok := got[0].([]any)
	if !ok || len(list) != 3 || list[2] != uint16(300) {
		t.Fatalf("list = %#v", got[0])
	}

	for _, bad := range []string{"u8:256", "s8:x", "char:ab", "list<u8>:1 -1"} {
		if _, err := parseArgs(bad); err == nil {
			t.Errorf("parseArgs(%q) accepted an invalid literal", bad)
		}
	}
}

func TestParseOptions(t *testing.T) {
	got, err := parseOptions("wasm.Interpreter=true, log.level = debug")
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if got["wasm.Interpreter"] != "true" || got["log.level"] != "debug" {
		t.Fatalf("parseOptions = %v", got)
	}
	if _, err := parseOptions("novalue"); err == nil {
		t.Fatal("expected error for an option without value")
	}
}
