package polyglot

import (
	"os"
	"strings"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// OptionsEnv is the environment variable holding system options, as
// comma-separated key=value pairs.
const OptionsEnv = "POLYGLOT_OPTIONS"

// OptionDescriptor describes one option an engine, language or instrument
// understands.
type OptionDescriptor = impl.OptionDescriptor

// parseSystemOptions parses "k=v,k=v". Empty entries are skipped.
func parseSystemOptions(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		k, v, ok := strings.Cut(entry, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
				Path(OptionsEnv).
				Value(entry).
				Detail("system option must be key=value").
				Build()
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// mergeOptions layers explicit options over system options when asked to.
// The result is a fresh map.
func mergeOptions(explicit map[string]string, useSystem bool) (map[string]string, error) {
	out := make(map[string]string, len(explicit))
	if useSystem {
		sys, err := parseSystemOptions(os.Getenv(OptionsEnv))
		if err != nil {
			return nil, err
		}
		for k, v := range sys {
			out[k] = v
		}
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out, nil
}
