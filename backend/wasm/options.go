package wasm

import (
	"context"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

const (
	optMemoryLimitPages = "wasm.MemoryLimitPages"
	optInterpreter      = "wasm.Interpreter"
	optInterruptible    = "wasm.Interruptible"
	optThreads          = "wasm.Threads"
)

// maxPages is the 4GiB limit of a 32-bit memory.
const maxPages = 65536

type options struct {
	// MemoryLimitPages bounds every memory in 64KiB pages.
	memoryLimitPages uint32
	interpreter      bool
	interruptible    bool
	threads          bool
}

var defaultOptions = options{memoryLimitPages: maxPages, interruptible: true}

var optionDescriptors = []impl.OptionDescriptor{
	{Name: impl.LogLevelOption, Help: "Minimum level of the engine log", Default: "info"},
	{Name: optMemoryLimitPages, Help: "Maximum size of a memory in 64KiB pages", Default: "65536"},
	{Name: optInterpreter, Help: "Run modules in the interpreter instead of compiling them", Default: "false"},
	{Name: optInterruptible, Help: "Stop running functions when their context is interrupted", Default: "true"},
	{Name: optThreads, Help: "Enable the WebAssembly threads proposal", Default: "false", Experimental: true},
}

// known reports whether every key of in is an option of this backend.
func known(in map[string]string) bool {
	for k := range in {
		switch k {
		case optMemoryLimitPages, optInterpreter, optInterruptible, optThreads, impl.LogLevelOption:
		default:
			return false
		}
	}
	return true
}

func parseOptions(in map[string]string, allowExperimental bool) (options, error) {
	out := defaultOptions
	for k, v := range in {
		switch k {
		case optMemoryLimitPages:
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n == 0 || n > maxPages {
				return out, invalidOption(k, v, err)
			}
			out.memoryLimitPages = uint32(n)
		case optInterpreter, optInterruptible, optThreads:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return out, invalidOption(k, v, err)
			}
			switch k {
			case optInterpreter:
				out.interpreter = b
			case optInterruptible:
				out.interruptible = b
			default:
				if b && !allowExperimental {
					return out, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
						Path(k).
						Detail("experimental option requires AllowExperimentalOptions").
						Build()
				}
				out.threads = b
			}
		}
	}
	return out, nil
}

// runtimeConfig builds the wazero configuration for o. A nil cache
// compiles without caching.
func (o options) runtimeConfig(cache wazero.CompilationCache) wazero.RuntimeConfig {
	cfg := wazero.NewRuntimeConfig()
	if o.interpreter {
		cfg = wazero.NewRuntimeConfigInterpreter()
	}
	cfg = cfg.WithMemoryLimitPages(o.memoryLimitPages).
		WithCloseOnContextDone(o.interruptible)
	if o.threads {
		cfg = cfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	if cache != nil {
		cfg = cfg.WithCompilationCache(cache)
	}
	return cfg
}

func (o options) newRuntime(cache wazero.CompilationCache) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(context.Background(), o.runtimeConfig(cache))
}

func invalidOption(key, value string, cause error) error {
	return errors.New(errors.PhaseEngine, errors.KindInvalidInput).
		Path(key).
		Value(value).
		Cause(cause).
		Detail("invalid option value").
		Build()
}
