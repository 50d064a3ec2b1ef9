package host

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

const (
	optUseNumber = "json.UseNumber"
	optMaxDepth  = "json.MaxDepth"
)

type options struct {
	useNumber bool
	maxDepth  int
}

var defaultOptions = options{maxDepth: 10000}

var optionDescriptors = []impl.OptionDescriptor{
	{Name: impl.LogLevelOption, Help: "Minimum level of the engine log", Default: "info"},
	{Name: optUseNumber, Help: "Decode integral JSON numbers as int64", Default: "false"},
	{Name: optMaxDepth, Help: "Maximum nesting depth of evaluated JSON", Default: "10000"},
}

// parseOptions reads the options this backend understands on top of base.
// Keys of other backends are ignored.
func parseOptions(in map[string]string, base *options) (options, error) {
	out := defaultOptions
	if base != nil {
		out = *base
	}
	for k, v := range in {
		switch k {
		case optUseNumber:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return out, invalidOption(k, v, err)
			}
			out.useNumber = b
		case optMaxDepth:
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return out, invalidOption(k, v, err)
			}
			out.maxDepth = n
		case impl.LogLevelOption:
		default:
			Logger().Debug("ignoring option", zap.String("key", k))
		}
	}
	return out, nil
}

func invalidOption(key, value string, cause error) error {
	return errors.New(errors.PhaseEngine, errors.KindInvalidInput).
		Path(key).
		Value(value).
		Cause(cause).
		Detail("invalid option value").
		Build()
}
