package impl

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/polyglot/errors"
)

// LogLevelOption is the engine/context option selecting the minimum level of
// loggers built from a stream sink.
const LogLevelOption = "log.level"

// NewLogger turns an embedder-supplied log sink into a zap logger.
//
//	nil            -> the package logger
//	*zap.Logger    -> used as is
//	zapcore.Core   -> wrapped
//	io.Writer      -> console encoder writing to the stream
//
// level is parsed with zapcore.ParseLevel and only applies to stream sinks.
func NewLogger(sink any, level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
				Path(LogLevelOption).
				Value(level).
				Cause(err).
				Detail("invalid log level").
				Build()
		}
		lvl = parsed
	}

	switch s := sink.(type) {
	case nil:
		return Logger(), nil
	case *zap.Logger:
		return s, nil
	case zapcore.Core:
		return zap.New(s), nil
	case io.Writer:
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.TimeKey = ""
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(s), lvl)
		return zap.New(core), nil
	default:
		return nil, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			GoType(fmt.Sprintf("%T", sink)).
			Detail("log sink must be a *zap.Logger, zapcore.Core or io.Writer").
			Build()
	}
}
