package runtime

import (
	"context"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"
)

// makeClog2Fn creates the "clog2" host function.
//
// clog2(n) → ceiling of log2(n); clog2(0) and clog2(1) are 0
func makeClog2Fn() *object.Builtin {
	return object.NewBuiltin("clog2", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("clog2", 1, len(args))
		}
		n, ok := args[0].(*object.Int)
		if !ok {
			return object.Errorf("clog2: argument must be an int, got %s", args[0].Type())
		}
		var r int64
		for v := uint64(1); v < uint64(max(n.Value(), 0)); v <<= 1 {
			r++
		}
		return object.NewInt(r)
	})
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, zap.String("source", "risor"))
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, zap.String("source", "risor"))
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, zap.String("source", "risor"))
}
