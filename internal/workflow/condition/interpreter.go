package condition

import (
	"errors"

	"go.uber.org/zap"
)

// Interpreter evaluates branch conditions and logs the diagnostics that make
// a condition silently false.
type Interpreter struct {
	logger *zap.Logger
}

func NewInterpreter(logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{logger: logger.With(zap.String("component", "condition"))}
}

func (i *Interpreter) Eval(cond string, vars map[string]any) (bool, error) {
	ok, err := Eval(cond, vars)
	if err == nil {
		return ok, nil
	}

	var pe *ParseError
	var mf *MissingFieldError
	switch {
	case errors.As(err, &pe):
		i.logger.Warn("unable to parse condition", zap.String("condition", cond))
	case errors.As(err, &mf):
		i.logger.Warn("field not found in context", zap.String("condition", cond), zap.String("field", mf.Field))
	default:
		i.logger.Warn("condition evaluation failed", zap.String("condition", cond), zap.Error(err))
	}
	return ok, err
}
