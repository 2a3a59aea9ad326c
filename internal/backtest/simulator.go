package backtest

import (
	"errors"

	"go.uber.org/zap"
)

// ErrInvalidParams wraps every parameter error of the simulators.
var ErrInvalidParams = errors.New("invalid backtest parameters")

// Simulator replays historical ticks through the execution strategies.
// It holds no state between runs; results depend only on the inputs.
type Simulator struct {
	logger *zap.Logger
}

func NewSimulator(logger *zap.Logger) *Simulator {
	return &Simulator{logger: logger.Named("backtest")}
}
