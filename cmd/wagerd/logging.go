package main

import (
	"context"

	"github.com/mverkhovyn/wagerhouse/pkg/wager"
	"go.uber.org/zap"
)

// zapOperationLogger forwards engine operation callbacks to zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func newZapOperationLogger(logger *zap.Logger) *zapOperationLogger {
	return &zapOperationLogger{logger: logger.Named("engine")}
}

func (operationLogger *zapOperationLogger) LogOperation(_ context.Context, entry wager.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount", entry.Amount),
	}
	if entry.BetID != nil {
		fields = append(fields, zap.String("bet_id", entry.BetID.String()))
	}
	if entry.Game.String() != "" {
		fields = append(fields, zap.String("game", entry.Game.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("engine operation failed", fields...)
		return
	}
	operationLogger.logger.Info("engine operation", fields...)
}
