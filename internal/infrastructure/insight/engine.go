package insight

import (
	"log/slog"

	"SignalScanner/internal/config"
	"SignalScanner/internal/ports"
)

// Engine implements ports.InsightEngine on top of an OpenAI-compatible
// completion/embedding backend.
type Engine struct {
	client          *client
	embedBatchLimit int
	logger          *slog.Logger
}

var _ ports.InsightEngine = (*Engine)(nil)

// NewEngine builds the engine from configuration.
func NewEngine(cfg config.InsightConfig, logger *slog.Logger) *Engine {
	limit := cfg.EmbedBatchLimit
	if limit <= 0 {
		limit = 100
	}
	return &Engine{
		client:          newClient(cfg),
		embedBatchLimit: limit,
		logger:          logger,
	}
}

func (e *Engine) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
