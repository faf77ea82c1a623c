package meter

import (
	"log/slog"

	"github.com/catalystlabs/gengate"
)

// LogMeter logs gate events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ gengate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAttempt(e gengate.AttemptEvent) {
	m.Logger.Info("attempt",
		"endpoint", e.Endpoint,
		"attempt", e.Attempt,
		"estimated_tokens", e.EstimatedTokens,
	)
}

func (m *LogMeter) OnResult(e gengate.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"endpoint", e.Endpoint,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
			"prompt_tokens", e.Usage.PromptTokens,
			"completion_tokens", e.Usage.CompletionTokens,
		)
	} else {
		m.Logger.Warn("result_error",
			"endpoint", e.Endpoint,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}

func (m *LogMeter) OnBackoff(e gengate.BackoffEvent) {
	m.Logger.Info("backoff",
		"endpoint", e.Endpoint,
		"attempt", e.Attempt,
		"delay_ms", e.Delay.Milliseconds(),
	)
}

func (m *LogMeter) OnAbandoned(e gengate.AbandonEvent) {
	m.Logger.Warn("reservation_abandoned",
		"endpoint", e.Endpoint,
		"reservation", e.ReservationID,
		"estimated_tokens", e.EstimatedTokens,
		"age_s", e.Age.Seconds(),
	)
}
