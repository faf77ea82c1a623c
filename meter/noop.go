package meter

import "github.com/catalystlabs/gengate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ gengate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAttempt(gengate.AttemptEvent)   {}
func (m *NoopMeter) OnResult(gengate.ResultEvent)     {}
func (m *NoopMeter) OnBackoff(gengate.BackoffEvent)   {}
func (m *NoopMeter) OnAbandoned(gengate.AbandonEvent) {}
