package messaging

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

// SimulatedChannel stands in for a field network: every send takes a random
// latency up to MaxLatency and succeeds with probability SuccessRate.
type SimulatedChannel struct {
	SuccessRate float64
	MaxLatency  time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedChannel(successRate float64, maxLatency time.Duration, seed int64) *SimulatedChannel {
	return &SimulatedChannel{
		SuccessRate: successRate,
		MaxLatency:  maxLatency,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

func (s *SimulatedChannel) roll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d time.Duration
	if s.MaxLatency > 0 {
		d = time.Duration(s.rnd.Int63n(int64(s.MaxLatency)))
	}
	return d, s.rnd.Float64() < s.SuccessRate
}

func (s *SimulatedChannel) Send(ctx context.Context, msg domain.ControlMessage) error {
	latency, ok := s.roll()
	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return fmt.Errorf("%w: meter %s: %v", domain.ErrDeliveryFailure, msg.MeterID, ctx.Err())
	}
	if !ok {
		return fmt.Errorf("%w: meter %s did not acknowledge", domain.ErrDeliveryFailure, msg.MeterID)
	}
	return nil
}
