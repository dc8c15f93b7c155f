package webhook

import (
	"context"
	"fmt"
	"time"
)

// Simulator stands in for a webhook that has not been set up yet. It answers every
// question with a canned plain-text body after Delay.
type Simulator struct {
	Delay time.Duration
}

// NewSimulator returns a Simulator with the two second delay used to show off the
// loading labels.
func NewSimulator() *Simulator {
	return &Simulator{Delay: 2 * time.Second}
}

func (s *Simulator) Exchange(ctx context.Context, p Payload) ([]byte, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	reply := fmt.Sprintf("You asked: %q.\n\nNotice: This is a simulated response because no WEBHOOK_URL is configured. "+
		"Set WEBHOOK_URL to your live n8n webhook to start receiving real F1 data!", p.Question)
	return []byte(reply), nil
}
