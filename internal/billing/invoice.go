package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InvoiceSequencer allocates monotonic per-day invoice numbers shaped like
// INV-20260831-0042. The counter lives in Redis so every API replica hands
// out unique numbers.
type InvoiceSequencer struct {
	R   *redis.Client
	Now func() time.Time
}

func (s *InvoiceSequencer) Next(ctx context.Context) (string, error) {
	if s.R == nil {
		return "", fmt.Errorf("invoice: redis not configured")
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	day := now.Format("20060102")
	key := "invoice:seq:" + day
	seq, err := s.R.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("invoice: next sequence: %w", err)
	}
	// keep the counter around past midnight so late sales cannot collide
	_ = s.R.Expire(ctx, key, 48*time.Hour).Err()
	return fmt.Sprintf("INV-%s-%04d", day, seq), nil
}
