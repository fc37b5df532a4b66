package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiranahub/backend-pos/internal/common"
)

// OTP purposes scope the code to a single flow.
const (
	PurposeLogin    = "login"
	PurposeDelivery = "delivery"
)

// OTPStore keeps hashed one-time passwords in Redis with attempt tracking.
type OTPStore struct {
	R           *redis.Client
	TTL         time.Duration
	ResendAfter time.Duration
	MaxAttempts int
	RatePerHour int
	Now         func() time.Time
}

func (s *OTPStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *OTPStore) key(purpose, subject string) string {
	return "otp:" + purpose + ":" + subject
}

// Issue generates a six digit code for the subject. It enforces a resend
// cooldown and an hourly issue cap per subject.
func (s *OTPStore) Issue(ctx context.Context, purpose, subject string) (string, error) {
	if s.R == nil {
		return "", fmt.Errorf("otp: redis not configured")
	}
	key := s.key(purpose, subject)

	if s.ResendAfter > 0 {
		issuedAt, err := s.R.HGet(ctx, key, "issued_at").Int64()
		if err == nil {
			since := s.now().Sub(time.Unix(issuedAt, 0))
			if since < s.ResendAfter {
				wait := int((s.ResendAfter - since).Seconds()) + 1
				return "", &common.AppError{
					Code:       "OTP_COOLDOWN",
					Message:    "please wait before requesting another code",
					HTTPStatus: http.StatusTooManyRequests,
					Details:    map[string]any{"retryAfterSeconds": wait},
				}
			}
		}
	}

	if s.RatePerHour > 0 {
		rateKey := key + ":rate:" + s.now().Format("2006010215")
		issued, err := s.R.Incr(ctx, rateKey).Result()
		if err != nil {
			return "", fmt.Errorf("otp: rate counter: %w", err)
		}
		_ = s.R.Expire(ctx, rateKey, time.Hour).Err()
		if issued > int64(s.RatePerHour) {
			return "", &common.AppError{
				Code:       "OTP_RATE_LIMITED",
				Message:    "too many codes requested, try again later",
				HTTPStatus: http.StatusTooManyRequests,
			}
		}
	}

	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	pipe := s.R.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"hash":      common.Sha256Hex(code),
		"attempts":  0,
		"issued_at": s.now().Unix(),
	})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("otp: store code: %w", err)
	}
	return code, nil
}

// Verify checks the supplied code and consumes it on success. Wrong codes
// count against the attempt budget; once exhausted the code is invalidated.
func (s *OTPStore) Verify(ctx context.Context, purpose, subject, code string) error {
	if s.R == nil {
		return fmt.Errorf("otp: redis not configured")
	}
	key := s.key(purpose, subject)
	stored, err := s.R.HGet(ctx, key, "hash").Result()
	if err != nil {
		if err == redis.Nil {
			return invalidOTP()
		}
		return fmt.Errorf("otp: load code: %w", err)
	}

	if common.Sha256Hex(code) != stored {
		attempts, err := s.R.HIncrBy(ctx, key, "attempts", 1).Result()
		if err != nil {
			return fmt.Errorf("otp: bump attempts: %w", err)
		}
		max := s.MaxAttempts
		if max <= 0 {
			max = 5
		}
		if attempts >= int64(max) {
			_ = s.R.Del(ctx, key).Err()
		}
		return invalidOTP()
	}

	if err := s.R.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("otp: consume code: %w", err)
	}
	return nil
}

func invalidOTP() error {
	return &common.AppError{
		Code:       "INVALID_OTP",
		Message:    "the code is incorrect or has expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	code := strconv.FormatInt(n.Int64(), 10)
	for len(code) < 6 {
		code = "0" + code
	}
	return code, nil
}
