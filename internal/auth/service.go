package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/obs"
)

const (
	defaultAccessTTL = 15 * time.Minute
	rolesClaim       = "roles"

	RoleCustomer = "customer"
	RoleCashier  = "cashier"
	RoleAdmin    = "admin"
	RoleDelivery = "delivery"
)

type userStore interface {
	GetUserByPhone(ctx context.Context, phone string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	CreateUser(ctx context.Context, name, phone string, roles []string) (User, error)
}

// SMSSender delivers one-time passwords to phones. Production wiring points
// this at the store's SMS gateway account; tests and dev use LogSender.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// Service coordinates OTP login, admin password login, and token issuance.
type Service struct {
	users     userStore
	otps      *OTPStore
	sms       SMSSender
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
}

// Config configures the auth service.
type Config struct {
	Users          userStore
	OTPs           *OTPStore
	SMS            SMSSender
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// Profile is the safe subset of the user model returned to clients.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	User         Profile   `json:"user"`
	AccessToken  string    `json:"access_token"`
	AccessExpiry time.Time `json:"access_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth: user store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-pos"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "pos-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	return &Service{
		users:     cfg.Users,
		otps:      cfg.OTPs,
		sms:       cfg.SMS,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:   issuer,
		audience: audience,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RequestOTP issues a login code and sends it to the phone.
func (s *Service) RequestOTP(ctx context.Context, phone string) error {
	phone = normalizePhone(phone)
	if phone == "" {
		return common.ValidationError("a valid phone number is required")
	}
	if s.otps == nil {
		return errors.New("auth: otp store not configured")
	}
	code, err := s.otps.Issue(ctx, PurposeLogin, phone)
	if err != nil {
		return err
	}
	if obs.OTPIssuedTotal != nil {
		obs.OTPIssuedTotal.WithLabelValues(PurposeLogin).Inc()
	}
	if s.sms == nil {
		return nil
	}
	return s.sms.SendSMS(ctx, phone, fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(s.otps.TTL.Minutes())))
}

// VerifyOTP checks the code, creating the account on first login, and
// returns a signed access token.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (LoginResult, error) {
	phone = normalizePhone(phone)
	if phone == "" || strings.TrimSpace(code) == "" {
		return LoginResult{}, common.ValidationError("phone and code are required")
	}
	if err := s.otps.Verify(ctx, PurposeLogin, phone, strings.TrimSpace(code)); err != nil {
		return LoginResult{}, err
	}
	user, err := s.users.GetUserByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, fmt.Errorf("auth: load user: %w", err)
		}
		user, err = s.users.CreateUser(ctx, "", phone, []string{RoleCustomer})
		if err != nil {
			return LoginResult{}, fmt.Errorf("auth: create user: %w", err)
		}
	}
	return s.loginResultFor(user)
}

// AdminLogin authenticates back-office staff with email and password.
func (s *Service) AdminLogin(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, invalidCredentials(nil)
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, invalidCredentials(err)
		}
		return LoginResult{}, fmt.Errorf("auth: load user: %w", err)
	}
	if user.PasswordHash == "" {
		return LoginResult{}, invalidCredentials(nil)
	}
	match, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !match {
		return LoginResult{}, invalidCredentials(err)
	}
	if !hasStaffRole(user.Roles) {
		return LoginResult{}, invalidCredentials(nil)
	}
	return s.loginResultFor(user)
}

// Me returns the profile for an authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (Profile, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return Profile{}, common.UnauthorizedError("unauthorized")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, common.UnauthorizedError("unauthorized")
		}
		return Profile{}, fmt.Errorf("auth: load user: %w", err)
	}
	return toProfile(user), nil
}

// ParseAccessToken validates the token and returns the subject and role claims.
func (s *Service) ParseAccessToken(token string) (string, []string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", nil, common.UnauthorizedError("missing token")
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), rolesFromToken(parsed), nil
}

func (s *Service) loginResultFor(user User) (LoginResult, error) {
	token, expiresAt, err := s.signAccessToken(user.ID.String(), user.Roles)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return LoginResult{User: toProfile(user), AccessToken: token, AccessExpiry: expiresAt}, nil
}

func (s *Service) signAccessToken(userID string, roles []string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim(rolesClaim, roles)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func rolesFromToken(tok jwt.Token) []string {
	raw, ok := tok.Get(rolesClaim)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	default:
		return nil
	}
}

func hasStaffRole(roles []string) bool {
	for _, role := range roles {
		if role == RoleAdmin || role == RoleCashier {
			return true
		}
	}
	return false
}

func toProfile(u User) Profile {
	roles := u.Roles
	if len(roles) == 0 {
		roles = []string{RoleCustomer}
	}
	return Profile{
		ID:        u.ID.String(),
		Name:      u.Name,
		Phone:     u.Phone,
		Email:     u.Email,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	}
}

func invalidCredentials(err error) error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, err)
}

func normalizePhone(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return r
		}
		return -1
	}, strings.TrimSpace(phone))
	if len(strings.TrimPrefix(cleaned, "+")) < 10 {
		return ""
	}
	return cleaned
}

// LogSender writes OTP messages to the log instead of an SMS gateway.
type LogSender struct {
	Log func(phone, message string)
}

// SendSMS implements SMSSender.
func (l LogSender) SendSMS(_ context.Context, phone, message string) error {
	if l.Log != nil {
		l.Log(phone, message)
	}
	return nil
}
