package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"KOL-Agent/pkg/logger"
)

const (
	defaultIssuer   = "kol-agent"
	defaultTokenTTL = 24 * time.Hour
	minSecretLength = 16
)

// claims 定义 JWT 令牌的声明结构。
type claims struct {
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Service 负责签发与校验 HS256 令牌。
type Service struct {
	mode   Mode
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	audit  *slog.Logger
}

// NewService 根据配置创建认证服务。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	s := &Service{mode: mode, issuer: cfg.Issuer, ttl: cfg.TokenTTL, now: time.Now, audit: logger.Audit()}
	switch mode {
	case ModeDisabled:
		return s, nil
	case ModeJWT:
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", minSecretLength)
	}
	s.secret = []byte(cfg.Secret)
	if s.issuer == "" {
		s.issuer = defaultIssuer
	}
	if s.ttl <= 0 {
		s.ttl = defaultTokenTTL
	}
	return s, nil
}

// Mode returns the configured provider.
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// IssueToken signs a token for subject. A non-positive ttl uses the
// configured default; empty permissions grant every permission.
func (s *Service) IssueToken(subject string, permissions []string, ttl time.Duration) (*Token, error) {
	if s.Mode() != ModeJWT {
		return nil, ErrDisabled
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if len(permissions) == 0 {
		permissions = AllPermissions
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	expires := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Permissions: append([]string(nil), permissions...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.audit.Info("签发访问令牌",
		slog.String("subject", subject),
		slog.Any("permissions", permissions),
		slog.Time("expires_at", expires),
	)
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires.UTC(), Subject: subject}, nil
}

// AuthenticateRequest 解析 Authorization 头并返回令牌主体。
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	if s.Mode() != ModeJWT {
		return nil, ErrDisabled
	}
	scheme, raw, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}
	return s.Verify(strings.TrimSpace(raw))
}

// Verify 校验签名、有效期与签发者。
func (s *Service) Verify(token string) (*Subject, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var c claims
	parsed, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !c.VerifyIssuer(s.issuer, true) || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Subject{ID: c.Subject, Permissions: c.Permissions}, nil
}
