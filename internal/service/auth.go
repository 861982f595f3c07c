// Package service — AuthService handles phone + OTP login and JWT access
// token management.
package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const bcryptCost = 12

// phoneRE accepts Brazilian phone numbers in E.164-ish form: optional +55,
// DDD plus 8 or 9 digits.
var phoneRE = regexp.MustCompile(`^\+?[0-9]{10,14}$`)

// AuthService orchestrates the passwordless login flow: an OTP code is sent
// to the producer's phone and exchanged for a JWT access token.
type AuthService struct {
	users     port.UserStore
	jwtSecret []byte
	accessTTL time.Duration
	otpTTL    time.Duration
	devMode   bool
	logger    *zap.Logger
}

// NewAuthService creates a new auth service. With devMode on, StartLogin
// returns the OTP in the response so local clients need no SMS channel.
func NewAuthService(users port.UserStore, jwtSecret string, accessTTL, otpTTL time.Duration, devMode bool, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		otpTTL:    otpTTL,
		devMode:   devMode,
		logger:    logger,
	}
}

// ============================================================
// StartLogin — POST /v1/auth/start
// ============================================================

// StartLogin generates a one-time code for the phone and stores its hash.
// The user row is created on first contact; name is optional and only set
// when provided.
func (s *AuthService) StartLogin(ctx context.Context, req *domain.StartLoginRequest) (*domain.StartLoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.StartLogin")
	defer span.End()

	phone := normalizePhone(req.Phone)
	if !phoneRE.MatchString(phone) {
		return nil, &domain.ErrValidation{Field: "phone", Message: "Telefone inválido"}
	}
	span.SetAttributes(attribute.String("auth.phone", maskPhone(phone)))

	code := generateOTP()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash otp: %w", err)
	}
	expiresAt := time.Now().Add(s.otpTTL)

	user := &domain.User{
		Phone:        phone,
		Name:         req.Name,
		OTPHash:      string(hash),
		OTPExpiresAt: &expiresAt,
	}
	if _, err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	// In production the code goes out via SMS/WhatsApp; the API never
	// returns it.
	s.logger.Info("otp generated",
		zap.String("phone", maskPhone(phone)),
		zap.Duration("ttl", s.otpTTL),
	)

	resp := &domain.StartLoginResponse{
		Message:   "Código enviado. Confira suas mensagens.",
		ExpiresIn: int(s.otpTTL.Seconds()),
	}
	if s.devMode {
		resp.DevCode = code
	}
	return resp, nil
}

// ============================================================
// VerifyOTP — POST /v1/auth/verify
// ============================================================

// VerifyOTP exchanges a valid code for an access token. The stored code is
// cleared on success so it cannot be replayed.
func (s *AuthService) VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.VerifyOTPResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.VerifyOTP")
	defer span.End()

	phone := normalizePhone(req.Phone)
	user, err := s.users.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.OTPHash == "" {
		return nil, &domain.ErrInvalidCode{}
	}
	if user.OTPExpiresAt == nil || user.OTPExpiresAt.Before(time.Now()) {
		return nil, &domain.ErrInvalidCode{}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.OTPHash), []byte(req.Code)); err != nil {
		s.logger.Warn("otp verification failed",
			zap.String("phone", maskPhone(phone)),
		)
		return nil, &domain.ErrInvalidCode{}
	}

	// Clears the code and records the login.
	if err := s.users.UpdateUser(ctx, user.ID, map[string]any{
		"otp_hash":       "",
		"otp_expires_at": nil,
		"last_login_at":  time.Now().Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("clear otp: %w", err)
	}

	accessToken, err := s.signAccessToken(user.ID, phone)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID))

	return &domain.VerifyOTPResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.accessTTL.Seconds()),
		UserID:      user.ID,
	}, nil
}

// ============================================================
// ValidateToken — used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Phone string `json:"phone"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}

	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}

	return claims, nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *AuthService) signAccessToken(userID, phone string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:   userID,
		Phone: phone,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "pnae-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func generateOTP() string {
	code := ""
	for i := 0; i < 6; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		code += fmt.Sprintf("%d", n.Int64())
	}
	return code
}

// normalizePhone strips spaces, dashes and parentheses.
func normalizePhone(phone string) string {
	out := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		c := phone[i]
		if c >= '0' && c <= '9' || (c == '+' && i == 0) {
			out = append(out, c)
		}
	}
	return string(out)
}

// maskPhone keeps only the last four digits for logs.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
