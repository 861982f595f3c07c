package domain

import "time"

// User is the authentication identity, keyed by phone in E.164 format.
// The OTP code is stored bcrypt-hashed; the plaintext only ever leaves the
// system through the mock sender in dev mode.
type User struct {
	ID           string     `json:"id"`
	Phone        string     `json:"phone"`
	Name         string     `json:"name,omitempty"`
	OTPHash      string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// StartLoginRequest is the body of POST /v1/auth/start.
type StartLoginRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// StartLoginResponse acknowledges OTP dispatch. DevCode carries the plaintext
// code only when dev mode is on.
type StartLoginResponse struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
	DevCode   string `json:"dev_code,omitempty"`
}

// VerifyOTPRequest is the body of POST /v1/auth/verify.
type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// VerifyOTPResponse carries the issued access token.
type VerifyOTPResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	UserID      string `json:"user_id"`
}
