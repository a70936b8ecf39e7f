package dto

import "time"

// CreateVerificationCodeRequest starts email verification.
type CreateVerificationCodeRequest struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
}

// CreateVerificationCodeResponse carries the issued code.
type CreateVerificationCodeResponse struct {
	VerificationCode string    `json:"verificationCode"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// VerifyCodeRequest submits a code for an email.
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyCodeResponse confirms a consumed code.
type VerifyCodeResponse struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}
