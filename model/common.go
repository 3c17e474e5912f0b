package model

import (
	"time"

	"golang.org/x/time/rate"
)

type AuthResponse struct {
	Token          string    `json:"token"`
	Expires        time.Time `json:"expires"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	RefreshExpires time.Time `json:"refresh_expires,omitempty"`
}

type IpLimiter struct {
	Limiter    *rate.Limiter
	LastActive time.Time
}
