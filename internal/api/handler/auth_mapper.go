package handler

import (
	"github.com/projectcamp/auth-service/internal/core/ports"
)

// --- Request → Service input ---

func toSignupInput(req registerRequest) ports.SignupInput {
	return ports.SignupInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
	}
}

func toLoginInput(req loginRequest, userAgent, ip string) ports.LoginInput {
	return ports.LoginInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		UserAgent: userAgent,
		IPAddress: ip,
	}
}

// --- Service result → Response ---

func toLoginResponse(res *ports.LoginResult) loginResponse {
	out := loginResponse{User: res.Principal, SessionID: res.SessionID}
	if res.AccessToken != "" {
		out.AccessToken = res.AccessToken
		out.RefreshToken = res.RefreshToken
		accessExp, refreshExp := res.AccessExpiresAt, res.RefreshExpiresAt
		out.AccessExpiresAt = &accessExp
		out.RefreshExpiresAt = &refreshExp
	}
	return out
}

func toTokenResponse(pair *ports.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
