package auth

import "figmant/internal/domain/models"

// JWTVerifier validates Supabase access tokens
type JWTVerifier interface {
	// VerifyToken returns domain.ErrUnauthorized if the token is invalid,
	// expired, badly signed or not issued to an authenticated user.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	Close() error
}
