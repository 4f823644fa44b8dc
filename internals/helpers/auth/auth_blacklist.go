package helperAuth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/gorm"
)

/*
   =========================================================
   token_blacklist is written by the auth service on logout:
   token = hex HMAC-SHA256(access_token, JWT_SECRET).
   This service only reads it.
   =========================================================
*/

const blacklistLookupTimeout = 2 * time.Second

func blacklistKey(rawAccessToken, jwtSecret string) string {
	m := hmac.New(sha256.New, []byte(jwtSecret))
	_, _ = m.Write([]byte(rawAccessToken))
	return hex.EncodeToString(m.Sum(nil))
}

// IsBlacklisted: an active, unexpired row for this token?
func IsBlacklisted(ctx context.Context, db *gorm.DB, rawAccessToken, jwtSecret string) (bool, error) {
	if db == nil || strings.TrimSpace(rawAccessToken) == "" || strings.TrimSpace(jwtSecret) == "" {
		return false, nil
	}
	var exists bool
	err := db.WithContext(ctx).Raw(`
		SELECT EXISTS (
		  SELECT 1
		  FROM token_blacklist
		  WHERE token = ?
		    AND deleted_at IS NULL
		    AND expired_at > NOW()
		)
	`, blacklistKey(rawAccessToken, jwtSecret)).Scan(&exists).Error
	return exists, err
}

// BlacklistChecker adapts IsBlacklisted to AuthJWTOpts.BlacklistChecker.
// A nil db disables the check. Lookup errors let the token through; the
// JWT signature and expiry are still enforced.
func BlacklistChecker(db *gorm.DB, jwtSecret string) func(rawToken string) (bool, error) {
	if db == nil {
		return nil
	}
	return func(rawToken string) (bool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), blacklistLookupTimeout)
		defer cancel()
		return IsBlacklisted(ctx, db, rawToken, jwtSecret)
	}
}
