// Package oauth provides token refresh scheduling for providers whose tokens
// are persisted in the oauth_tokens table. It performs jittered checks and
// refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/deedzorg/twitchconnect/db"
)

// RefreshFunc performs provider-specific refresh and returns
// (access, refresh, expiry, scope).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// CheckAndRefresh performs one refresh check. It reads the provider's token
// row through the db helpers (so encrypted rows are decrypted), refreshes
// when the remaining lifetime is within window, and persists the result.
// Reports whether a refresh happened.
func CheckAndRefresh(ctx context.Context, dbx *sql.DB, provider string, window time.Duration, fn RefreshFunc) (bool, error) {
	_, rt, exp, scope, err := db.GetOAuthToken(ctx, dbx, provider)
	if err != nil {
		return false, err
	}
	if rt == "" {
		return false, nil
	}
	if time.Until(exp) > window {
		return false, nil
	}

	newAT, newRT, newExp, newScope, err := fn(ctx, rt)
	if err != nil {
		return false, err
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := db.UpsertOAuthToken(ctx, dbx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		return false, err
	}
	return true, nil
}

// StartRefresher launches a goroutine that periodically checks a provider's
// token row and refreshes it near expiry. Interval and window fall back to
// 5m/15m. Jitter spreads the schedule so multiple instances sharing one
// database do not stampede the token endpoint.
func StartRefresher(ctx context.Context, dbx *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			jitterRange := int64(interval / 5)
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}

			ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
			refreshed, err := CheckAndRefresh(ctx2, dbx, provider, window, fn)
			cancel()
			if err != nil {
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
				continue
			}
			if refreshed {
				slog.Info("token refreshed", slog.String("provider", provider))
			}
		}
	}()
}
