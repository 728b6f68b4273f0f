package jwtx_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/saccoesb/pkg/jwtx"
	"github.com/aussiebroadwan/saccoesb/pkg/jwtx/jwtxtest"
)

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	return jwtxtest.Sign(t, jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
}

func TestCodecExpiry(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	token := tokenExpiringAt(t, base.Add(3600*time.Second))

	at := func(d time.Duration) jwtx.Codec {
		return jwtx.Codec{Now: func() time.Time { return base.Add(d) }}
	}

	t.Run("time until expiry counts down", func(t *testing.T) {
		require.Equal(t, 3600*time.Second, at(0).TimeUntilExpiry(token))
		require.Equal(t, 1800*time.Second, at(30*time.Minute).TimeUntilExpiry(token))
		require.Equal(t, time.Second, at(3599*time.Second).TimeUntilExpiry(token))
		require.Zero(t, at(3600*time.Second).TimeUntilExpiry(token))
		require.Zero(t, at(2*time.Hour).TimeUntilExpiry(token))
	})

	t.Run("monotonic decrease", func(t *testing.T) {
		prev := at(0).TimeUntilExpiry(token)
		for d := time.Minute; d <= 61*time.Minute; d += time.Minute {
			cur := at(d).TimeUntilExpiry(token)
			require.LessOrEqual(t, cur, prev)
			prev = cur
		}
	})

	t.Run("expired exactly at exp", func(t *testing.T) {
		require.False(t, at(3599*time.Second).IsExpired(token))
		require.True(t, at(3600*time.Second).IsExpired(token))
		require.True(t, at(3601*time.Second).IsExpired(token))
	})

	t.Run("needs refresh within threshold", func(t *testing.T) {
		require.False(t, at(0).NeedsRefresh(token, 10*time.Minute))
		require.False(t, at(49*time.Minute).NeedsRefresh(token, 10*time.Minute))
		require.True(t, at(50*time.Minute).NeedsRefresh(token, 10*time.Minute))
		require.True(t, at(55*time.Minute).NeedsRefresh(token, 0))
		require.True(t, at(59*time.Minute).NeedsRefresh(token, 2*time.Minute))
	})
}

func TestWallClockHelpers(t *testing.T) {
	t.Parallel()

	live := jwtxtest.Token(t, "ops", time.Hour)
	require.False(t, jwtx.IsExpired(live))
	require.InDelta(t, time.Hour.Seconds(), jwtx.TimeUntilExpiry(live).Seconds(), 2)
	require.False(t, jwtx.NeedsRefresh(live, jwtx.DefaultRefreshThreshold))

	stale := jwtxtest.Token(t, "ops", -time.Minute)
	require.True(t, jwtx.IsExpired(stale))
	require.Zero(t, jwtx.TimeUntilExpiry(stale))
}
