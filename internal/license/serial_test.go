package license

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensehub/pkg/models"
)

func TestGenerateSerialFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	paid := &models.Plan{PriceUSD: 120}
	trial := &models.Plan{}

	for i := 0; i < 200; i++ {
		s, err := GenerateSerial(paid, now)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(s, "SP-2026-"), s)
		assert.True(t, ValidSerialFormat(s), s)
		assert.NotContainsf(t, s[8:], "0", "ambiguous symbol in %s", s)
		assert.NotContains(t, s, "O")
		assert.NotContains(t, s[8:], "1")
		assert.NotContains(t, s, "I")
	}

	s, err := GenerateSerial(trial, now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "TR-2026-"), s)
}

func TestSerialPrefixUsesEveryPrice(t *testing.T) {
	assert.Equal(t, PrefixTrial, SerialPrefix(&models.Plan{}))
	assert.Equal(t, PrefixPaid, SerialPrefix(&models.Plan{PriceMonthly: 9}))
	assert.Equal(t, PrefixPaid, SerialPrefix(&models.Plan{PriceYearly: 90}))
}

func TestValidSerialFormat(t *testing.T) {
	assert.True(t, ValidSerialFormat("SP-2026-ABCD-EFGH-JK23"))
	assert.False(t, ValidSerialFormat("SP-2026-ABCD-EFGH-JK2"))
	assert.False(t, ValidSerialFormat("XX-2026-ABCD-EFGH-JK23"))
	assert.False(t, ValidSerialFormat("SP-2026-ABCD-EFGH-JKO0"))
	assert.False(t, ValidSerialFormat("sp-2026-abcd-efgh-jk23"))
	assert.True(t, ValidSerialFormat(NormalizeSerial(" sp-2026-abcd-efgh-jk23 ")))
}

func TestIssueSerialRetriesCollisions(t *testing.T) {
	calls := 0
	serial, err := IssueSerial(context.Background(), &models.Plan{PriceUSD: 1}, time.Now(), func(ctx context.Context, s string) error {
		calls++
		if calls < MaxSerialAttempts {
			return ErrSerialTaken
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, MaxSerialAttempts, calls)
	assert.True(t, ValidSerialFormat(serial))
}

func TestIssueSerialGivesUp(t *testing.T) {
	calls := 0
	_, err := IssueSerial(context.Background(), nil, time.Now(), func(ctx context.Context, s string) error {
		calls++
		return ErrSerialTaken
	})
	assert.ErrorIs(t, err, ErrSerialTaken)
	assert.Equal(t, MaxSerialAttempts, calls)
}

func TestIssueSerialStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	_, err := IssueSerial(context.Background(), nil, time.Now(), func(ctx context.Context, s string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
