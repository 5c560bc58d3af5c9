package license

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/licensehub/pkg/models"
)

// SerialAlphabet has 32 symbols and leaves out 0, O, 1 and I
const SerialAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	PrefixTrial = "TR"
	PrefixPaid  = "SP"

	segmentLen   = 4
	segmentCount = 3

	// MaxSerialAttempts bounds regeneration after a uniqueness collision
	MaxSerialAttempts = 3
)

var serialPattern = regexp.MustCompile(`^(TR|SP)-\d{4}(-[A-HJ-NP-Z2-9]{4}){3}$`)

// SerialPrefix returns TR for zero-price plans and SP otherwise
func SerialPrefix(plan *models.Plan) string {
	if plan != nil && plan.IsFree() {
		return PrefixTrial
	}
	return PrefixPaid
}

// GenerateSerial produces PREFIX-YYYY-XXXX-XXXX-XXXX. Uniqueness is left to
// the licenses_serial_key constraint.
func GenerateSerial(plan *models.Plan, now time.Time) (string, error) {
	buf := make([]byte, segmentLen*segmentCount)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(SerialPrefix(plan))
	sb.WriteString(fmt.Sprintf("-%04d", now.Year()))
	for i, b := range buf {
		if i%segmentLen == 0 {
			sb.WriteByte('-')
		}
		// 32 divides 256, so masking keeps the distribution uniform
		sb.WriteByte(SerialAlphabet[b&31])
	}
	return sb.String(), nil
}

// ValidSerialFormat reports whether s is syntactically a serial
func ValidSerialFormat(s string) bool {
	return serialPattern.MatchString(s)
}

// NormalizeSerial trims and upper-cases user input
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IssueSerial generates a serial and hands it to create, regenerating when
// create reports ErrSerialTaken.
func IssueSerial(ctx context.Context, plan *models.Plan, now time.Time, create func(ctx context.Context, serial string) error) (string, error) {
	var lastErr error
	for attempt := 0; attempt < MaxSerialAttempts; attempt++ {
		serial, err := GenerateSerial(plan, now)
		if err != nil {
			return "", err
		}
		err = create(ctx, serial)
		if err == nil {
			return serial, nil
		}
		if !errors.Is(err, ErrSerialTaken) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("serial generation exhausted after %d attempts: %w", MaxSerialAttempts, lastErr)
}
