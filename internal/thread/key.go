package thread

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"cloudtrail-notifier/internal/events"
)

// Key strategies.
const (
	// StrategyAccountWindow groups every event of an account that falls in the
	// same fixed time window.
	StrategyAccountWindow = "account-window"
	// StrategyPrincipalAction groups repeated occurrences of the same action by
	// the same principal in the same account.
	StrategyPrincipalAction = "principal-action"
)

// KeyFunc derives the ThreadKey for a record.
type KeyFunc func(rec events.Record) string

// NewKeyFunc returns the KeyFunc for strategy. window is the bucket width for
// the account-window strategy; now supplies the time for events without a
// parseable eventTime.
func NewKeyFunc(strategy string, window time.Duration, now func() time.Time) (KeyFunc, error) {
	if now == nil {
		now = time.Now
	}
	switch strategy {
	case "", StrategyAccountWindow:
		return AccountWindowKey(window, now), nil
	case StrategyPrincipalAction:
		return PrincipalActionKey, nil
	default:
		return nil, fmt.Errorf("unknown thread key strategy %q", strategy)
	}
}

// AccountWindowKey keys by account id and the window containing eventTime,
// e.g. "111111111111:1718000100".
func AccountWindowKey(window time.Duration, now func() time.Time) KeyFunc {
	if window <= 0 {
		window = DefaultTTL
	}
	return func(rec events.Record) string {
		ts, err := time.Parse(time.RFC3339, rec.Event.String("eventTime"))
		if err != nil {
			ts = now()
		}
		bucket := ts.Truncate(window).Unix()
		return rec.NotificationAccountID() + ":" + strconv.FormatInt(bucket, 10)
	}
}

// PrincipalActionKey hashes the principal ARN, event name and account id.
func PrincipalActionKey(rec events.Record) string {
	sum := sha256.Sum256([]byte(
		rec.Event.Nested("userIdentity", "arn") + "\x00" +
			rec.Event.String("eventName") + "\x00" +
			rec.NotificationAccountID(),
	))
	return hex.EncodeToString(sum[:])
}
