package replyaddr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxBounceID is the largest id a bounce token can carry.
const MaxBounceID = 999_999_999

const (
	bounceSep      = "="
	bounceDayWidth = 5
	secondsPerDay  = 24 * 60 * 60
)

// DayNumber returns the number of whole days between the Unix epoch and t,
// in UTC.
func DayNumber(t time.Time) int64 {
	secs := t.UTC().Unix()
	day := secs / secondsPerDay
	if secs < 0 && secs%secondsPerDay != 0 {
		day--
	}
	return day
}

// EncodeBounce returns <prefix><id>=<day>=<digest>, dated today.
func (c *Codec) EncodeBounce(id int64, secret string) (string, error) {
	if id < 0 || id > MaxBounceID {
		return "", fmt.Errorf("%w: %d", ErrInvalidBounceID, id)
	}
	idStr := strconv.FormatInt(id, 10)
	dayStr := fmt.Sprintf("%0*d", bounceDayWidth, DayNumber(c.now()))
	digest := Digest(secret, c.cfg.DigestLength, idStr, dayStr)
	return c.cfg.BouncePrefix + idStr + bounceSep + dayStr + bounceSep + digest, nil
}

// DecodeBounce returns the id carried by token, or false if the token is
// malformed, was not minted with secret, is dated in the future or is
// older than the expiry window. Failure carries no reason.
func (c *Codec) DecodeBounce(token, secret string) (int64, bool) {
	p := c.cfg.BouncePrefix
	if len(token) < len(p) || !strings.EqualFold(token[:len(p)], p) {
		return 0, false
	}
	fields := strings.Split(token[len(p):], bounceSep)
	if len(fields) != 3 {
		return 0, false
	}
	idStr, dayStr, digest := fields[0], fields[1], fields[2]

	if len(idStr) == 0 || len(idStr) > 9 || !isDigits(idStr) || (len(idStr) > 1 && idStr[0] == '0') {
		return 0, false
	}
	if len(dayStr) != bounceDayWidth || !isDigits(dayStr) {
		return 0, false
	}
	if len(digest) != c.cfg.DigestLength || !c.verifyDigest(digest, secret, idStr, dayStr) {
		return 0, false
	}

	day, err := strconv.ParseInt(dayStr, 10, 64)
	if err != nil {
		return 0, false
	}
	today := DayNumber(c.now())
	if day > today || today-day > int64(c.cfg.BounceExpiryDays) {
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
