package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
)

const resetTokenPurpose = "darasa/password-reset/v1"

// tokens issued up to this far in the future are tolerated
const resetTokenClockSkew = time.Minute

var (
	errInvalidUID   = errors.New("invalid uid")
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// ResetTokens issues and checks password reset tokens.
//
// A token reads "<issue time, unix seconds in base36>.<signature>". The signature covers
// the issue time and the state of the account: its password, activation, last login and
// onboarding review. Changing any of them (a new password, a login, an approval or a
// rejection) invalidates every token issued before.
type ResetTokens struct {
	key []byte
	ttl time.Duration
}

func NewResetTokens(secret string, ttl time.Duration) ResetTokens {
	key := sha256.Sum256([]byte(resetTokenPurpose + "\x00" + secret))
	return ResetTokens{key: key[:], ttl: ttl}
}

// Issue returns a token for usr, valid for the configured TTL.
func (rt ResetTokens) Issue(usr User) string {
	issued := core.NowFunc().Unix()
	return strconv.FormatInt(issued, 36) + "." + rt.sign(usr, issued)
}

// Check reports whether token was issued for usr in its current state and has not expired.
func (rt ResetTokens) Check(usr User, token string) error {
	tsPart, sig, ok := strings.Cut(token, ".")
	if !ok || tsPart == "" || sig == "" {
		return errInvalidToken
	}
	issued, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(rt.sign(usr, issued))) {
		return errInvalidToken
	}

	now := core.NowFunc()
	issuedAt := time.Unix(issued, 0)
	if issuedAt.After(now.Add(resetTokenClockSkew)) {
		return errInvalidToken
	}
	if now.Sub(issuedAt) > rt.ttl {
		return errTokenExpired
	}
	return nil
}

func (rt ResetTokens) sign(usr User, issued int64) string {
	mac := hmac.New(sha256.New, rt.key)
	for _, part := range resetTokenState(usr) {
		mac.Write([]byte(part))
		mac.Write([]byte{0})
	}
	mac.Write([]byte(strconv.FormatInt(issued, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// resetTokenState is the part of an account a reset token is bound to.
func resetTokenState(usr User) []string {
	lastLogin := usr.LastLogin
	return []string{
		usr.ID,
		strings.ToLower(usr.Email),
		string(usr.PasswordHash),
		stamp(usr.PasswordChangedAt),
		stamp(&lastLogin),
		strconv.FormatBool(usr.Active()),
		usr.Onboarding.Status,
		stamp(usr.Onboarding.ReviewedAt),
	}
}

// stamp formats t at database precision, so a stored user signs like the one in memory.
func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}

// EncodeUID is the user ID as carried by reset links: its 16 bytes in base64url.
func EncodeUID(usr User) string {
	id, err := uuid.Parse(usr.ID)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func decodeUID(uid string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", errInvalidUID
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return "", errInvalidUID
	}
	return id.String(), nil
}
