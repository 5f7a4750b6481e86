package identity

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var setupSalt = []byte("internquest.core.identity.token_gen")

// setupTokens makes one-time password setup tokens.
// A token is bound to the identity's password hash and last login, so it stops
// working as soon as a password is set or the user signs in.
type setupTokens struct {
	secretKey []byte
	timeout   time.Duration
	nowFunc   func() time.Time
}

// EncodeUID base64 encodes given identity UID
func EncodeUID(id Identity) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.UID))
}

// DecodeUID base64 decodes given UID
func DecodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// makeToken generates a password setup token for a given identity.
func (st setupTokens) makeToken(id Identity) string {
	return st.makeTokenWithTimestamp(id, numDaysSince2001(st.nowFunc()))
}

// verifyToken checks that a password setup token for a given identity is valid.
func (st setupTokens) verifyToken(id Identity, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidToken
	}

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidToken
	}

	// check that token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(st.makeTokenWithTimestamp(id, ts)), []byte(token)) == 0 {
		return ErrInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(st.nowFunc()) - ts) > int(st.timeout/(24*time.Hour)) {
		return ErrTokenExpired
	}
	return nil
}

func (st setupTokens) makeTokenWithTimestamp(id Identity, ts int) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, st.sign(hashValue(id, ts)))
}

func (st setupTokens) sign(val []byte) string {
	key := sha256.Sum256(append(append([]byte{}, setupSalt...), st.secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val) // never returns an error
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(id Identity, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(id.UID)
	val.Write(id.PasswordHash)
	if !id.LastLogin.IsZero() {
		val.WriteString(id.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
