package identity

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	st := setupTokens{
		secretKey: []byte("secret"),
		timeout:   3 * 24 * time.Hour,
		nowFunc:   time.Now,
	}

	now := time.Now()
	id := Identity{
		UID:       "8d7f4a1c",
		Email:     "t@test.test",
		CreatedAt: now,
		UpdatedAt: now,
	}
	_ = id.SetPassword("pwd")

	validToken := st.makeToken(id)

	// generate an expired token
	dayLate := st.timeout + (24 * time.Hour)
	st.nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := st.makeToken(id)
	st.nowFunc = time.Now // reset

	// a token is spent once the password changes
	rehashed := id
	_ = rehashed.SetPassword("pwd2")

	// or once the user signs in
	loggedIn := id
	loggedIn.LastLogin = now

	tests := []struct {
		name    string
		id      Identity
		token   string
		wantErr error
	}{
		{name: "no token", id: id, wantErr: ErrInvalidToken},
		{name: "invalid parts len", id: id, token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "invalid base32", id: id, token: "hahaha-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid timestamp", id: id, token: "NRXWY-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid token", id: id, token: "HE4TS-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "expired token", id: id, token: expiredToken, wantErr: ErrTokenExpired},
		{name: "password changed", id: rehashed, token: validToken, wantErr: ErrInvalidToken},
		{name: "signed in since", id: loggedIn, token: validToken, wantErr: ErrInvalidToken},
		{name: "valid token", id: id, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := st.verifyToken(tt.id, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	id := Identity{UID: "c0ffee-42"}
	uid, err := DecodeUID(EncodeUID(id))
	if err != nil {
		t.Fatalf("DecodeUID() error = %v", err)
	}
	if uid != id.UID {
		t.Errorf("DecodeUID() = %s, want %s", uid, id.UID)
	}
	if _, err := DecodeUID("%%%"); err == nil {
		t.Error("DecodeUID() expected an error")
	}
}
