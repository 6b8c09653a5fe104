package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mintIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestDecodeClaims(t *testing.T) {
	exp := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	iat := exp.Add(-time.Hour)
	raw := mintIDToken(t, jwt.MapClaims{
		"sub":     "108234567890",
		"email":   "alice@example.com",
		"name":    "Alice Example",
		"picture": "https://example.com/photo.jpg",
		"exp":     exp.Unix(),
		"iat":     iat.Unix(),
	})

	claims, err := DecodeClaims(raw)
	if err != nil {
		t.Fatalf("DecodeClaims: %v", err)
	}
	if claims.Subject != "108234567890" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.Name != "Alice Example" {
		t.Errorf("Name = %q", claims.Name)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
	if !claims.IssuedAt.Equal(iat) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt, iat)
	}
}

func TestDecodeClaimsPartial(t *testing.T) {
	raw := mintIDToken(t, jwt.MapClaims{"sub": "only-subject"})

	claims, err := DecodeClaims(raw)
	if err != nil {
		t.Fatalf("DecodeClaims: %v", err)
	}
	if claims.Subject != "only-subject" || claims.Email != "" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should stay zero when the token carries no exp")
	}
}

func TestDecodeClaimsGarbage(t *testing.T) {
	if _, err := DecodeClaims("not.a.token"); err == nil {
		t.Error("DecodeClaims should reject malformed tokens")
	}
	if _, err := DecodeClaims(""); err == nil {
		t.Error("DecodeClaims should reject an empty token")
	}
}

func TestSessionExpired(t *testing.T) {
	tests := []struct {
		name   string
		exp    time.Time
		margin time.Duration
		want   bool
	}{
		{"no expiry recorded", time.Time{}, 0, false},
		{"well in the future", time.Now().Add(time.Hour), 0, false},
		{"already past", time.Now().Add(-time.Minute), 0, true},
		{"inside the margin", time.Now().Add(30 * time.Second), time.Minute, true},
		{"outside the margin", time.Now().Add(2 * time.Minute), time.Minute, false},
	}
	for _, tt := range tests {
		s := &Session{Claims: Claims{ExpiresAt: tt.exp}}
		if got := s.Expired(tt.margin); got != tt.want {
			t.Errorf("%s: Expired = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSaveLoadDelete(t *testing.T) {
	path := DefaultPath(t.TempDir())

	if _, ok, err := Load(path); err != nil || ok {
		t.Fatalf("Load before save = (ok=%v, err=%v)", ok, err)
	}

	sess := &Session{
		Credential:  "raw.id.token",
		AccessToken: "ya29.access",
		Claims: Claims{
			Subject: "108234567890",
			Email:   "alice@example.com",
		},
		ObtainedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := Save(path, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok, err := Load(path)
	if err != nil || !ok {
		t.Fatalf("Load = (ok=%v, err=%v)", ok, err)
	}
	if loaded.AccessToken != sess.AccessToken || loaded.Claims.Email != sess.Claims.Email {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.ObtainedAt.Equal(sess.ObtainedAt) {
		t.Errorf("ObtainedAt = %v", loaded.ObtainedAt)
	}

	if err := Delete(path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := Load(path); ok {
		t.Error("Load should miss after delete")
	}
	if err := Delete(path); err != nil {
		t.Errorf("deleting a missing session should succeed, got %v", err)
	}
}

func TestSaveCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "session.json")
	if err := Save(path, &Session{AccessToken: "tok"}); err != nil {
		t.Fatalf("Save into a fresh directory tree: %v", err)
	}
	if _, ok, err := Load(path); err != nil || !ok {
		t.Errorf("Load = (ok=%v, err=%v)", ok, err)
	}
}
