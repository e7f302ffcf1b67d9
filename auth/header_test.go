package auth

import (
	"strings"
	"testing"
)

func TestTokenFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer", header: "Bearer header.payload.signature", want: "header.payload.signature"},
		{name: "lowercase scheme", header: "bearer header.payload.signature", want: "header.payload.signature"},
		{name: "bare token", header: "  header.payload.signature ", want: "header.payload.signature"},
		{name: "missing", header: "", wantErr: errMissingAuthorization},
		{name: "spaces only", header: "   ", wantErr: errMissingAuthorization},
		{name: "scheme only", header: "Bearer ", wantErr: errBadAuthorization},
		{name: "two segments", header: "Bearer header.payload", wantErr: errBadAuthorization},
		{name: "many periods", header: "Bearer " + strings.Repeat(".", 1000), wantErr: errBadAuthorization},
		{name: "other scheme", header: "Basic a.b.c d", wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TokenFromHeader(tt.header)
			if err != tt.wantErr {
				t.Fatalf("TokenFromHeader(%q) error = %v, want %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("TokenFromHeader(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	hash, err := HashPassword(salt, "admin")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(salt, "admin", hash) {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(salt, "Admin", hash) || CheckPassword("other", "admin", hash) {
		t.Fatalf("expected mismatch for wrong password or salt")
	}
	if _, err := HashPassword(salt, ""); err == nil {
		t.Fatalf("expected empty password to be rejected")
	}
}
