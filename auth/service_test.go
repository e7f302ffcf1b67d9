package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"kanban-api/domain"
	"kanban-api/storage/storagetest"
)

func TestMain(m *testing.M) {
	HashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type recordedActivity struct {
	comments []string
}

func (r *recordedActivity) Record(_ context.Context, comment string, _, _ any, _ *int64) error {
	r.comments = append(r.comments, comment)
	return nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordedActivity) {
	t.Helper()
	db := storagetest.NewDB(t)
	rec := &recordedActivity{}
	return NewService(db, rec, Options{TokenTTL: time.Hour, RememberTokenTTL: 48 * time.Hour}), db, rec
}

func createUser(t *testing.T, db *gorm.DB, username, password string) *domain.User {
	t.Helper()
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	hash, err := HashPassword(salt, password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Username: username, Salt: &salt, Password: &hash}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func storedToken(t *testing.T, db *gorm.DB, id int64) *string {
	t.Helper()
	var u domain.User
	if err := db.First(&u, id).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return u.Token
}

func TestIssueThenValidate(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	user := createUser(t, db, "bob", "pw")

	token, err := svc.IssueToken(ctx, user, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if stored := storedToken(t, db, user.ID); stored == nil || *stored != token {
		t.Fatalf("expected token to be mirrored on the user row")
	}

	resp := domain.NewResponse()
	got, ok := svc.Authenticate(ctx, "Bearer "+token, resp)
	if !ok {
		t.Fatalf("expected token to validate, response %+v", resp)
	}
	if got.ID != user.ID {
		t.Fatalf("unexpected user %d", got.ID)
	}
	if !svc.ValidateToken(ctx, token, domain.NewResponse()) {
		t.Fatalf("expected bare token header to validate")
	}
}

func TestRevokeInvalidatesToken(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	user := createUser(t, db, "bob", "pw")
	token, err := svc.IssueToken(ctx, user, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := svc.RevokeToken(ctx, "Bearer "+token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if stored := storedToken(t, db, user.ID); stored != nil {
		t.Fatalf("expected stored token to be cleared, got %q", *stored)
	}

	resp := domain.NewResponse()
	if svc.ValidateToken(ctx, "Bearer "+token, resp) {
		t.Fatalf("expected revoked token to fail")
	}
	if resp.Status() != http.StatusUnauthorized || resp.Message != msgInvalidToken {
		t.Fatalf("unexpected response: status=%d message=%q", resp.Status(), resp.Message)
	}
}

func TestSupersededTokenIsRejectedAndCleared(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	user := createUser(t, db, "bob", "pw")

	first, err := svc.IssueToken(ctx, user, time.Hour)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := svc.IssueToken(ctx, user, time.Hour)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct tokens")
	}

	if svc.ValidateToken(ctx, "Bearer "+first, domain.NewResponse()) {
		t.Fatalf("expected superseded token to fail")
	}
	if stored := storedToken(t, db, user.ID); stored != nil {
		t.Fatalf("expected stored token to be cleared after mismatch")
	}
	if svc.ValidateToken(ctx, "Bearer "+second, domain.NewResponse()) {
		t.Fatalf("expected second token to fail once cleared")
	}
}

func TestVerifyRequiresStoredToken(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	user := createUser(t, db, "bob", "pw")

	first, err := svc.IssueToken(ctx, user, time.Hour)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := svc.IssueToken(ctx, user, time.Hour)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}

	got, err := svc.Verify(ctx, "Bearer "+second)
	if err != nil || got.ID != user.ID {
		t.Fatalf("expected current token to verify, got user=%v err=%v", got, err)
	}
	_, err = svc.Verify(ctx, "Bearer "+first)
	if reason, ok := domain.AuthReasonOf(err); !ok || reason != domain.TokenMismatch {
		t.Fatalf("expected token mismatch for superseded token, got %v", err)
	}
	if stored := storedToken(t, db, user.ID); stored == nil || *stored != second {
		t.Fatalf("verify must not clear the stored token")
	}

	if err := svc.RevokeToken(ctx, "Bearer "+second); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = svc.Verify(ctx, "Bearer "+second)
	if reason, _ := domain.AuthReasonOf(err); reason != domain.TokenMismatch {
		t.Fatalf("expected token mismatch after revoke, got %v", err)
	}
}

func TestExpiredTokenRejectedEvenWhenStored(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	user := createUser(t, db, "bob", "pw")

	token, err := svc.IssueToken(ctx, user, -time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp := domain.NewResponse()
	_, err = svc.CurrentUser(ctx, "Bearer "+token, resp)
	if reason, ok := domain.AuthReasonOf(err); !ok || reason != domain.InvalidToken {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].Text != msgUnableToLoadUser {
		t.Fatalf("expected load user alert, got %+v", resp.Alerts)
	}
	if svc.ValidateToken(ctx, "Bearer "+token, domain.NewResponse()) {
		t.Fatalf("expected expired token to fail validation")
	}
}

func TestCurrentUserWithoutHeader(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp := domain.NewResponse()
	_, err := svc.CurrentUser(context.Background(), "", resp)
	if reason, ok := domain.AuthReasonOf(err); !ok || reason != domain.NoCredential {
		t.Fatalf("expected no credential error, got %v", err)
	}
	if !resp.HasErrors() {
		t.Fatalf("expected an error alert")
	}
}

func TestCurrentUserUnknownSubject(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	key, err := svc.SigningKey(ctx)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.Itoa(999),
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = svc.CurrentUser(ctx, "Bearer "+token, domain.NewResponse())
	if reason, ok := domain.AuthReasonOf(err); !ok || reason != domain.UnknownUser {
		t.Fatalf("expected unknown user error, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found in chain, got %v", err)
	}
}

func TestForeignSignatureRejected(t *testing.T) {
	svc, db, _ := newTestService(t)
	user := createUser(t, db, "bob", "pw")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(user.ID, 10),
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("not-the-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Subject(context.Background(), "Bearer "+token); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestSigningKeyCreatedOnce(t *testing.T) {
	db := storagetest.NewDB(t)
	ctx := context.Background()

	first, err := NewService(db, nil, Options{}).SigningKey(ctx)
	if err != nil {
		t.Fatalf("first key: %v", err)
	}
	second, err := NewService(db, nil, Options{}).SigningKey(ctx)
	if err != nil {
		t.Fatalf("second key: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected the persisted key to be reused")
	}
	var count int64
	if err := db.Model(&domain.JwtKey{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one key row, got %d", count)
	}
}

func TestLogin(t *testing.T) {
	svc, db, rec := newTestService(t)
	ctx := context.Background()
	user := createUser(t, db, "bob", "secret")

	resp := domain.NewResponse()
	if _, _, err := svc.Login(ctx, domain.LoginPayload{Username: "bob", Password: "wrong"}, resp); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected auth error for bad password, got %v", err)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].Text != msgInvalidCredentials {
		t.Fatalf("unexpected alerts: %+v", resp.Alerts)
	}
	if _, _, err := svc.Login(ctx, domain.LoginPayload{Username: "Bob", Password: "secret"}, domain.NewResponse()); err == nil {
		t.Fatalf("expected usernames to be case sensitive")
	}

	got, token, err := svc.Login(ctx, domain.LoginPayload{Username: "bob", Password: "secret", Remember: true}, domain.NewResponse())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID || got.Logins != 1 || got.LastLogin == 0 {
		t.Fatalf("unexpected user after login: %+v", got)
	}
	if !svc.ValidateToken(ctx, "Bearer "+token, domain.NewResponse()) {
		t.Fatalf("expected login token to validate")
	}
	if len(rec.comments) != 1 || rec.comments[0] != "bob logged in." {
		t.Fatalf("unexpected activity: %v", rec.comments)
	}

	resp = domain.NewResponse()
	if err := svc.Logout(ctx, "Bearer "+token, resp); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if svc.ValidateToken(ctx, "Bearer "+token, domain.NewResponse()) {
		t.Fatalf("expected token to fail after logout")
	}
	if len(rec.comments) != 2 || rec.comments[1] != "bob logged out." {
		t.Fatalf("unexpected activity: %v", rec.comments)
	}
}
