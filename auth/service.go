package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kanban-api/domain"
)

const (
	msgUnableToLoadUser   = "Unable to load user. Please try again."
	msgInvalidToken       = "Invalid token."
	msgInvalidCredentials = "Invalid username or password."
	msgLoggedOut          = "Logged out."
)

// Recorder receives activity entries for logins and logouts.
type Recorder interface {
	Record(ctx context.Context, comment string, oldValue, newValue any, itemID *int64) error
}

// Options tunes token lifetimes.
type Options struct {
	TokenTTL         time.Duration
	RememberTokenTTL time.Duration
}

// Service issues, checks and revokes bearer tokens. Every issued token is
// mirrored on the user row; a token is only accepted while it is the one
// stored there.
type Service struct {
	db       *gorm.DB
	activity Recorder
	opts     Options
	parser   *jwt.Parser
	now      func() time.Time

	mu  sync.Mutex
	key []byte
}

// NewService creates a Service. activity may be nil.
func NewService(db *gorm.DB, activity Recorder, opts Options) *Service {
	if db == nil {
		panic("auth.NewService: db is nil")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.RememberTokenTTL <= 0 {
		opts.RememberTokenTTL = 14 * 24 * time.Hour
	}
	return &Service{
		db:       db,
		activity: activity,
		opts:     opts,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		now:      time.Now,
	}
}

// SigningKey returns the process-wide secret, creating and persisting it on
// first use. When several processes race to create it, the row that made it
// into the table wins.
func (s *Service) SigningKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.key, nil
	}

	db := s.db.WithContext(ctx)
	var rec domain.JwtKey
	err := db.First(&rec, domain.JwtKeyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		secret, hashErr := bcrypt.GenerateFromPassword([]byte(strconv.FormatInt(s.now().UnixNano(), 10)), HashCost)
		if hashErr != nil {
			return nil, fmt.Errorf("generate signing key: %w", hashErr)
		}
		rec = domain.JwtKey{ID: domain.JwtKeyID, Token: string(secret)}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("store signing key: %w", err)
		}
		err = db.First(&rec, domain.JwtKeyID).Error
	}
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	s.key = []byte(rec.Token)
	return s.key, nil
}

// IssueToken signs a token for user valid for ttl and stores it on the user
// row, replacing any previous one.
func (s *Service) IssueToken(ctx context.Context, user *domain.User, ttl time.Duration) (string, error) {
	key, err := s.SigningKey(ctx)
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(user.ID, 10),
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
		"jti": uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", user.ID).Update("token", signed).Error; err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	user.Token = &signed
	return signed, nil
}

// Subject verifies the token carried by header and returns the user id it
// was issued for. The stored token is not consulted.
func (s *Service) Subject(ctx context.Context, header string) (int64, error) {
	token, err := TokenFromHeader(header)
	if err != nil {
		if errors.Is(err, errMissingAuthorization) {
			return 0, &domain.AuthError{Reason: domain.NoCredential, Err: err}
		}
		return 0, &domain.AuthError{Reason: domain.InvalidToken, Err: err}
	}
	id, err := s.parseSubject(ctx, token)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			return 0, err
		}
		return 0, &domain.AuthError{Reason: domain.InvalidToken, Err: err}
	}
	return id, nil
}

func (s *Service) parseSubject(ctx context.Context, token string) (int64, error) {
	key, err := s.SigningKey(ctx)
	if err != nil {
		return 0, err
	}
	parsed, err := s.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return key, nil
	})
	if err != nil {
		return 0, &domain.AuthError{Reason: domain.InvalidToken, Err: err}
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, &domain.AuthError{Reason: domain.InvalidToken, Err: errors.New("invalid claims")}
	}
	if !claims.VerifyExpiresAt(s.now().Unix(), true) {
		return 0, &domain.AuthError{Reason: domain.InvalidToken, Err: errors.New("token expired")}
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return 0, &domain.AuthError{Reason: domain.InvalidToken, Err: errors.New("missing sub")}
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.AuthError{Reason: domain.InvalidToken, Err: fmt.Errorf("bad sub %q", sub)}
	}
	return id, nil
}

// CurrentUser resolves the user making the request. On failure an error
// alert is added to resp and an *domain.AuthError (or a storage error) is
// returned.
func (s *Service) CurrentUser(ctx context.Context, header string, resp *domain.Response) (*domain.User, error) {
	user, err := s.currentUser(ctx, header)
	if err != nil {
		resp.AddAlert(domain.AlertError, msgUnableToLoadUser)
		if _, ok := domain.AuthReasonOf(err); ok {
			log.WithError(err).Debug("auth.current_user.rejected")
		} else {
			log.WithError(err).Error("auth.current_user.failed")
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) currentUser(ctx context.Context, header string) (*domain.User, error) {
	id, err := s.Subject(ctx, header)
	if err != nil {
		return nil, err
	}
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.AuthError{Reason: domain.UnknownUser, Err: &domain.NotFoundError{Kind: "user", ID: id}}
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

// Verify resolves the user of header and requires the presented token to be
// the one stored for that user. Revoked or superseded tokens fail with
// TokenMismatch.
func (s *Service) Verify(ctx context.Context, header string) (*domain.User, error) {
	user, err := s.currentUser(ctx, header)
	if err != nil {
		return nil, err
	}
	if err := matchStored(user, header); err != nil {
		return nil, err
	}
	return user, nil
}

func matchStored(user *domain.User, header string) error {
	token, _ := TokenFromHeader(header)
	if user.HasToken(token) {
		return nil
	}
	return &domain.AuthError{Reason: domain.TokenMismatch}
}

// Authenticate is ValidateToken returning the resolved user. On failure the
// stored token of the verifiable subject is cleared and resp carries a 401.
func (s *Service) Authenticate(ctx context.Context, header string, resp *domain.Response) (*domain.User, bool) {
	user, err := s.CurrentUser(ctx, header, resp)
	if err == nil {
		if err = matchStored(user, header); err == nil {
			return user, true
		}
		log.WithError(err).WithField("user_id", user.ID).Debug("auth.token.rejected")
	}
	if err := s.RevokeToken(ctx, header); err != nil {
		log.WithError(err).Error("auth.token.revoke_failed")
	}
	resp.Message = msgInvalidToken
	resp.SetStatus(http.StatusUnauthorized)
	return nil, false
}

// ValidateToken reports whether header carries the token currently stored
// for its user.
func (s *Service) ValidateToken(ctx context.Context, header string, resp *domain.Response) bool {
	_, ok := s.Authenticate(ctx, header, resp)
	return ok
}

// RevokeToken clears the stored token of the user header was issued for.
// Headers that do not verify are ignored.
func (s *Service) RevokeToken(ctx context.Context, header string) error {
	id, err := s.Subject(ctx, header)
	if err != nil {
		if _, ok := domain.AuthReasonOf(err); ok {
			return nil
		}
		return err
	}
	res := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("token", nil)
	if res.Error != nil {
		return fmt.Errorf("clear token of user %d: %w", id, res.Error)
	}
	return nil
}

// Login checks the credentials, updates login statistics and issues a new
// token.
func (s *Service) Login(ctx context.Context, in domain.LoginPayload, resp *domain.Response) (*domain.User, string, error) {
	user, err := s.userByCredentials(ctx, in.Username, in.Password)
	if err != nil {
		resp.AddAlert(domain.AlertError, msgInvalidCredentials)
		return nil, "", err
	}

	user.Logins++
	user.LastLogin = s.now().Unix()
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"logins":     user.Logins,
		"last_login": user.LastLogin,
	}).Error; err != nil {
		return nil, "", fmt.Errorf("update login stats: %w", err)
	}

	ttl := s.opts.TokenTTL
	if in.Remember {
		ttl = s.opts.RememberTokenTTL
	}
	token, err := s.IssueToken(ctx, user, ttl)
	if err != nil {
		return nil, "", err
	}
	s.record(ctx, user.Username+" logged in.")
	return user, token, nil
}

func (s *Service) userByCredentials(ctx context.Context, username, password string) (*domain.User, error) {
	var candidates []domain.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	for i := range candidates {
		u := &candidates[i]
		if u.Username != username || u.Password == nil {
			continue
		}
		salt := ""
		if u.Salt != nil {
			salt = *u.Salt
		}
		if CheckPassword(salt, password, *u.Password) {
			return u, nil
		}
	}
	return nil, &domain.AuthError{Reason: domain.InvalidCredentials}
}

// Logout revokes the caller's token.
func (s *Service) Logout(ctx context.Context, header string, resp *domain.Response) error {
	user, _ := s.currentUser(ctx, header)
	if err := s.RevokeToken(ctx, header); err != nil {
		return err
	}
	if user != nil {
		s.record(ctx, user.Username+" logged out.")
	}
	resp.AddAlert(domain.AlertSuccess, msgLoggedOut)
	return nil
}

func (s *Service) record(ctx context.Context, comment string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, comment, "", "", nil); err != nil {
		log.WithError(err).WithField("comment", comment).Error("activity.record.failed")
	}
}
