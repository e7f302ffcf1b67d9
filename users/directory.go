package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanban-api/auth"
	"kanban-api/domain"
)

const (
	adminUsername        = "admin"
	adminDefaultPassword = "admin"

	msgUnableToLoadUsers = "Unable to load users. Please try again."
	msgUsernameUpdated   = "Username updated."
	msgUsernameTaken     = "Username already in use."
)

// Verifier resolves the caller of a request from its current token.
type Verifier interface {
	Verify(ctx context.Context, header string) (*domain.User, error)
}

// Recorder receives activity entries.
type Recorder interface {
	Record(ctx context.Context, comment string, oldValue, newValue any, itemID *int64) error
}

// Directory reads and updates user records.
type Directory struct {
	db       *gorm.DB
	verifier Verifier
	activity Recorder
	now      func() time.Time
}

// NewDirectory creates a Directory. activity may be nil.
func NewDirectory(db *gorm.DB, verifier Verifier, activity Recorder) *Directory {
	return &Directory{db: db, verifier: verifier, activity: activity, now: time.Now}
}

// Sanitize returns a copy of u without password, salt and token. The
// persisted row is not touched.
func Sanitize(u domain.User) domain.User {
	u.Password = nil
	u.Salt = nil
	u.Token = nil
	return u
}

// SanitizeAll sanitizes every user of the slice in place.
func SanitizeAll(list []domain.User) {
	for i := range list {
		list[i] = Sanitize(list[i])
	}
}

// ListUsers returns every user ordered by id. The caller must present the
// token currently stored for them; revoked or superseded tokens are refused.
func (d *Directory) ListUsers(ctx context.Context, header string, sanitize bool, resp *domain.Response) ([]domain.User, error) {
	if _, err := d.verifier.Verify(ctx, header); err != nil {
		resp.AddAlert(domain.AlertError, msgUnableToLoadUsers)
		return nil, err
	}
	list, err := d.all(ctx)
	if err != nil {
		resp.AddAlert(domain.AlertError, msgUnableToLoadUsers)
		return nil, err
	}
	if sanitize {
		SanitizeAll(list)
	}
	return list, nil
}

func (d *Directory) all(ctx context.Context) ([]domain.User, error) {
	var list []domain.User
	if err := d.db.WithContext(ctx).Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

// ByID loads one user.
func (d *Directory) ByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := d.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Kind: "user", ID: id}
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &u, nil
}

// UpdateUsername renames user unless another user already has the name.
// Names compare case-sensitively.
func (d *Directory) UpdateUsername(ctx context.Context, user *domain.User, newUsername string, resp *domain.Response) error {
	if user == nil {
		resp.AddAlert(domain.AlertError, msgUsernameTaken)
		return &domain.AuthError{Reason: domain.UnknownUser}
	}
	taken, err := d.usernameTaken(ctx, newUsername, user.ID)
	if err != nil {
		return err
	}
	if taken {
		resp.AddAlert(domain.AlertError, msgUsernameTaken)
		return &domain.ConflictError{Field: "username", Value: newUsername}
	}

	old := user.Username
	if err := d.db.WithContext(ctx).Model(user).Update("username", newUsername).Error; err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	user.Username = newUsername
	resp.AddAlert(domain.AlertSuccess, msgUsernameUpdated)

	if d.activity != nil {
		if err := d.activity.Record(ctx, old+" changed username to "+newUsername+".", old, newUsername, nil); err != nil {
			log.WithError(err).Error("activity.record.failed")
		}
	}
	return nil
}

func (d *Directory) usernameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var matches []domain.User
	if err := d.db.WithContext(ctx).Where("username = ?", name).Find(&matches).Error; err != nil {
		return false, fmt.Errorf("find username: %w", err)
	}
	for _, m := range matches {
		if m.Username == name && m.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

// BootstrapAdmin creates the initial admin account when no user exists.
// It reports whether an account was created.
func (d *Directory) BootstrapAdmin(ctx context.Context) (bool, error) {
	created := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Count(&count).Error; err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if count > 0 {
			return nil
		}
		salt, err := auth.NewSalt()
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(salt, adminDefaultPassword)
		if err != nil {
			return err
		}
		admin := domain.User{
			Username:  adminUsername,
			IsAdmin:   true,
			Logins:    0,
			LastLogin: d.now().Unix(),
			Salt:      &salt,
			Password:  &hash,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		log.WithField("username", adminUsername).Warn("users.bootstrap.admin_created")
	}
	return created, nil
}
