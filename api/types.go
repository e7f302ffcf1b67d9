package api

import (
	"context"

	"kanban-api/domain"
)

// Authenticator issues and checks bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, header string, resp *domain.Response) (*domain.User, bool)
	ValidateToken(ctx context.Context, header string, resp *domain.Response) bool
	Login(ctx context.Context, in domain.LoginPayload, resp *domain.Response) (*domain.User, string, error)
	Logout(ctx context.Context, header string, resp *domain.Response) error
}

// UserDirectory reads and renames users.
type UserDirectory interface {
	ListUsers(ctx context.Context, header string, sanitize bool, resp *domain.Response) ([]domain.User, error)
	UpdateUsername(ctx context.Context, user *domain.User, newUsername string, resp *domain.Response) error
	ByID(ctx context.Context, id int64) (*domain.User, error)
}

// BoardStore abstracts board persistence for handlers.
type BoardStore interface {
	ListVisibleBoards(ctx context.Context, user *domain.User) ([]domain.Board, error)
	SaveBoard(ctx context.Context, boardID int64, payload domain.BoardPayload) (*domain.Board, error)
	AddUserToBoard(ctx context.Context, boardID int64, user *domain.User) error
	ToggleLaneCollapsed(ctx context.Context, laneID int64, user *domain.User) (bool, error)
	AddItem(ctx context.Context, laneID int64, in domain.ItemPayload) (*domain.Item, error)
	RemoveItem(ctx context.Context, itemID int64) error
	DeactivateBoard(ctx context.Context, boardID int64) error
}

// ActivityReader lists recorded activity.
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]domain.Activity, error)
}

// invalidator is implemented by board stores that cache listings.
type invalidator interface {
	Invalidate(ctx context.Context)
}

// Services bundles the dependencies of every route.
type Services struct {
	Auth     Authenticator
	Users    UserDirectory
	Boards   BoardStore
	Activity ActivityReader
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error
}
