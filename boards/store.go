package boards

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kanban-api/domain"
	"kanban-api/users"
)

// Recorder receives activity entries.
type Recorder interface {
	Record(ctx context.Context, comment string, oldValue, newValue any, itemID *int64) error
}

// Store loads and mutates boards and their lanes, categories and items.
type Store struct {
	db       *gorm.DB
	activity Recorder
}

// NewStore creates a Store. activity may be nil.
func NewStore(db *gorm.DB, activity Recorder) *Store {
	if db == nil {
		panic("boards.NewStore: db is nil")
	}
	return &Store{db: db, activity: activity}
}

func byPosition(db *gorm.DB) *gorm.DB { return db.Order("position").Order("id") }

func byID(db *gorm.DB) *gorm.DB { return db.Order("id") }

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Lanes", byPosition).
		Preload("Lanes.Items", byPosition).
		Preload("Categories", byID).
		Preload("SharedUsers", byID)
}

// ListVisibleBoards returns the active boards user may see. Admins see every
// active board; other users see the boards shared with their id. Shared
// users are sanitized and lane collapse state is taken from user's
// preferences.
func (s *Store) ListVisibleBoards(ctx context.Context, user *domain.User) ([]domain.Board, error) {
	if user == nil {
		return nil, &domain.AuthError{Reason: domain.UnknownUser}
	}
	db := s.db.WithContext(ctx)

	var all []domain.Board
	if err := withChildren(db).Where("active = ?", true).Order("id").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}

	var rows []domain.Collapsed
	if err := db.Where("user_id = ?", user.ID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list collapsed lanes: %w", err)
	}
	collapsed := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		collapsed[r.LaneID] = struct{}{}
	}

	visible := make([]domain.Board, 0, len(all))
	for _, b := range all {
		if !user.IsAdmin && !b.Shares(user.ID) {
			continue
		}
		users.SanitizeAll(b.SharedUsers)
		for i := range b.Lanes {
			_, b.Lanes[i].Collapsed = collapsed[b.Lanes[i].ID]
		}
		visible = append(visible, b)
	}
	return visible, nil
}

// Board loads one board with its children.
func (s *Store) Board(ctx context.Context, id int64) (*domain.Board, error) {
	return s.load(s.db.WithContext(ctx), id)
}

func (s *Store) load(db *gorm.DB, id int64) (*domain.Board, error) {
	var b domain.Board
	if err := withChildren(db).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Kind: "board", ID: id}
		}
		return nil, fmt.Errorf("load board %d: %w", id, err)
	}
	return &b, nil
}

// SaveBoard reconciles the board with boardID against payload. A zero or
// unknown id creates a new board.
func (s *Store) SaveBoard(ctx context.Context, boardID int64, payload domain.BoardPayload) (*domain.Board, error) {
	board := &domain.Board{}
	if boardID > 0 {
		err := s.db.WithContext(ctx).First(board, boardID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			board = &domain.Board{}
		case err != nil:
			return nil, fmt.Errorf("load board %d: %w", boardID, err)
		}
	}
	return s.Reconcile(ctx, board, payload)
}

// Reconcile makes board match payload: name, lanes and categories keyed by
// id, and the shared-user set. Admins are always shared. Children whose id
// is missing from payload are removed; payload entries whose id does not
// belong to the board are created. The reloaded board is returned.
func (s *Store) Reconcile(ctx context.Context, board *domain.Board, payload domain.BoardPayload) (*domain.Board, error) {
	if board == nil {
		board = &domain.Board{}
	}
	created := board.ID == 0
	oldName := board.Name

	var saved *domain.Board
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		board.Name = payload.Name
		board.Active = true
		if created {
			if err := tx.Omit(clause.Associations).Create(board).Error; err != nil {
				return fmt.Errorf("create board: %w", err)
			}
		} else {
			err := tx.Model(&domain.Board{}).Where("id = ?", board.ID).
				Updates(map[string]any{"name": board.Name, "active": true}).Error
			if err != nil {
				return fmt.Errorf("update board %d: %w", board.ID, err)
			}
		}

		if err := reconcileLanes(tx, board.ID, payload.Lanes); err != nil {
			return err
		}
		if err := reconcileCategories(tx, board.ID, payload.Categories); err != nil {
			return err
		}
		if err := reconcileSharedUsers(tx, board, payload.SharedIDs()); err != nil {
			return err
		}

		var err error
		saved, err = s.load(tx, board.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.record(ctx, "Board "+saved.Name+" created.", nil, saved.Name, nil)
	} else {
		s.record(ctx, "Board "+saved.Name+" updated.", oldName, saved.Name, nil)
	}
	return saved, nil
}

func reconcileLanes(tx *gorm.DB, boardID int64, payload []domain.LanePayload) error {
	var existing []domain.Lane
	if err := tx.Where("board_id = ?", boardID).Find(&existing).Error; err != nil {
		return fmt.Errorf("load lanes: %w", err)
	}
	submitted := make(map[int64]struct{}, len(payload))
	for _, lp := range payload {
		submitted[int64(lp.ID)] = struct{}{}
	}
	known := make(map[int64]struct{}, len(existing))
	var removed []int64
	for _, l := range existing {
		if _, ok := submitted[l.ID]; ok {
			known[l.ID] = struct{}{}
			continue
		}
		removed = append(removed, l.ID)
	}

	if len(removed) > 0 {
		if err := tx.Where("lane_id IN ?", removed).Delete(&domain.Item{}).Error; err != nil {
			return fmt.Errorf("delete lane items: %w", err)
		}
		if err := tx.Where("lane_id IN ?", removed).Delete(&domain.Collapsed{}).Error; err != nil {
			return fmt.Errorf("delete collapsed lanes: %w", err)
		}
		if err := tx.Where("id IN ?", removed).Delete(&domain.Lane{}).Error; err != nil {
			return fmt.Errorf("delete lanes: %w", err)
		}
	}

	for _, lp := range payload {
		id := int64(lp.ID)
		if _, ok := known[id]; ok {
			err := tx.Model(&domain.Lane{}).Where("id = ?", id).
				Updates(map[string]any{"name": lp.Name, "position": int(lp.Position)}).Error
			if err != nil {
				return fmt.Errorf("update lane %d: %w", id, err)
			}
			continue
		}
		lane := domain.Lane{BoardID: boardID, Name: lp.Name, Position: int(lp.Position), Items: []domain.Item{}}
		if err := tx.Omit(clause.Associations).Create(&lane).Error; err != nil {
			return fmt.Errorf("create lane: %w", err)
		}
	}
	return nil
}

func reconcileCategories(tx *gorm.DB, boardID int64, payload []domain.CategoryPayload) error {
	var existing []domain.Category
	if err := tx.Where("board_id = ?", boardID).Find(&existing).Error; err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	submitted := make(map[int64]struct{}, len(payload))
	for _, cp := range payload {
		submitted[int64(cp.ID)] = struct{}{}
	}
	known := make(map[int64]struct{}, len(existing))
	var removed []int64
	for _, c := range existing {
		if _, ok := submitted[c.ID]; ok {
			known[c.ID] = struct{}{}
			continue
		}
		removed = append(removed, c.ID)
	}

	if len(removed) > 0 {
		err := tx.Model(&domain.Item{}).Where("category_id IN ?", removed).Update("category_id", nil).Error
		if err != nil {
			return fmt.Errorf("detach categories: %w", err)
		}
		if err := tx.Where("id IN ?", removed).Delete(&domain.Category{}).Error; err != nil {
			return fmt.Errorf("delete categories: %w", err)
		}
	}

	for _, cp := range payload {
		id := int64(cp.ID)
		if _, ok := known[id]; ok {
			if err := tx.Model(&domain.Category{}).Where("id = ?", id).Update("name", cp.Name).Error; err != nil {
				return fmt.Errorf("update category %d: %w", id, err)
			}
			continue
		}
		category := domain.Category{BoardID: boardID, Name: cp.Name}
		if err := tx.Create(&category).Error; err != nil {
			return fmt.Errorf("create category: %w", err)
		}
	}
	return nil
}

// reconcileSharedUsers diffs the wanted id set, plus every admin, against the
// current membership. Ids of users that do not exist are ignored.
func reconcileSharedUsers(tx *gorm.DB, board *domain.Board, wanted []int64) error {
	var target []domain.User
	q := tx.Where("is_admin = ?", true)
	if len(wanted) > 0 {
		q = q.Or("id IN ?", wanted)
	}
	if err := q.Order("id").Find(&target).Error; err != nil {
		return fmt.Errorf("load shared users: %w", err)
	}

	var current []domain.User
	assoc := tx.Model(board).Association("SharedUsers")
	if err := assoc.Find(&current); err != nil {
		return fmt.Errorf("load board users: %w", err)
	}

	targetIDs := make(map[int64]struct{}, len(target))
	for _, u := range target {
		targetIDs[u.ID] = struct{}{}
	}
	currentIDs := make(map[int64]struct{}, len(current))
	var remove []domain.User
	for _, u := range current {
		currentIDs[u.ID] = struct{}{}
		if _, ok := targetIDs[u.ID]; !ok {
			remove = append(remove, u)
		}
	}
	var add []domain.User
	for _, u := range target {
		if _, ok := currentIDs[u.ID]; !ok {
			add = append(add, u)
		}
	}

	if len(remove) > 0 {
		if err := tx.Model(board).Association("SharedUsers").Delete(remove); err != nil {
			return fmt.Errorf("remove board users: %w", err)
		}
	}
	if len(add) > 0 {
		if err := tx.Model(board).Association("SharedUsers").Append(add); err != nil {
			return fmt.Errorf("add board users: %w", err)
		}
	}
	return nil
}

// AddUserToBoard shares a board with user. Admins are added to every board
// and boardID is ignored. Already shared boards and unknown board ids are
// left alone.
func (s *Store) AddUserToBoard(ctx context.Context, boardID int64, user *domain.User) error {
	if user == nil {
		return &domain.AuthError{Reason: domain.UnknownUser}
	}
	var targets []domain.Board
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Preload("SharedUsers")
		var list []domain.Board
		if user.IsAdmin {
			if err := q.Order("id").Find(&list).Error; err != nil {
				return fmt.Errorf("list boards: %w", err)
			}
		} else {
			if err := q.Where("id = ?", boardID).Limit(1).Find(&list).Error; err != nil {
				return fmt.Errorf("load board %d: %w", boardID, err)
			}
			if len(list) == 0 {
				log.WithFields(log.Fields{"board_id": boardID, "user_id": user.ID}).Debug("board.share.skipped")
			}
		}
		for i := range list {
			if list[i].Shares(user.ID) {
				continue
			}
			if err := tx.Model(&list[i]).Association("SharedUsers").Append(user); err != nil {
				return fmt.Errorf("share board %d: %w", list[i].ID, err)
			}
			targets = append(targets, list[i])
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, b := range targets {
		s.record(ctx, user.Username+" added to board "+b.Name+".", nil, user.ID, nil)
	}
	return nil
}

// NextItemPosition returns the number of items currently in the lane, which
// is the position of the next inserted item.
func (s *Store) NextItemPosition(ctx context.Context, laneID int64) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.Item{}).Where("lane_id = ?", laneID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return int(count), nil
}

func (s *Store) lane(ctx context.Context, laneID int64) (*domain.Lane, error) {
	var lane domain.Lane
	if err := s.db.WithContext(ctx).First(&lane, laneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Kind: "lane", ID: laneID}
		}
		return nil, fmt.Errorf("load lane %d: %w", laneID, err)
	}
	return &lane, nil
}

// ToggleLaneCollapsed flips the collapse preference of user for the lane and
// returns the new state.
func (s *Store) ToggleLaneCollapsed(ctx context.Context, laneID int64, user *domain.User) (bool, error) {
	if user == nil {
		return false, &domain.AuthError{Reason: domain.UnknownUser}
	}
	if _, err := s.lane(ctx, laneID); err != nil {
		return false, err
	}
	db := s.db.WithContext(ctx)
	res := db.Where("user_id = ? AND lane_id = ?", user.ID, laneID).Delete(&domain.Collapsed{})
	if res.Error != nil {
		return false, fmt.Errorf("expand lane %d: %w", laneID, res.Error)
	}
	if res.RowsAffected > 0 {
		return false, nil
	}
	if err := db.Create(&domain.Collapsed{UserID: user.ID, LaneID: laneID}).Error; err != nil {
		return false, fmt.Errorf("collapse lane %d: %w", laneID, err)
	}
	return true, nil
}

// AddItem appends an item to the end of the lane.
func (s *Store) AddItem(ctx context.Context, laneID int64, in domain.ItemPayload) (*domain.Item, error) {
	if _, err := s.lane(ctx, laneID); err != nil {
		return nil, err
	}
	pos, err := s.NextItemPosition(ctx, laneID)
	if err != nil {
		return nil, err
	}
	item := domain.Item{
		LaneID:      laneID,
		Position:    pos,
		Title:       in.Title,
		Description: in.Description,
		Color:       in.Color,
		Points:      int(in.Points),
		AssigneeID:  optionalID(in.AssigneeID),
		CategoryID:  optionalID(in.CategoryID),
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.record(ctx, "Item "+item.Title+" added.", nil, item, &item.ID)
	return &item, nil
}

func optionalID(v domain.FlexInt) *int64 {
	if v <= 0 {
		return nil
	}
	id := int64(v)
	return &id
}

// RemoveItem deletes an item. Positions of the remaining items are kept.
func (s *Store) RemoveItem(ctx context.Context, itemID int64) error {
	db := s.db.WithContext(ctx)
	var item domain.Item
	if err := db.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.NotFoundError{Kind: "item", ID: itemID}
		}
		return fmt.Errorf("load item %d: %w", itemID, err)
	}
	if err := db.Delete(&item).Error; err != nil {
		return fmt.Errorf("delete item %d: %w", itemID, err)
	}
	s.record(ctx, "Item "+item.Title+" removed.", item, nil, &item.ID)
	return nil
}

// DeactivateBoard hides a board from every listing. Its rows are kept.
func (s *Store) DeactivateBoard(ctx context.Context, boardID int64) error {
	db := s.db.WithContext(ctx)
	var b domain.Board
	if err := db.First(&b, boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.NotFoundError{Kind: "board", ID: boardID}
		}
		return fmt.Errorf("load board %d: %w", boardID, err)
	}
	if err := db.Model(&b).Update("active", false).Error; err != nil {
		return fmt.Errorf("deactivate board %d: %w", boardID, err)
	}
	s.record(ctx, "Board "+b.Name+" removed.", true, false, nil)
	return nil
}

func (s *Store) record(ctx context.Context, comment string, oldValue, newValue any, itemID *int64) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, comment, oldValue, newValue, itemID); err != nil {
		log.WithError(err).WithField("comment", comment).Error("activity.record.failed")
	}
}
