package domain

// Board groups ordered lanes and categories and is visible to its shared users.
type Board struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	Name        string     `json:"name"`
	Active      bool       `gorm:"index" json:"active"`
	Lanes       []Lane     `gorm:"foreignKey:BoardID" json:"lanes"`
	Categories  []Category `gorm:"foreignKey:BoardID" json:"categories"`
	SharedUsers []User     `gorm:"many2many:board_users" json:"sharedUsers"`
}

// Shares reports whether the user with the given id is in the shared set.
func (b Board) Shares(userID int64) bool {
	for _, u := range b.SharedUsers {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// Lane is a column of a board. Collapsed is derived per viewer and never stored.
type Lane struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	BoardID   int64  `gorm:"index" json:"boardId"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	Items     []Item `gorm:"foreignKey:LaneID" json:"items"`
	Collapsed bool   `gorm:"-" json:"collapsed"`
}

// Category labels items of a board.
type Category struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	BoardID int64  `gorm:"index" json:"boardId"`
	Name    string `json:"name"`
}

// Item is a card inside a lane.
type Item struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	LaneID      int64  `gorm:"index" json:"laneId"`
	Position    int    `json:"position"`
	Title       string `json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Color       string `json:"color,omitempty"`
	Points      int    `json:"points"`
	AssigneeID  *int64 `json:"assigneeId"`
	CategoryID  *int64 `json:"categoryId"`
}
