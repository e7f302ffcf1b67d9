package domain

// User is an account able to sign in and see shared boards.
type User struct {
	ID           int64   `gorm:"primaryKey" json:"id"`
	Username     string  `gorm:"size:191;index" json:"username"`
	Password     *string `json:"password"`
	Salt         *string `json:"salt"`
	IsAdmin      bool    `json:"isAdmin"`
	Token        *string `gorm:"type:text" json:"token"`
	Logins       int     `json:"logins"`
	LastLogin    int64   `json:"lastLogin"`
	DefaultBoard *int64  `json:"defaultBoard"`
}

// HasToken reports whether token is the one currently stored for the user.
func (u User) HasToken(token string) bool {
	return u.Token != nil && token != "" && *u.Token == token
}

// JwtKey holds the process-wide signing secret. Only the row with ID 1 is used.
type JwtKey struct {
	ID    int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Token string `gorm:"type:text" json:"token"`
}

func (JwtKey) TableName() string { return "jwt" }

// JwtKeyID is the primary key of the signing secret row.
const JwtKeyID = 1

// Collapsed marks a lane as collapsed for one user.
type Collapsed struct {
	ID     int64 `gorm:"primaryKey" json:"id"`
	UserID int64 `gorm:"index:idx_collapsed_user_lane" json:"userId"`
	LaneID int64 `gorm:"index:idx_collapsed_user_lane" json:"laneId"`
}

func (Collapsed) TableName() string { return "collapsed" }

// Activity is an append-only audit record.
type Activity struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Comment   string `gorm:"type:text" json:"comment"`
	OldValue  string `gorm:"type:text" json:"oldValue"`
	NewValue  string `gorm:"type:text" json:"newValue"`
	Timestamp int64  `gorm:"index" json:"timestamp"`
	ItemID    *int64 `gorm:"index" json:"itemId"`
}
