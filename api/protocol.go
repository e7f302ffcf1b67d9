package api

import "kanban-api/domain"

const maxBodySize = 256 * 1024 // 256 KiB

const (
	msgInvalidRequest = "Invalid request."
	msgServerError    = "Something went wrong. Please try again."
	msgAdminRequired  = "Insufficient privileges."
	msgLoginSucceeded = "Login successful."
	msgBoardSaved     = "Board saved."
	msgBoardRemoved   = "Board removed."
	msgUserAdded      = "User added to board."
	msgItemAdded      = "Item added."
	msgItemRemoved    = "Item removed."
)

// POST /api/login response data
type loginData struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// POST /api/lanes/:id/toggle response data
type toggleData struct {
	LaneID    int64 `json:"laneId"`
	Collapsed bool  `json:"collapsed"`
}
