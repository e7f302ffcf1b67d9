package domain

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FlexInt decodes from a JSON number, a numeric string or null. Anything that
// does not parse becomes 0, so "new" or "" ids read as unresolved. Numbers
// outside the int64 range are rejected.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if math.IsNaN(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return fmt.Errorf("integer %s out of range", s)
		}
		*f = FlexInt(int64(v))
		return nil
	}
	*f = 0
	return nil
}

// FlexBool decodes loosely truthy JSON values: true, non-zero numbers and
// strings other than "", "0" and "false".
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*f = false
	case bytes.Equal(data, []byte("true")):
		*f = true
	case data[0] == '"':
		s := strings.Trim(string(data), `"`)
		*f = FlexBool(s != "" && s != "0" && s != "false")
	default:
		v, err := strconv.ParseFloat(string(data), 64)
		*f = FlexBool(err == nil && v != 0)
	}
	return nil
}

// LanePayload is a submitted lane. ID 0 (or an id unknown to the board) creates a lane.
type LanePayload struct {
	ID       FlexInt `json:"id"`
	Name     string  `json:"name"`
	Position FlexInt `json:"position"`
}

// CategoryPayload is a submitted category.
type CategoryPayload struct {
	ID   FlexInt `json:"id"`
	Name string  `json:"name"`
}

// BoardPayload is the body of a board create/update request.
type BoardPayload struct {
	Name          string            `json:"name"`
	Lanes         []LanePayload     `json:"lanes"`
	Categories    []CategoryPayload `json:"categories"`
	SharedUserIDs []int64           `json:"sharedUserIds,omitempty"`
	// Users is the legacy form: index i holds whether user i is shared.
	Users []FlexBool `json:"users,omitempty"`
}

// SharedIDs returns the sorted, de-duplicated set of user ids to share the
// board with. SharedUserIDs wins when present; otherwise the legacy Users
// array is read from index 1 on.
func (p BoardPayload) SharedIDs() []int64 {
	seen := make(map[int64]struct{})
	if p.SharedUserIDs != nil {
		for _, id := range p.SharedUserIDs {
			if id > 0 {
				seen[id] = struct{}{}
			}
		}
	} else {
		for i := 1; i < len(p.Users); i++ {
			if p.Users[i] {
				seen[int64(i)] = struct{}{}
			}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ItemPayload is the body of an add-item request.
type ItemPayload struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       string  `json:"color"`
	Points      FlexInt `json:"points"`
	AssigneeID  FlexInt `json:"assigneeId"`
	CategoryID  FlexInt `json:"categoryId"`
}

// LoginPayload is the body of a login request.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// UsernamePayload is the body of a username change request.
type UsernamePayload struct {
	NewUsername string `json:"newUsername"`
}
