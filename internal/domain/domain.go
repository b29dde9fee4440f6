package domain

// User is the canonical identity value used everywhere after authentication.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role" enum:"admin,staff"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Requirement statuses. Compared exactly and case-sensitively; anything else
// is rejected before it reaches the store.
const (
	StatusNotDispatched = "not_dispatched"
	StatusPending       = "pending"
	StatusReviewing     = "reviewing"
	StatusCompleted     = "completed"
	StatusInvalid       = "invalid"
)

const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

type Requirement struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	AssignerID    int64   `json:"assigner_id"`
	AssigneeID    int64   `json:"assignee_id"`
	AssignerName  string  `json:"assigner_name,omitempty"`
	AssigneeName  string  `json:"assignee_name,omitempty"`
	Status        string  `json:"status" enum:"not_dispatched,pending,reviewing,completed,invalid"`
	Priority      string  `json:"priority" enum:"normal,urgent"`
	CreatedAt     *string `json:"created_at,omitempty" format:"date-time"`
	ScheduledTime *string `json:"scheduled_time,omitempty" format:"date-time"`
	IsDispatched  bool    `json:"is_dispatched"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
	Comment       *string `json:"comment,omitempty"`
	IsDeleted     bool    `json:"is_deleted"`
	DeletedAt     *string `json:"deleted_at,omitempty" format:"date-time"`
}

// ValidStatus reports whether s is one of the known lifecycle statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusNotDispatched, StatusPending, StatusReviewing, StatusCompleted, StatusInvalid:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	return p == PriorityNormal || p == PriorityUrgent
}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleStaff
}
