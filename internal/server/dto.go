package server

// LoginRequest carries credentials for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" minLength:"1"`
	Password string `json:"password" minLength:"1"`
}

// LoginResponse returns the bearer token and the authenticated user.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role" enum:"admin,staff"`
}

type CreateUserRequest struct {
	Username    string `json:"username" minLength:"1"`
	Password    string `json:"password" minLength:"1"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty" enum:"admin,staff,"`
}

type UpdateUserRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Password    *string `json:"password,omitempty"`
	Role        *string `json:"role,omitempty"`
}

type CreateRequirementRequest struct {
	Title         string `json:"title" minLength:"1"`
	Description   string `json:"description" minLength:"1"`
	AssigneeID    int64  `json:"assignee_id"`
	Priority      string `json:"priority,omitempty" enum:"normal,urgent,"`
	ScheduledTime string `json:"scheduled_time,omitempty" format:"date-time"`
}

type SubmitRequirementRequest struct {
	Comment string `json:"comment" minLength:"1"`
}

type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}
