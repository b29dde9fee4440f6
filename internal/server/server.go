// Package server exposes the requirement engine over HTTP. It is a thin
// adapter; all lifecycle rules live in the engine.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"reqmgr/internal/auth"
	"reqmgr/internal/domain"
	"reqmgr/internal/engine"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Auth     auth.Service
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"transition_conflict"`
	Message string         `json:"message" example:"requirement 7 cannot move from completed to reviewing"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "transition_conflict"
	case http.StatusServiceUnavailable:
		return "store_unavailable"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	var pe engine.PermissionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var ne engine.NotFoundError
	if errors.As(err, &ne) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var te engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "transition_conflict", err.Error(), map[string]any{"from": te.From, "to": te.To})
	}
	var se engine.StoreError
	if errors.As(err, &se) {
		return newAPIError(http.StatusServiceUnavailable, "store_unavailable", "storage unavailable", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

// New returns an HTTP handler exposing the requirement API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Requirement API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerLogin(group, cfg.Auth)
	registerMe(group)
	registerUsers(group, cfg.Engine)
	registerRequirements(group, cfg.Engine)
	registerAdmin(group, cfg.Engine)

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerLogin(api huma.API, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/login",
		Summary:     "Authenticate and obtain a token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, token, err := svc.Login(ctx, input.Body.Username, input.Body.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: mapUser(u)}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: mapUser(caller)}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"admin,staff,"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx, caller, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(users)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Show a user",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUser(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: mapUser(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, caller, engine.UserOptions{
			Username:    input.Body.Username,
			DisplayName: input.Body.DisplayName,
			Email:       input.Body.Email,
			Role:        input.Body.Role,
			Credential:  auth.HashCredential(input.Body.Password),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: mapUser(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Update a user",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.UpdateUserOptions{
			DisplayName: input.Body.DisplayName,
			Email:       input.Body.Email,
			Role:        input.Body.Role,
		}
		if input.Body.Password != nil {
			hashed := auth.HashCredential(*input.Body.Password)
			if *input.Body.Password == "" {
				hashed = ""
			}
			opts.Credential = &hashed
		}
		u, err := e.UpdateUser(ctx, caller, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: mapUser(u)}, nil
	})
}

type requirementPath struct {
	ID int64 `path:"id"`
}

type requirementBody struct {
	Body domain.Requirement `json:"body"`
}

type requirementListBody struct {
	Body []domain.Requirement `json:"body"`
}

func registerRequirements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-requirements",
		Method:      http.MethodGet,
		Path:        "/requirements",
		Summary:     "List dispatched requirements assigned to a user",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		AssigneeID int64  `query:"assignee_id"`
		Status     string `query:"status" enum:"not_dispatched,pending,reviewing,completed,invalid,"`
	}) (*requirementListBody, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListForAssignee(ctx, caller, input.AssigneeID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &requirementListBody{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-requirement",
		Method:      http.MethodGet,
		Path:        "/requirements/{id}",
		Summary:     "Show a requirement",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *requirementPath) (*requirementBody, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Get(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &requirementBody{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-requirement",
		Method:        http.MethodPost,
		Path:          "/requirements",
		Summary:       "Create a requirement",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateRequirementRequest `json:"body"`
	}) (*requirementBody, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.CreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssigneeID:  input.Body.AssigneeID,
			Priority:    input.Body.Priority,
		}
		if input.Body.ScheduledTime != "" {
			at, err := time.Parse(time.RFC3339, input.Body.ScheduledTime)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "scheduled_time must be RFC 3339", nil)
			}
			opts.ScheduledAt = &at
		}
		req, err := e.Create(ctx, caller, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &requirementBody{Body: req}, nil
	})

	registerAction(api, e, "submit-requirement", "submit", "Submit a requirement for review",
		func(ctx context.Context, e engine.Engine, caller domain.User, id int64, comment string) error {
			return e.Submit(ctx, caller, id, comment)
		}, true)
	registerAction(api, e, "approve-requirement", "approve", "Approve a submitted requirement",
		func(ctx context.Context, e engine.Engine, caller domain.User, id int64, _ string) error {
			return e.Approve(ctx, caller, id)
		}, false)
	registerAction(api, e, "reject-requirement", "reject", "Reject a submitted requirement",
		func(ctx context.Context, e engine.Engine, caller domain.User, id int64, _ string) error {
			return e.Reject(ctx, caller, id)
		}, false)
	registerAction(api, e, "invalidate-requirement", "invalidate", "Invalidate a requirement",
		func(ctx context.Context, e engine.Engine, caller domain.User, id int64, _ string) error {
			return e.Invalidate(ctx, caller, id)
		}, false)
	registerAction(api, e, "restore-requirement", "restore", "Restore a requirement from the trash",
		func(ctx context.Context, e engine.Engine, caller domain.User, id int64, _ string) error {
			return e.Restore(ctx, caller, id)
		}, false)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-requirement",
		Method:        http.MethodDelete,
		Path:          "/requirements/{id}",
		Summary:       "Move a requirement to the trash",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *requirementPath) (*struct{}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Delete(ctx, caller, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type actionFunc func(ctx context.Context, e engine.Engine, caller domain.User, id int64, comment string) error

func registerAction(api huma.API, e engine.Engine, opID, action, summary string, fn actionFunc, wantsComment bool) {
	type actionInput struct {
		ID   int64 `path:"id"`
		Body struct {
			Comment string `json:"comment,omitempty"`
		} `json:"body,omitempty" required:"false"`
	}
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/requirements/{id}/" + action,
		Summary:     summary,
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *actionInput) (*requirementBody, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		comment := ""
		if wantsComment {
			comment = input.Body.Comment
		}
		if err := fn(ctx, e, caller, input.ID, comment); err != nil {
			return nil, handleError(err)
		}
		req, err := e.Get(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &requirementBody{Body: req}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-dispatched",
		Method:      http.MethodGet,
		Path:        "/admin/requirements",
		Summary:     "List requirements dispatched by the caller",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		AssigneeID int64  `query:"assignee_id"`
		Status     string `query:"status" enum:"not_dispatched,pending,reviewing,completed,invalid,"`
	}) (*requirementListBody, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListDispatchedForAssigner(ctx, caller, input.AssigneeID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &requirementListBody{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-scheduled",
		Method:      http.MethodGet,
		Path:        "/admin/scheduled",
		Summary:     "List scheduled requirements awaiting dispatch",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		AssigneeID int64 `query:"assignee_id"`
	}) (*requirementListBody, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListScheduledForAssigner(ctx, caller, input.AssigneeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &requirementListBody{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-scheduled",
		Method:        http.MethodDelete,
		Path:          "/admin/scheduled/{id}",
		Summary:       "Cancel a requirement before dispatch",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *requirementPath) (*struct{}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CancelScheduled(ctx, caller, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-trash",
		Method:      http.MethodGet,
		Path:        "/admin/trash",
		Summary:     "List requirements in the trash",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*requirementListBody, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListDeletedForAssigner(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &requirementListBody{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Requirement counts by status",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		caller, authErr := requireCaller(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.Stats(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{Counts: counts}}, nil
	})
}

func mapUser(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
	}
}

func mapUsers(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, mapUser(u))
	}
	return out
}
