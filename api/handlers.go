package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/users"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, logger *log.Logger) {
	e.POST("/api/login", login(svc.Auth))
	e.POST("/api/logout", logout(svc.Auth))
	e.POST("/api/authenticate", authenticate(svc.Auth))

	e.GET("/api/users", listUsers(svc.Users))
	e.POST("/api/users/username", updateUsername(svc.Auth, svc.Users, svc.Boards))

	e.GET("/api/boards", listBoards(svc.Auth, svc.Boards, logger))
	e.POST("/api/boards", saveBoard(svc.Auth, svc.Boards))
	e.POST("/api/boards/:id", saveBoard(svc.Auth, svc.Boards))
	e.DELETE("/api/boards/:id", deactivateBoard(svc.Auth, svc.Boards))
	e.POST("/api/boards/:id/users/:userId", addUserToBoard(svc.Auth, svc.Users, svc.Boards))

	e.POST("/api/lanes/:id/toggle", toggleLane(svc.Auth, svc.Boards))
	e.POST("/api/lanes/:id/items", addItem(svc.Auth, svc.Boards))
	e.DELETE("/api/items/:id", removeItem(svc.Auth, svc.Boards))

	e.GET("/api/activity", recentActivity(svc.Auth, svc.Activity))
	e.GET("/healthz", healthz(svc.Health))
}

func authHeader(c echo.Context) string {
	return c.Request().Header.Get(echo.HeaderAuthorization)
}

func respond(c echo.Context, resp *domain.Response) error {
	return c.JSON(resp.Status(), resp)
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	return sonic.ConfigStd.NewDecoder(lr).Decode(v)
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badRequest(c echo.Context, resp *domain.Response) error {
	resp.SetStatus(http.StatusBadRequest)
	resp.AddAlert(domain.AlertError, msgInvalidRequest)
	return respond(c, resp)
}

// fail maps err onto resp and writes it.
func fail(c echo.Context, resp *domain.Response, err error) error {
	status := http.StatusInternalServerError
	text := msgServerError
	switch {
	case errors.Is(err, domain.ErrAuth):
		status = http.StatusUnauthorized
		if reason, _ := domain.AuthReasonOf(err); reason == domain.NotAdmin {
			status = http.StatusForbidden
			text = msgAdminRequired
		}
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		text = sentence(err.Error())
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
		text = sentence(err.Error())
	default:
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"route":  c.Path(),
		}).Error("request.failed")
	}
	resp.SetStatus(status)
	if !resp.HasErrors() {
		resp.AddAlert(domain.AlertError, text)
	}
	return respond(c, resp)
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// requireUser resolves the caller. When it returns false the 401 response has
// already been written.
func requireUser(c echo.Context, auth Authenticator, resp *domain.Response) (*domain.User, bool, error) {
	user, ok := auth.Authenticate(c.Request().Context(), authHeader(c), resp)
	if !ok {
		return nil, false, respond(c, resp)
	}
	return user, true, nil
}

func requireAdmin(c echo.Context, auth Authenticator, resp *domain.Response) (*domain.User, bool, error) {
	user, ok, err := requireUser(c, auth, resp)
	if !ok {
		return nil, false, err
	}
	if !user.IsAdmin {
		return nil, false, fail(c, resp, &domain.AuthError{Reason: domain.NotAdmin})
	}
	return user, true, nil
}

func healthz(ping func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ping == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			log.WithError(err).Warn("healthz.failed")
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
}

func login(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		var in domain.LoginPayload
		if err := decodeBody(c, &in); err != nil {
			return badRequest(c, resp)
		}
		user, token, err := auth.Login(c.Request().Context(), in, resp)
		if err != nil {
			return fail(c, resp, err)
		}
		resp.Message = msgLoginSucceeded
		resp.Data = loginData{Token: token, User: users.Sanitize(*user)}
		return respond(c, resp)
	}
}

func logout(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		if err := auth.Logout(c.Request().Context(), authHeader(c), resp); err != nil {
			return fail(c, resp, err)
		}
		return respond(c, resp)
	}
}

func authenticate(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		user, ok, err := requireUser(c, auth, resp)
		if !ok {
			return err
		}
		resp.Data = users.Sanitize(*user)
		return respond(c, resp)
	}
}

func listUsers(dir UserDirectory) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		list, err := dir.ListUsers(c.Request().Context(), authHeader(c), true, resp)
		if err != nil {
			return fail(c, resp, err)
		}
		resp.Data = list
		return respond(c, resp)
	}
}

func updateUsername(auth Authenticator, dir UserDirectory, boards BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		user, ok, err := requireUser(c, auth, resp)
		if !ok {
			return err
		}
		var in domain.UsernamePayload
		if err := decodeBody(c, &in); err != nil || strings.TrimSpace(in.NewUsername) == "" {
			return badRequest(c, resp)
		}
		ctx := c.Request().Context()
		if err := dir.UpdateUsername(ctx, user, in.NewUsername, resp); err != nil {
			return fail(c, resp, err)
		}
		if inv, ok := boards.(invalidator); ok {
			inv.Invalidate(ctx)
		}
		resp.Data = users.Sanitize(*user)
		return respond(c, resp)
	}
}

func listBoards(auth Authenticator, boards BoardStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		resp := domain.NewResponse()
		authStart := time.Now()
		user, ok := auth.Authenticate(ctx, authHeader(c), resp)
		metrics.ObserveAuth(time.Since(authStart))
		if !ok {
			metrics.SetErrorStage("auth")
			return respond(c, resp)
		}

		fetchStart := time.Now()
		list, fetchErr := boards.ListVisibleBoards(ctx, user)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			return fail(c, resp, fetchErr)
		}
		metrics.SetBoardsReturned(len(list))
		resp.Data = list

		encodeStart := time.Now()
		err = respond(c, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func saveBoard(auth Authenticator, boards BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		if _, ok, err := requireAdmin(c, auth, resp); !ok {
			return err
		}
		var boardID int64
		if c.Param("id") != "" {
			id, ok := pathID(c, "id")
			if !ok {
				return badRequest(c, resp)
			}
			boardID = id
		}
		var in domain.BoardPayload
		if err := decodeBody(c, &in); err != nil || strings.TrimSpace(in.Name) == "" {
			return badRequest(c, resp)
		}
		board, err := boards.SaveBoard(c.Request().Context(), boardID, in)
		if err != nil {
			return fail(c, resp, err)
		}
		users.SanitizeAll(board.SharedUsers)
		resp.AddAlert(domain.AlertSuccess, msgBoardSaved)
		resp.Data = board
		return respond(c, resp)
	}
}

func deactivateBoard(auth Authenticator, boards BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		if _, ok, err := requireAdmin(c, auth, resp); !ok {
			return err
		}
		boardID, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, resp)
		}
		if err := boards.DeactivateBoard(c.Request().Context(), boardID); err != nil {
			return fail(c, resp, err)
		}
		resp.AddAlert(domain.AlertSuccess, msgBoardRemoved)
		return respond(c, resp)
	}
}

func addUserToBoard(auth Authenticator, dir UserDirectory, boards BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		if _, ok, err := requireAdmin(c, auth, resp); !ok {
			return err
		}
		boardID, okBoard := pathID(c, "id")
		userID, okUser := pathID(c, "userId")
		if !okBoard || !okUser {
			return badRequest(c, resp)
		}
		ctx := c.Request().Context()
		user, err := dir.ByID(ctx, userID)
		if err != nil {
			return fail(c, resp, err)
		}
		if err := boards.AddUserToBoard(ctx, boardID, user); err != nil {
			return fail(c, resp, err)
		}
		resp.AddAlert(domain.AlertSuccess, msgUserAdded)
		return respond(c, resp)
	}
}

func toggleLane(auth Authenticator, boards BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		user, ok, err := requireUser(c, auth, resp)
		if !ok {
			return err
		}
		laneID, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, resp)
		}
		collapsed, err := boards.ToggleLaneCollapsed(c.Request().Context(), laneID, user)
		if err != nil {
			return fail(c, resp, err)
		}
		resp.Data = toggleData{LaneID: laneID, Collapsed: collapsed}
		return respond(c, resp)
	}
}

func addItem(auth Authenticator, boards BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		if _, ok, err := requireUser(c, auth, resp); !ok {
			return err
		}
		laneID, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, resp)
		}
		var in domain.ItemPayload
		if err := decodeBody(c, &in); err != nil || strings.TrimSpace(in.Title) == "" {
			return badRequest(c, resp)
		}
		item, err := boards.AddItem(c.Request().Context(), laneID, in)
		if err != nil {
			return fail(c, resp, err)
		}
		resp.AddAlert(domain.AlertSuccess, msgItemAdded)
		resp.Data = item
		return respond(c, resp)
	}
}

func removeItem(auth Authenticator, boards BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		if _, ok, err := requireUser(c, auth, resp); !ok {
			return err
		}
		itemID, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, resp)
		}
		if err := boards.RemoveItem(c.Request().Context(), itemID); err != nil {
			return fail(c, resp, err)
		}
		resp.AddAlert(domain.AlertSuccess, msgItemRemoved)
		return respond(c, resp)
	}
}

func recentActivity(auth Authenticator, activity ActivityReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := domain.NewResponse()
		if _, ok, err := requireUser(c, auth, resp); !ok {
			return err
		}
		limit := 0
		if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return badRequest(c, resp)
			}
			limit = n
		}
		recs, err := activity.Recent(c.Request().Context(), limit)
		if err != nil {
			return fail(c, resp, err)
		}
		resp.Data = recs
		return respond(c, resp)
	}
}
