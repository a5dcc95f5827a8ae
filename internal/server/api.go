package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/teemow/calcompanion/internal/chat"
	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/session"
)

// SessionView is a session as listed to the client.
type SessionView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	Active      bool      `json:"active"`
}

// SessionsResponse is returned by GET /v1/sessions.
type SessionsResponse struct {
	ActiveID string        `json:"activeId,omitempty"`
	Sessions []SessionView `json:"sessions"`
	// Truncated is set when older sessions exist beyond the listed ones.
	Truncated bool `json:"truncated,omitempty"`
}

// ConversationResponse describes the active session and what it shows.
type ConversationResponse struct {
	Session  SessionView                   `json:"session"`
	State    chat.State                    `json:"state"`
	Messages []conversation.DisplayMessage `json:"messages"`
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// ToolView summarizes the tool run for a message.
type ToolView struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MessageResponse is returned by POST /v1/messages.
type MessageResponse struct {
	SessionID string                        `json:"sessionId"`
	Reply     string                        `json:"reply"`
	Notice    string                        `json:"notice,omitempty"`
	Tool      *ToolView                     `json:"tool,omitempty"`
	Messages  []conversation.DisplayMessage `json:"messages"`
}

// API implements the /v1 chat endpoints. Every route expects the identity
// middleware to have run.
type API struct {
	sc     *ServerContext
	logger *slog.Logger
}

// RegisterRoutes mounts the chat endpoints on g.
func (a *API) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions", a.listSessions)
	g.POST("/sessions", a.createSession)
	g.POST("/sessions/:id/activate", a.activateSession)
	g.DELETE("/sessions/:id", a.deleteSession)
	g.GET("/messages", a.listMessages)
	g.POST("/messages", a.postMessage)
	g.POST("/signout", a.signOut)
}

func (a *API) user(c echo.Context) (identity.User, error) {
	user, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return identity.User{}, echo.NewHTTPError(http.StatusUnauthorized, identity.ErrNoUser.Error())
	}
	return user, nil
}

func (a *API) manager(c echo.Context) (identity.User, *session.Manager, error) {
	user, err := a.user(c)
	if err != nil {
		return identity.User{}, nil, err
	}
	manager, err := a.sc.Sessions().Manager(c.Request().Context(), user.ID)
	if err != nil {
		return identity.User{}, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return user, manager, nil
}

func (a *API) view(user identity.User, info session.Info, activeID string) SessionView {
	return SessionView{
		ID:          info.ID,
		Name:        info.DisplayName(a.sc.Location(user)),
		CreatedAt:   info.CreatedAt,
		LastUpdated: info.LastUpdated,
		Active:      info.ID == activeID,
	}
}

func (a *API) activeView(user identity.User, manager *session.Manager) ConversationResponse {
	info, _ := manager.Active()
	return ConversationResponse{
		Session:  a.view(user, info, info.ID),
		State:    a.sc.Orchestrator().State(user.ID, info.ID),
		Messages: manager.DisplayMessages(),
	}
}

func (a *API) listSessions(c echo.Context) error {
	user, manager, err := a.manager(c)
	if err != nil {
		return err
	}

	active, _ := manager.Active()
	infos := manager.ListSessions()
	resp := SessionsResponse{
		ActiveID:  active.ID,
		Sessions:  make([]SessionView, 0, len(infos)),
		Truncated: manager.Truncated(),
	}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, a.view(user, info, active.ID))
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *API) createSession(c echo.Context) error {
	user, manager, err := a.manager(c)
	if err != nil {
		return err
	}
	manager.NewSession(c.Request().Context())
	return c.JSON(http.StatusCreated, a.activeView(user, manager))
}

// activateSession switches to the session in the path. A session that
// cannot be loaded is replaced by a new one, so the returned session id
// may differ from the requested one.
func (a *API) activateSession(c echo.Context) error {
	user, manager, err := a.manager(c)
	if err != nil {
		return err
	}
	manager.SwitchSession(c.Request().Context(), c.Param("id"))
	return c.JSON(http.StatusOK, a.activeView(user, manager))
}

func (a *API) deleteSession(c echo.Context) error {
	user, manager, err := a.manager(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if err := manager.DeleteSession(c.Request().Context(), id); err != nil {
		a.logger.Error("failed to delete session",
			logging.UserHash(user.ID), logging.Session(id), logging.Err(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete session")
	}
	return c.JSON(http.StatusOK, a.activeView(user, manager))
}

func (a *API) listMessages(c echo.Context) error {
	user, manager, err := a.manager(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.activeView(user, manager))
}

func (a *API) postMessage(c echo.Context) error {
	user, manager, err := a.manager(c)
	if err != nil {
		return err
	}

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result := a.sc.Orchestrator().Submit(c.Request().Context(), manager, user, req.Text)
	if !result.Accepted {
		return echo.NewHTTPError(rejectionStatus(result.Reason), result.Reason.Error())
	}

	resp := MessageResponse{
		SessionID: result.SessionID,
		Reply:     result.Reply,
		Notice:    result.Notice,
		Messages:  result.Messages,
	}
	if result.Tool != nil {
		resp.Tool = &ToolView{Name: result.Tool.Tool, Status: string(result.Tool.Status)}
	}
	return c.JSON(http.StatusOK, resp)
}

func rejectionStatus(reason error) int {
	switch {
	case errors.Is(reason, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(reason, chat.ErrBusy), errors.Is(reason, chat.ErrNoActiveSession):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func (a *API) signOut(c echo.Context) error {
	user, err := a.user(c)
	if err != nil {
		return err
	}
	a.sc.Sessions().SignOut(c.Request().Context(), user.ID)
	return c.NoContent(http.StatusNoContent)
}
