// Sync HTTP handlers.
//
// This file exposes the relay's sync endpoints:
//   - POST /api/sync/push       (append a terminal's batch, assign versions)
//   - GET  /api/sync/pull       (changes above a version, excluding the caller)
//   - POST /api/sync/terminals  (register a terminal, obtain its id)
//   - GET  /health              (liveness)
//
// Handlers are transport-thin: they bind and check input, call the relay
// service, and translate results into the success envelope.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/http/middleware"
	"github.com/tbourn/pos-sync/internal/utils"
)

// SyncService is the relay behavior the handlers depend on.
//
// Implementations must be safe for concurrent use and honor ctx.
type SyncService interface {
	Push(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error)
	Pull(ctx context.Context, q domain.PullQuery) (*domain.PullResult, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.RelayTerminal, error)
}

// Handlers groups the relay's HTTP endpoints.
type Handlers struct {
	svc SyncService
	now func() time.Time
}

// New constructs Handlers bound to svc.
func New(svc SyncService) *Handlers {
	return &Handlers{svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

// HeaderReplayed is set to "true" on push responses served from a receipt.
const HeaderReplayed = "Idempotent-Replayed"

//
// DTOs
//

// PushResponse acknowledges a push batch.
type PushResponse struct {
	Success         bool  `json:"success" example:"true"`
	ChangesReceived int   `json:"changes_received" example:"1"`
	LatestVersion   int64 `json:"latest_version" example:"11"`
}

// PullResponse is one page of changes.
type PullResponse struct {
	Success       bool                    `json:"success" example:"true"`
	Changes       []domain.ChangeLogEntry `json:"changes"`
	LatestVersion int64                   `json:"latest_version" example:"11"`
	Count         int                     `json:"count" example:"6"`
	HasMore       bool                    `json:"has_more" example:"false"`
}

// RegisterResponse returns the relay-assigned terminal id.
type RegisterResponse struct {
	Success    bool  `json:"success" example:"true"`
	TerminalID int64 `json:"terminal_id" example:"3"`
}

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

//
// Endpoints
//

// Push godoc
// @Summary     Push a batch of changes
// @Description Appends the terminal's changes to the change log in one transaction. Each change gets the next global version, in batch order. Retries carrying the same Idempotency-Key are answered from the stored receipt.
// @Tags        Sync
// @Accept      json
// @Produce     json
//
// @Param       X-Terminal-ID    header  int     false "Terminal id; must match terminal_id in the body"  example(3)
// @Param       Idempotency-Key  header  string  false "Stable key per batch"  example(1b4e28ba-2fa1-5d2e-883f-0016d3cca427)
// @Param       body             body    domain.PushRequest  true  "Push batch"
//
// @Success     200  {object}  handlers.PushResponse
// @Header      200  {string}  Idempotent-Replayed  "true when served from a receipt"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed batch"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage failure; retry"
// @Router      /api/sync/push [post]
func (h *Handlers) Push(c *gin.Context) {
	var req domain.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed JSON body")
		return
	}
	if tid := middleware.TerminalIDFrom(c); tid != "" && tid != strconv.FormatInt(req.TerminalID, 10) {
		fail(c, http.StatusBadRequest, ErrCodeInvalidRequest, "X-Terminal-ID does not match terminal_id")
		return
	}
	if key, found := middleware.GetIdempotencyKey(c); found {
		req.IdempotencyKey = key
	}

	res, err := h.svc.Push(c.Request.Context(), req)
	if err != nil {
		failService(c, err)
		return
	}
	if res.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	ok(c, http.StatusOK, PushResponse{
		Success:         true,
		ChangesReceived: res.ChangesReceived,
		LatestVersion:   res.LatestVersion,
	})
}

// Pull godoc
// @Summary     Pull changes since a version
// @Description Returns changes with version > since_version produced by other terminals, ascending by version. has_more reports that the page was capped.
// @Tags        Sync
// @Produce     json
//
// @Param       terminal_id    query  int  true   "Calling terminal"  minimum(1)
// @Param       since_version  query  int  false  "Last version already applied"  minimum(0) default(0)
// @Param       store_id       query  int  false  "Restrict to one store"
//
// @Success     200  {object}  handlers.PullResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing terminal_id"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage failure; retry"
// @Router      /api/sync/pull [get]
func (h *Handlers) Pull(c *gin.Context) {
	q := domain.PullQuery{
		TerminalID:   utils.ParseInt64Default(c.Query("terminal_id"), 0),
		SinceVersion: utils.ParseInt64Default(c.Query("since_version"), 0),
		StoreID:      utils.ParseInt64Default(c.Query("store_id"), 0),
	}
	if q.TerminalID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeInvalidRequest, "terminal_id is required")
		return
	}

	res, err := h.svc.Pull(c.Request.Context(), q)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, PullResponse{
		Success:       true,
		Changes:       res.Changes,
		LatestVersion: res.LatestVersion,
		Count:         res.Count,
		HasMore:       res.HasMore,
	})
}

// Register godoc
// @Summary     Register a terminal
// @Description Upserts the terminal by (store_id, terminal_code) and returns its relay-assigned id. The caller's address is recorded when ip_address is empty.
// @Tags        Sync
// @Accept      json
// @Produce     json
//
// @Param       body  body  domain.RegisterRequest  true  "Terminal identity"
//
// @Success     200  {object}  handlers.RegisterResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing terminal_code or store_id"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage failure; retry"
// @Router      /api/sync/terminals [post]
func (h *Handlers) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed JSON body")
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	t, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		failService(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Int64("terminal_id", t.ID).
		Str("terminal_code", t.TerminalCode).
		Int64("store_id", t.StoreID).
		Msg("terminal registered")
	ok(c, http.StatusOK, RegisterResponse{Success: true, TerminalID: t.ID})
}

// Health godoc
// @Summary     Liveness
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{Status: "ok", Timestamp: h.now()})
}
