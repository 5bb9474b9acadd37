// Thread HTTP handlers.
//
// This file exposes REST endpoints for thread resources:
//   - POST   /threads         (create, debits the stake)
//   - GET    /threads         (list, paginated, ETag support)
//   - GET    /threads/{id}    (read)
//   - PATCH  /threads/{id}    (owner: deadline or zero-stake resolve)
//   - DELETE /threads/{id}    (owner or admin, refunds an escrowed stake)
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"
	"github.com/tbourn/go-coin-ledger/internal/services"
)

// CreateThreadRequest is the JSON payload for creating a thread.
type CreateThreadRequest struct {
	Title        string     `json:"title"          example:"How do I prove this limit?"`
	Content      string     `json:"content"        example:"Show that sin(x)/x tends to 1."`
	SubjectTagID int64      `json:"subject_tag_id" example:"3"`
	Deadline     *time.Time `json:"deadline"       example:"2025-09-01T12:00:00Z"`
	CoinStake    int64      `json:"coin_stake"     example:"50"`
}

// UpdateThreadRequest is the JSON payload for PATCH /threads/{id}.
type UpdateThreadRequest struct {
	// Status may only be "resolved" (zero-stake threads).
	Status   *string    `json:"status"   example:"resolved"`
	Deadline *time.Time `json:"deadline" example:"2025-09-08T12:00:00Z"`
}

// ListThreadsResponse wraps a page of threads.
type ListThreadsResponse struct {
	Threads    []domain.Thread `json:"threads"`
	Pagination Pagination      `json:"pagination"`
}

// DeleteThreadResponse reports the refunded stake.
type DeleteThreadResponse struct {
	Refunded int64 `json:"refunded" example:"50"`
}

// threadFilter builds a repo filter from query params.
func threadFilter(c *gin.Context) (repo.ThreadFilter, bool) {
	f := repo.ThreadFilter{
		Status:  domain.ThreadStatus(strings.TrimSpace(c.Query("status"))),
		OwnerID: strings.TrimSpace(c.Query("owner_id")),
		Desc:    c.DefaultQuery("order", "desc") != "asc",
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, false
	}
	if raw := c.Query("subject_tag_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			return f, false
		}
		f.SubjectTagID = n
	}
	switch sort := c.DefaultQuery("sort", "created_at"); sort {
	case "created_at", "deadline", "coin_stake":
		f.Sort = sort
	default:
		return f, false
	}
	return f, true
}

func validID(c *gin.Context, what string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, what+" id must be a UUID")
		return "", false
	}
	return id, true
}

// CreateThread godoc
// @ID          createThread
// @Summary     Create a thread
// @Description Creates a thread and debits coin_stake from the caller in the same transaction. The fee is frozen at creation.
// @Tags        Threads
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       X-User-ID        header  string  false "User ID (development header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Replays the stored response for retries"
// @Param       body             body    handlers.CreateThreadRequest  true  "Thread"
// @Success     201  {object}  domain.Thread
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error or insufficient funds"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /threads [post]
func (h *Handlers) CreateThread(c *gin.Context) {
	var req CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	t, err := h.threads.Create(c.Request.Context(), caller(c).UserID, services.CreateThreadInput{
		Title:        req.Title,
		Content:      req.Content,
		SubjectTagID: req.SubjectTagID,
		Deadline:     req.Deadline,
		CoinStake:    req.CoinStake,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, t.ID, t)
}

// ListThreads godoc
// @ID          listThreads
// @Summary     List threads (paginated)
// @Description Returns a page of threads. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Threads
// @Produce     json
// @Param       If-None-Match   header  string  false "Return 304 if ETag matches"
// @Param       status          query   string  false "open|resolved|expired"
// @Param       subject_tag_id  query   int     false "Subject tag"  minimum(1)
// @Param       owner_id        query   string  false "Owner user id"
// @Param       sort            query   string  false "created_at|deadline|coin_stake"  default(created_at)
// @Param       order           query   string  false "asc|desc"  default(desc)
// @Param       page            query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListThreadsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /threads [get]
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	f, valid := threadFilter(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid filter")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.threads.Stats(ctx, f); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"threads:%s:%s:%d:%s:%t:%d:%d:%d:%d"`,
			f.OwnerID, f.Status, f.SubjectTagID, f.Sort, f.Desc, page, pageSize, count, ts)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.threads.ListPage(ctx, f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListThreadsResponse{Threads: items, Pagination: newPagination(page, pageSize, total)})
}

// GetThread godoc
// @ID          getThread
// @Summary     Get a thread
// @Tags        Threads
// @Produce     json
// @Param       id   path  string  true  "Thread ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Thread
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /threads/{id} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	id, valid := validID(c, "thread")
	if !valid {
		return
	}
	t, err := h.threads.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// UpdateThread godoc
// @ID          updateThread
// @Summary     Update a thread
// @Description Owner-only. Moves the deadline of an open thread or resolves a thread without stake. Terminal threads never reopen.
// @Tags        Threads
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Thread ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateThreadRequest  true  "Patch"
// @Success     200  {object} domain.Thread
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Failure     409  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /threads/{id} [patch]
func (h *Handlers) UpdateThread(c *gin.Context) {
	id, valid := validID(c, "thread")
	if !valid {
		return
	}
	var req UpdateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	var p services.ThreadPatch
	if req.Status != nil {
		st := domain.ThreadStatus(strings.TrimSpace(*req.Status))
		p.Status = &st
	}
	p.Deadline = req.Deadline

	t, err := h.threads.Update(c.Request.Context(), caller(c), id, p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteThread godoc
// @ID          deleteThread
// @Summary     Delete a thread
// @Description Owner or admin. Refunds the stake when it is still in escrow, removes answers and likes and adjusts like totals.
// @Tags        Threads
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Thread ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.DeleteThreadResponse
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /threads/{id} [delete]
func (h *Handlers) DeleteThread(c *gin.Context) {
	id, valid := validID(c, "thread")
	if !valid {
		return
	}
	refunded, err := h.threads.Delete(c.Request.Context(), caller(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteThreadResponse{Refunded: refunded})
}
