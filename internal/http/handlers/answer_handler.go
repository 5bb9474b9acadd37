// Answer HTTP handlers: posting, listing, best-answer selection and likes.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// CreateAnswerRequest is the JSON payload for posting an answer.
type CreateAnswerRequest struct {
	ThreadID string `json:"thread_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Content  string `json:"content"   example:"Use the squeeze theorem."`
}

// ListAnswersResponse wraps the answers of a thread, best answer first.
type ListAnswersResponse struct {
	Answers []domain.Answer `json:"answers"`
}

// ListAnswers godoc
// @ID          listAnswers
// @Summary     List answers of a thread
// @Description Best answer first, then oldest first. is_liked_by_me is set when the caller is identified.
// @Description The weak ETag is per viewer, since is_liked_by_me differs between callers.
// @Tags        Answers
// @Produce     json
// @Param       id   path  string  true  "Thread ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object} handlers.ListAnswersResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /threads/{id}/answers [get]
func (h *Handlers) ListAnswers(c *gin.Context) {
	id, valid := validID(c, "thread")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	viewer := caller(c).UserID

	if count, maxTS, err := h.answers.Stats(ctx, id); err == nil && count > 0 && maxTS != nil {
		etag := fmt.Sprintf(`W/"answers:%s:%s:%d:%d"`, id, viewer, count, maxTS.UnixNano())
		if notModified(c, etag) {
			return
		}
	}

	items, err := h.answers.ListByThread(ctx, id, viewer)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListAnswersResponse{Answers: items})
}

// CreateAnswer godoc
// @ID          createAnswer
// @Summary     Post an answer
// @Description Rejected when the thread is not open or its deadline has passed.
// @Tags        Answers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false "Replays the stored response for retries"
// @Param       body  body  handlers.CreateAnswerRequest  true  "Answer"
// @Success     201  {object} domain.Answer
// @Failure     400  {object} handlers.ErrorResponse "Validation error, deadline passed or thread resolved"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /answers [post]
func (h *Handlers) CreateAnswer(c *gin.Context) {
	var req CreateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if _, err := uuid.Parse(req.ThreadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread_id must be a UUID")
		return
	}
	a, err := h.answers.Create(c.Request.Context(), caller(c).UserID, req.ThreadID, req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// SelectBestAnswer godoc
// @ID          selectBestAnswer
// @Summary     Select the best answer
// @Description Thread owner only. Resolves the thread and pays the stake minus the fee to the answer's author exactly once.
// @Tags        Answers
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Answer ID (UUID)"  format(uuid)
// @Success     200  {object} services.RewardResult
// @Failure     403  {object} handlers.ErrorResponse "Not the thread owner"
// @Failure     404  {object} handlers.ErrorResponse "Answer not found"
// @Failure     409  {object} handlers.ErrorResponse "Thread already resolved"
// @Router      /answers/{id}/best [patch]
func (h *Handlers) SelectBestAnswer(c *gin.Context) {
	id, valid := validID(c, "answer")
	if !valid {
		return
	}
	res, err := h.rewards.SelectBestAnswer(c.Request.Context(), "", id, caller(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// DeleteAnswer godoc
// @ID          deleteAnswer
// @Summary     Delete an answer
// @Description Author or admin. The best answer cannot be deleted.
// @Tags        Answers
// @Security    BearerAuth
// @Param       id   path  string  true  "Answer ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Answer not found"
// @Failure     409  {object} handlers.ErrorResponse "Best answer"
// @Router      /answers/{id} [delete]
func (h *Handlers) DeleteAnswer(c *gin.Context) {
	id, valid := validID(c, "answer")
	if !valid {
		return
	}
	if err := h.answers.Delete(c.Request.Context(), caller(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// LikeAnswer godoc
// @ID          likeAnswer
// @Summary     Like an answer
// @Description The thread owner cannot like answers on their own thread.
// @Tags        Likes
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Answer ID (UUID)"  format(uuid)
// @Success     200  {object} services.LikeState
// @Failure     403  {object} handlers.ErrorResponse "Thread owner"
// @Failure     404  {object} handlers.ErrorResponse "Answer not found"
// @Failure     409  {object} handlers.ErrorResponse "Already liked"
// @Router      /answers/{id}/like [post]
func (h *Handlers) LikeAnswer(c *gin.Context) {
	id, valid := validID(c, "answer")
	if !valid {
		return
	}
	st, err := h.answers.Like(c.Request.Context(), id, caller(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// UnlikeAnswer godoc
// @ID          unlikeAnswer
// @Summary     Remove a like
// @Tags        Likes
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Answer ID (UUID)"  format(uuid)
// @Success     200  {object} services.LikeState
// @Failure     404  {object} handlers.ErrorResponse "Answer or like not found"
// @Router      /answers/{id}/like [delete]
func (h *Handlers) UnlikeAnswer(c *gin.Context) {
	id, valid := validID(c, "answer")
	if !valid {
		return
	}
	st, err := h.answers.Unlike(c.Request.Context(), id, caller(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
