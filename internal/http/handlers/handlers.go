package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/http/middleware"
	"github.com/tbourn/go-coin-ledger/internal/repo"
	"github.com/tbourn/go-coin-ledger/internal/services"
	"github.com/tbourn/go-coin-ledger/internal/utils"
)

//
// Service contracts (context-aware)
//

// ThreadService defines the thread lifecycle consumed by HTTP handlers.
type ThreadService interface {
	Create(ctx context.Context, ownerID string, in services.CreateThreadInput) (*domain.Thread, error)
	Get(ctx context.Context, id string) (*domain.Thread, error)
	ListPage(ctx context.Context, f repo.ThreadFilter, page, pageSize int) ([]domain.Thread, int64, error)
	// Stats returns the count and latest update of matching threads (ETag).
	Stats(ctx context.Context, f repo.ThreadFilter) (int64, *time.Time, error)
	Update(ctx context.Context, actor services.Identity, id string, p services.ThreadPatch) (*domain.Thread, error)
	Delete(ctx context.Context, actor services.Identity, id string) (int64, error)
}

// AnswerService defines answers and likes.
type AnswerService interface {
	Create(ctx context.Context, authorID, threadID, content string) (*domain.Answer, error)
	ListByThread(ctx context.Context, threadID, viewerID string) ([]domain.Answer, error)
	// Stats returns the answer count and latest update of a thread (ETag).
	Stats(ctx context.Context, threadID string) (int64, *time.Time, error)
	Like(ctx context.Context, answerID, userID string) (*services.LikeState, error)
	Unlike(ctx context.Context, answerID, userID string) (*services.LikeState, error)
	Delete(ctx context.Context, actor services.Identity, answerID string) error
}

// RewardService selects best answers.
type RewardService interface {
	SelectBestAnswer(ctx context.Context, threadID, answerID, selectorID string) (*services.RewardResult, error)
}

// CoinService exposes balances and the ledger.
type CoinService interface {
	GetBalance(ctx context.Context, userID string) (*services.Balance, error)
	ClaimDaily(ctx context.Context, userID string) (*services.DailyClaim, error)
	ListEvents(ctx context.Context, userID string, limit int) ([]domain.CoinEvent, error)
	Ranking(ctx context.Context, limit int) ([]domain.RankingEntry, error)
	AdminAdjust(ctx context.Context, actor services.Identity, userID string, delta int64, note string) (int64, error)
}

// ProfileService returns the caller's profile.
type ProfileService interface {
	Me(ctx context.Context, userID string) (*services.Me, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on service interfaces only.
type Handlers struct {
	threads  ThreadService
	answers  AnswerService
	rewards  RewardService
	coins    CoinService
	profiles ProfileService
}

// New constructs a Handlers bound to the given services.
func New(threads ThreadService, answers AnswerService, rewards RewardService, coins CoinService, profiles ProfileService) *Handlers {
	return &Handlers{threads: threads, answers: answers, rewards: rewards, coins: coins, profiles: profiles}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// caller returns the identity set by the auth middleware. Routes that need
// it are mounted behind RequireUser, so a miss yields an empty identity.
func caller(c *gin.Context) services.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)
	return p.Number, p.Size
}

// parseLimit reads the limit query param. Absent means 0 (service default);
// anything that is not a positive integer is rejected. Values above the
// service maximum are clamped by the service.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.Page{Number: page, Size: pageSize}.TotalPages(total)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// failErr translates a service error into the standard error envelope.
// Unclassified errors become 500 with a generic message.
func failErr(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status := statusForKind(kind)
	if kind == services.KindInternal {
		middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
		fail(c, status, ErrCodeInternal, "internal server error")
		return
	}
	fail(c, status, services.CodeOf(err), err.Error())
}

func statusForKind(k services.Kind) int {
	switch k {
	case services.KindValidation, services.KindInsufficientFunds:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
