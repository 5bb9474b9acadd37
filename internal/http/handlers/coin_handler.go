// Coin HTTP handlers: balance, daily claim, ledger history, leaderboard,
// admin adjustments and the caller's profile.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// EventsResponse wraps ledger entries, newest first.
type EventsResponse struct {
	Events []domain.CoinEvent `json:"events"`
}

// RankingResponse wraps the leaderboard.
type RankingResponse struct {
	Ranking []domain.RankingEntry `json:"ranking"`
}

// AdminAdjustRequest credits (delta > 0) or debits (delta < 0) a user.
type AdminAdjustRequest struct {
	UserID string `json:"user_id" binding:"required" example:"user123"`
	Delta  int64  `json:"delta"   example:"-25"`
	Note   string `json:"note"    example:"chargeback"`
}

// BalanceResponse carries a balance after an operation.
type BalanceResponse struct {
	Balance int64 `json:"balance" example:"120"`
}

// GetBalance godoc
// @ID          getBalance
// @Summary     Get the caller's balance
// @Tags        Coins
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} services.Balance
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /coins/balance [get]
func (h *Handlers) GetBalance(c *gin.Context) {
	b, err := h.coins.GetBalance(c.Request.Context(), caller(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// ClaimDaily godoc
// @ID          claimDaily
// @Summary     Claim the daily bonus
// @Description At most one award per UTC day. A repeat claim returns already_claimed=true and awarded=0.
// @Tags        Coins
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} services.DailyClaim
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /coins/daily-claim [post]
func (h *Handlers) ClaimDaily(c *gin.Context) {
	res, err := h.coins.ClaimDaily(c.Request.Context(), caller(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListCoinEvents godoc
// @ID          listCoinEvents
// @Summary     List the caller's ledger entries
// @Tags        Coins
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query  int  false  "Max entries"  minimum(1) maximum(100) default(30)
// @Success     200  {object} handlers.EventsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad limit"
// @Router      /coins/events [get]
func (h *Handlers) ListCoinEvents(c *gin.Context) {
	limit, valid := parseLimit(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
		return
	}
	evs, err := h.coins.ListEvents(c.Request.Context(), caller(c).UserID, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, EventsResponse{Events: evs})
}

// Ranking godoc
// @ID          coinRanking
// @Summary     Balance leaderboard
// @Tags        Coins
// @Produce     json
// @Param       limit  query  int  false  "Max entries"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.RankingResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad limit"
// @Router      /coins/ranking [get]
func (h *Handlers) Ranking(c *gin.Context) {
	limit, valid := parseLimit(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
		return
	}
	out, err := h.coins.Ranking(c.Request.Context(), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RankingResponse{Ranking: out})
}

// AdminAdjust godoc
// @ID          adminAdjustCoins
// @Summary     Adjust a user's balance
// @Description Admin only. Negative deltas follow debit rules and never drive a balance below zero.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.AdminAdjustRequest  true  "Adjustment"
// @Success     200  {object} handlers.BalanceResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request or insufficient funds"
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Router      /admin/coins/adjust [post]
func (h *Handlers) AdminAdjust(c *gin.Context) {
	var req AdminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	bal, err := h.coins.AdminAdjust(c.Request.Context(), caller(c), strings.TrimSpace(req.UserID), req.Delta, strings.TrimSpace(req.Note))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, BalanceResponse{Balance: bal})
}

// Me godoc
// @ID          me
// @Summary     The caller's profile and balance
// @Tags        Profile
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} services.Me
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	me, err := h.profiles.Me(c.Request.Context(), caller(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, me)
}
