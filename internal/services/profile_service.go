package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"
)

// Identity is the verified caller handed over by the auth layer.
type Identity struct {
	UserID      string
	DisplayName string
	IsAdmin     bool
	IsBanned    bool
}

// Me is the profile of the caller together with their balance.
type Me struct {
	domain.Profile
	Balance            int64      `json:"balance"`
	LastDailyClaimedAt *time.Time `json:"last_daily_claimed_at"`
}

// ProfileService mirrors identities into profiles and opens coin accounts.
type ProfileService struct {
	DB    *gorm.DB
	Coins *CoinService
	Retry RetryPolicy
}

// Ensure makes sure a profile and coin account exist for id. The first time
// a user is seen the signup bonus is credited; later calls only refresh the
// mirrored identity fields when they changed.
func (s *ProfileService) Ensure(ctx context.Context, id Identity) (*domain.Profile, error) {
	id.UserID = strings.TrimSpace(id.UserID)
	if id.UserID == "" {
		return nil, ErrInvalidIdentity
	}

	if p, err := repo.GetProfile(ctx, s.DB, id.UserID); err == nil &&
		p.DisplayName == id.DisplayName && p.IsAdmin == id.IsAdmin && p.IsBanned == id.IsBanned {
		return p, nil
	} else if err != nil && !repo.IsNotFound(err) {
		return nil, err
	}

	var (
		out *domain.Profile
		ev  *domain.CoinEvent
	)
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		ev = nil
		created, err := repo.UpsertProfile(ctx, tx, &domain.Profile{
			UserID:      id.UserID,
			DisplayName: id.DisplayName,
			IsAdmin:     id.IsAdmin,
			IsBanned:    id.IsBanned,
		})
		if err != nil {
			return err
		}
		if err := repo.EnsureCoinAccount(ctx, tx, id.UserID); err != nil {
			return err
		}
		if created && s.Coins != nil && s.Coins.SignupBonus > 0 {
			if ev, err = s.Coins.grantSignupBonusTx(ctx, tx, id.UserID); err != nil {
				return err
			}
		}
		out, err = repo.GetProfile(ctx, tx, id.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.Coins != nil {
		s.Coins.afterCommit(ctx, ev)
	}
	return out, nil
}

// Me returns the profile and balance of userID.
func (s *ProfileService) Me(ctx context.Context, userID string) (*Me, error) {
	p, err := repo.GetProfile(ctx, s.DB, userID)
	if repo.IsNotFound(err) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	out := &Me{Profile: *p}
	acc, err := repo.GetCoinAccount(ctx, s.DB, userID)
	switch {
	case err == nil:
		out.Balance = acc.Balance
		out.LastDailyClaimedAt = acc.LastDailyClaimedAt
	case !repo.IsNotFound(err):
		return nil, err
	}
	return out, nil
}
