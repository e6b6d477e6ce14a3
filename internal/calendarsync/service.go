package calendarsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/practivahq/practiva-backend/pkg/enums"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
}

type notifier interface {
	Notify(ctx context.Context, practitionerID uuid.UUID, kind enums.NotificationType, title, message string)
}

type ServiceParams struct {
	Repo      Repository
	Refresher refresher
	Notifier  notifier
	Logger    *logger.Logger
}

// Service keeps connected calendar credentials fresh. It runs from the cron
// worker; each account is refreshed independently so one revoked grant
// cannot stall the rest of the batch.
type Service struct {
	repo      Repository
	refresher refresher
	notifier  notifier
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "calendar repository required")
	}
	if params.Refresher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token refresher required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:      params.Repo,
		refresher: params.Refresher,
		notifier:  params.Notifier,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// RefreshResult summarizes one refresh sweep.
type RefreshResult struct {
	Refreshed int
	Flagged   int
	Failed    int
}

// RefreshExpiring refreshes every account whose access token expires inside
// the window. Accounts whose grant the provider reports as invalid are
// flagged for re-authorization and their practitioners notified; transient
// failures are left for the next sweep.
func (s *Service) RefreshExpiring(ctx context.Context, window time.Duration, limit int) (*RefreshResult, error) {
	accounts, err := s.repo.ListExpiringAccounts(ctx, s.now().UTC().Add(window), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expiring calendar accounts")
	}

	result := &RefreshResult{}
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		accountCtx := s.logg.WithPractitionerID(ctx, account.PractitionerID.String())

		creds, err := s.refresher.Refresh(accountCtx, account.RefreshToken)
		if err == nil {
			if err := s.repo.UpdateTokens(accountCtx, account.ID, creds.AccessToken, creds.RefreshToken, creds.ExpiresAt); err != nil {
				s.logg.Error(accountCtx, "persist refreshed tokens", err)
				result.Failed++
				continue
			}
			result.Refreshed++
			continue
		}

		if pkgerrors.IsRetryable(err) {
			// Transient; the next sweep picks the account up again.
			s.logg.Warn(accountCtx, "calendar token refresh failed, will retry next sweep")
			result.Failed++
			continue
		}

		if err := s.repo.MarkReauthRequired(accountCtx, account.ID); err != nil {
			s.logg.Error(accountCtx, "flag calendar account for reauth", err)
			result.Failed++
			continue
		}
		result.Flagged++
		s.notifier.Notify(accountCtx, account.PractitionerID, enums.NotificationTypeCalendarReauth,
			"Calendar disconnected",
			"Your calendar connection expired. Reconnect it to keep appointments in sync.")
	}
	return result, nil
}
