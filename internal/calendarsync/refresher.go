package calendarsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/practivahq/practiva-backend/pkg/config"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/retry"
)

// Credentials is the result of one successful token refresh.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher exchanges a refresh token for fresh credentials against the
// provider's OAuth token endpoint. Transient upstream failures are retried
// with backoff; a revoked grant is terminal and reported as unauthorized so
// the caller flags the account for re-authorization instead of retrying
// forever.
type TokenRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	retryCfg     retry.Config
}

func NewTokenRefresher(cfg config.CalendarConfig) (*TokenRefresher, error) {
	if cfg.TokenURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token url is required")
	}
	return &TokenRefresher{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		retryCfg: retry.Config{
			MaxAttempts:  4,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2,
		},
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh exchanges the refresh token, retrying transient failures.
func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	if refreshToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refresh token is required")
	}

	var creds *Credentials
	err := retry.Execute(ctx, r.retryCfg, func(ctx context.Context) error {
		result, err := r.refreshOnce(ctx, refreshToken)
		if err != nil {
			return err
		}
		creds = result
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func (r *TokenRefresher) refreshOnce(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", r.clientID)
	form.Set("client_secret", r.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call token endpoint")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read token response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var token tokenResponse
		if err := json.Unmarshal(body, &token); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode token response")
		}
		if token.AccessToken == "" {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "token response missing access token")
		}
		rotated := token.RefreshToken
		if rotated == "" {
			rotated = refreshToken
		}
		return &Credentials{
			AccessToken:  token.AccessToken,
			RefreshToken: rotated,
			ExpiresAt:    time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second),
		}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var oauthErr tokenErrorResponse
		_ = json.Unmarshal(body, &oauthErr)
		// The grant is gone; no amount of retrying brings it back.
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized,
			fmt.Sprintf("refresh rejected: %s", oauthErrText(oauthErr, resp.StatusCode)))

	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}
}

func oauthErrText(err tokenErrorResponse, status int) string {
	if err.Error == "" {
		return fmt.Sprintf("status %d", status)
	}
	if err.ErrorDescription == "" {
		return err.Error
	}
	return fmt.Sprintf("%s: %s", err.Error, err.ErrorDescription)
}
