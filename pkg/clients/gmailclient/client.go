// Package gmailclient delivers notification emails through the Gmail API.
package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hackney-volunteers/shift-signup/internal/config"
	"github.com/hackney-volunteers/shift-signup/pkg/utils"
)

// Client sends mail through a single Gmail account. Sends are serialized and
// spaced out to respect the API rate limit.
type Client struct {
	service      *gmail.Service
	userID       string
	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient builds a client from OAuth credentials and an authorized token.
// userID is the Gmail account to send as; empty selects the authorized user.
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, token *oauth2.Token, userID string) (*Client, error) {
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	if userID == "" {
		userID = "me"
	}
	return &Client{service: service, userID: userID}, nil
}
