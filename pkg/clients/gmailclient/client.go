// Package gmailclient wraps the Gmail API for the gmail notifier mode.
package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/carebridge/shift-cascade/internal/config"
	"github.com/carebridge/shift-cascade/pkg/utils"
)

// Client wraps the Gmail API client
type Client struct {
	service      *gmail.Service
	sender       string
	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a new Gmail client using an existing OAuth token.
// sender is the From address stamped on outgoing notifications; empty
// means the authenticated account's address.
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, token *oauth2.Token, sender string) (*Client, error) {
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	httpClient := oauthConfig.Client(ctx, token)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		service: service,
		sender:  sender,
	}, nil
}
