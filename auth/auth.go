// Package auth obtains OAuth2 client-credentials tokens for calls to a
// protected device-config directory.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type ClientCred struct {
	conf clientcredentials.Config
}

func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{
		conf: conf.toOauth2Config(),
	}
}

// GetToken requests an access token from the token endpoint.
func (c *ClientCred) GetToken(ctx context.Context) (string, error) {
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return tok.AccessToken, nil
}

// Client returns an HTTP client that attaches a bearer token to every
// request and refreshes it when it expires. timeout bounds both the token
// request and each call.
func (c *ClientCred) Client(timeout time.Duration) *http.Client {
	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	cli := c.conf.Client(ctx)
	cli.Timeout = timeout
	return cli
}
