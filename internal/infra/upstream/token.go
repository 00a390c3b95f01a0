package upstream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string        // スペース区切り
	Timeout      time.Duration // トークン取得の上限。0なら10秒
}

// client credentials のトークン。期限までは再利用される
// oauth2.Transport はリクエストのctxを使わないので、取得用のclient側で時間を区切る
func NewTokenSource(ctx context.Context, c Credentials) oauth2.TokenSource {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})

	cfg := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       strings.Fields(c.Scope),
	}
	return cfg.TokenSource(ctx)
}
