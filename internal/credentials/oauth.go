package credentials

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const spotifyTokenURL = "https://accounts.spotify.com/api/token"

// OAuthSource mints tokens with the OAuth2 client-credentials grant, one client config per service.
type OAuthSource struct {
	configs map[string]*clientcredentials.Config
	client  *http.Client
}

// NewOAuthSource creates an empty OAuthSource. client may be nil.
func NewOAuthSource(client *http.Client) *OAuthSource {
	return &OAuthSource{configs: make(map[string]*clientcredentials.Config), client: client}
}

// Add registers client credentials for service.
func (o *OAuthSource) Add(service, clientID, clientSecret, tokenURL string) {
	o.configs[service] = &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
}

func (o *OAuthSource) Token(ctx context.Context, service string) (*models.CredentialToken, error) {
	return o.exchange(ctx, service)
}

// Refresh performs a new client-credentials exchange.
func (o *OAuthSource) Refresh(ctx context.Context, service string) (*models.CredentialToken, error) {
	if _, ok := o.configs[service]; !ok {
		return nil, fmt.Errorf("%w: %s has no client credentials", shared.ErrMissingCredentials, service)
	}
	tok, err := o.exchange(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return tok, nil
}

func (o *OAuthSource) exchange(ctx context.Context, service string) (*models.CredentialToken, error) {
	cfg, ok := o.configs[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no client credentials", shared.ErrMissingCredentials, service)
	}
	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s token exchange: %v", shared.ErrAuthFailed, service, err)
	}

	ct := &models.CredentialToken{Service: service, Secret: tok.AccessToken, Refreshable: true}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		ct.Expiry = &expiry
	}
	return ct, nil
}

// FromConfig builds the gateway used by the CLI: a [Broker] over the token cache, Spotify client
// credentials and the static [credentials] tables, in that order, persisting refreshed tokens to cache.
func FromConfig(cfg *shared.Config, cache *FileStore, logger *log.Logger) *Broker {
	oauth := NewOAuthSource(nil)
	if sp := cfg.Services.Spotify; sp.ClientID != "" && sp.ClientSecret != "" {
		oauth.Add("spotify", sp.ClientID, sp.ClientSecret, spotifyTokenURL)
	}

	chain := Chain{}
	var saver Saver
	if cache != nil {
		chain = append(chain, cache)
		saver = cache
	}
	chain = append(chain, oauth, NewStaticStore(cfg.Credentials))

	return NewBroker(chain, saver, logger)
}

type gatewaySource struct {
	ctx     context.Context
	gateway Gateway
	service string
}

// TokenSource adapts a gateway to an [oauth2.TokenSource] for clients that authenticate with bearer tokens.
// Calls outlive the context they were created with; only its values are kept.
func TokenSource(ctx context.Context, gateway Gateway, service string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &gatewaySource{ctx: context.WithoutCancel(ctx), gateway: gateway, service: service})
}

func (g *gatewaySource) Token() (*oauth2.Token, error) {
	tok, err := g.gateway.Token(g.ctx, g.service)
	if err != nil {
		return nil, err
	}
	ot := &oauth2.Token{AccessToken: tok.Secret, TokenType: "Bearer"}
	if tok.Expiry != nil {
		ot.Expiry = *tok.Expiry
	}
	return ot, nil
}
