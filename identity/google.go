package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// FederatedProfile is what a provider tells us about the signed-in user.
type FederatedProfile struct {
	Subject     string
	Email       string
	DisplayName string
}

// Exchanger turns an authorization code into a provider profile.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*FederatedProfile, error)
}

// GoogleExchanger implements Exchanger for Google sign-in.
type GoogleExchanger struct {
	conf        *oauth2.Config
	userInfoURL string
}

// NewGoogleExchanger returns nil when the client is not configured.
func NewGoogleExchanger(clientID, clientSecret, redirectBase string) *GoogleExchanger {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &GoogleExchanger{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", strings.TrimRight(redirectBase, "/")),
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleExchanger) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (g *GoogleExchanger) Exchange(ctx context.Context, code string) (*FederatedProfile, error) {
	token, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.conf.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("google user info missing id")
	}
	return &FederatedProfile{
		Subject:     payload.ID,
		Email:       strings.TrimSpace(payload.Email),
		DisplayName: strings.TrimSpace(payload.Name),
	}, nil
}
