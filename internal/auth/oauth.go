package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProfile is the part of Google's OpenID userinfo response the
// identity resolver needs.
//
// Docs: https://developers.google.com/identity/openid-connect/openid-connect#obtainuserinfo
type GoogleProfile struct {
	ID    string `json:"sub"` // stable subject id, never reused
	Email string `json:"email"`
	// EmailVerified is false when Google has not confirmed the address
	// belongs to this account. Absent counts as false.
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// ErrIncompleteProfile is returned when Google answers without a subject
// id or an email address. Neither can be made up.
var ErrIncompleteProfile = errors.New("auth: google profile is missing id or email")

// GoogleProvider runs the server side of the Authorization Code flow.
//
// FLOW:
//  1. AuthURL → the browser is sent to Google's consent screen
//  2. Google redirects back to the callback with a one-time "code"
//  3. Exchange trades the code for a token (server-to-server, with the
//     client secret) and fetches the profile with that token
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a provider for the given OAuth client.
// callbackURL must match an authorized redirect URI in the Google console.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthURL returns the consent-screen URL. state is echoed back on the
// callback and compared against the oauth_state cookie (CSRF guard).
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's Google profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The returned client adds "Authorization: Bearer <token>" to every call.
	client := p.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var profile GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}

	if profile.ID == "" || profile.Email == "" {
		return nil, ErrIncompleteProfile
	}
	// Accounts without a structured name still carry a display name.
	if profile.GivenName == "" {
		profile.GivenName = profile.Name
	}

	return &profile, nil
}
