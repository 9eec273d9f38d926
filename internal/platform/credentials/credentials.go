// Package credentials supplies OAuth2 access tokens for the FCM HTTP v1 API.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// MessagingScope is the OAuth2 scope required by messages:send.
const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// Provider hands out access tokens from an oauth2.TokenSource. Tokens are
// reused until shortly before expiry and then refreshed lazily.
type Provider struct {
	source oauth2.TokenSource
}

// NewProvider wraps src so that a valid token is reused across requests.
func NewProvider(src oauth2.TokenSource) *Provider {
	return &Provider{source: oauth2.ReuseTokenSource(nil, src)}
}

// AccessToken returns a bearer token for the push API.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token source returned an empty access token")
	}
	return tok.AccessToken, nil
}

// NewGoogleTokenSource loads service account credentials from credentialsFile,
// or Application Default Credentials when the path is empty. It also returns
// the project id the credentials belong to, which may be empty for ADC.
func NewGoogleTokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, string, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, MessagingScope)
		if err != nil {
			return nil, "", fmt.Errorf("failed to find default credentials: %w", err)
		}
		return creds.TokenSource, creds.ProjectID, nil
	}

	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, MessagingScope)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse credentials: %w", err)
	}

	projectID := creds.ProjectID
	if projectID == "" {
		var sa struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal(raw, &sa); err == nil {
			projectID = sa.ProjectID
		}
	}
	return creds.TokenSource, projectID, nil
}
