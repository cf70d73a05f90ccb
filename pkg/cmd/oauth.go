package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/dukex/taskpipe/pkg/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

var knownEndpoints = map[string]oauth2.Endpoint{
	"github": github.Endpoint,
}

// NewOAuthProviders builds the client configuration of each named provider
// from the environment: <NAME>_CLIENT_ID, <NAME>_CLIENT_SECRET, <NAME>_SCOPES
// (comma separated) and, for providers without a known endpoint,
// <NAME>_AUTH_URL and <NAME>_TOKEN_URL. Callbacks land on
// <baseURL>/auth/<name>/callback.
func NewOAuthProviders(names []string, baseURL string) (auth.Providers, error) {
	providers := make(auth.Providers, len(names))

	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}

		prefix := strings.ToUpper(name) + "_"

		clientID := os.Getenv(prefix + "CLIENT_ID")
		if clientID == "" {
			return nil, fmt.Errorf("%w: %sCLIENT_ID is not set", auth.ErrUnknownProvider, prefix)
		}

		endpoint, known := knownEndpoints[name]
		if !known {
			endpoint = oauth2.Endpoint{
				AuthURL:  os.Getenv(prefix + "AUTH_URL"),
				TokenURL: os.Getenv(prefix + "TOKEN_URL"),
			}

			if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
				return nil, fmt.Errorf("%w: %s needs %sAUTH_URL and %sTOKEN_URL", auth.ErrUnknownProvider, name, prefix, prefix)
			}
		}

		var scopes []string
		if raw := os.Getenv(prefix + "SCOPES"); raw != "" {
			scopes = strings.Split(raw, ",")
		}

		providers[name] = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: os.Getenv(prefix + "CLIENT_SECRET"),
			Endpoint:     endpoint,
			Scopes:       scopes,
			RedirectURL:  strings.TrimSuffix(baseURL, "/") + "/auth/" + name + "/callback",
		}
	}

	return providers, nil
}
