/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package auth produces the credentials used to push the generated branch.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

// Config selects a credential. A GitHub App takes precedence over a static
// token; with neither, remotes are accessed anonymously.
type Config struct {
	// AppID and InstallationRepo ("owner/repo") identify a GitHub App
	// installation.
	AppID            int64
	InstallationRepo string
	// AppKey is the App's PEM encoded private key.
	AppKey string `env:"GITHUB_APP_KEY"`
	// Token is a static access token.
	Token string `env:"GIT_TOKEN"`
	// APIURL overrides the GitHub API endpoint.
	APIURL string `env:"GITHUB_API_URL"`
}

// TokenSource returns the credential cfg selects, or nil for anonymous
// access.
func TokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	switch {
	case cfg.AppID != 0 && cfg.InstallationRepo != "":
		if cfg.AppKey == "" {
			return nil, errors.New("GITHUB_APP_KEY must be set to authenticate as a GitHub App")
		}
		return NewGitHubAppTokenSource(ctx, GitHubApp{
			AppID:      cfg.AppID,
			PrivateKey: []byte(normalizeKey(cfg.AppKey)),
			Repo:       cfg.InstallationRepo,
			APIURL:     cfg.APIURL,
		})
	case cfg.AppID != 0 || cfg.InstallationRepo != "":
		return nil, errors.New("a GitHub App needs both an app id and an installation repository")
	case cfg.Token != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}), nil
	default:
		return nil, nil
	}
}

// normalizeKey accepts keys whose newlines were escaped to fit a single
// environment variable line.
func normalizeKey(k string) string {
	if !strings.Contains(k, "\n") {
		k = strings.ReplaceAll(k, `\n`, "\n")
	}
	return strings.TrimSpace(k) + "\n"
}

// ParseRepo splits "owner/repo".
func ParseRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository %q should be in the format 'owner/repo'", s)
	}
	return owner, repo, nil
}

// GitHubApp identifies one installation of a GitHub App by a repository it
// is installed on.
type GitHubApp struct {
	AppID      int64
	PrivateKey []byte
	Repo       string
	// APIURL overrides https://api.github.com.
	APIURL string
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// NewGitHubAppTokenSource returns installation tokens for app. Tokens are
// refreshed shortly before they expire.
func NewGitHubAppTokenSource(ctx context.Context, app GitHubApp) (oauth2.TokenSource, error) {
	owner, repo, err := ParseRepo(app.Repo)
	if err != nil {
		return nil, err
	}
	rt := app.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	atr, err := ghinstallation.NewAppsTransport(rt, app.AppID, app.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("creating app transport: %w", err)
	}
	client := github.NewClient(&http.Client{Transport: atr})
	if app.APIURL != "" {
		base, err := url.Parse(strings.TrimRight(app.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing api url: %w", err)
		}
		atr.BaseURL = strings.TrimRight(app.APIURL, "/")
		client.BaseURL = base
	}

	inst, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("finding installation on %s: %w", app.Repo, err)
	}
	clog.FromContext(ctx).With("installation", inst.GetID()).Infof("Authenticating as GitHub App %d on %s", app.AppID, app.Repo)

	return &installationTokenSource{
		ctx: ctx,
		tr:  ghinstallation.NewFromAppsTransport(atr, inst.GetID()),
	}, nil
}

type installationTokenSource struct {
	ctx context.Context
	tr  *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.tr.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	expiry, _, err := s.tr.Expiry()
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer", Expiry: expiry}, nil
}
