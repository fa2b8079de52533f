package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"golang.org/x/oauth2"
)

type userInfoClaims struct {
	Subject    string   `json:"sub"`
	UID        string   `json:"uid"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Roles      []string `json:"roles"`
}

func fetchUserInfo(ctx context.Context, userInfoURL string, token *oauth2.Token) (*userInfoClaims, error) {
	if userInfoURL == "" {
		return nil, fmt.Errorf("[auth fetchUserInfo] provider has no userinfo endpoint")
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("[auth fetchUserInfo] %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[auth fetchUserInfo] %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("[auth fetchUserInfo] %w",
			&apperrors.UpstreamError{Service: "userinfo", StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(detail))})
	}

	var claims userInfoClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("[auth fetchUserInfo] decoding response: %w", err)
	}
	return &claims, nil
}
