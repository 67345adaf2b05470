// Package auth acquires Microsoft Graph tokens for the MS365 calendar source.
package auth

import "time"

const (
	// DefaultClientID is the public client used when none is configured.
	DefaultClientID = "d7b530a4-7680-4c23-a8bf-c52c121d2e87"

	// DefaultAuthority is the multi-tenant authority.
	DefaultAuthority = "https://login.microsoftonline.com/common"
)

// Token represents an OAuth2 access token.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
	AccountID   string
}

// valid reports whether the token is usable for at least another skew.
func (t *Token) valid(now time.Time, skew time.Duration) bool {
	return t != nil && now.Add(skew).Before(t.ExpiresOn)
}
