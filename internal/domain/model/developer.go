package model

import (
	"strings"
	"time"
)

// placeholderEmailDomain marks emails synthesized from a platform username
// when the real address is not known yet.
const placeholderEmailDomain = "users.noreply.github.com"

// Developer is the identity unit that commits and pull requests are attributed to.
// Email is unique across the system.
type Developer struct {
	ID             int64
	Email          string
	GitHubUsername string
	DisplayName    string
	AvatarURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Name returns the best human-readable label for the developer.
func (d Developer) Name() string {
	switch {
	case d.DisplayName != "":
		return d.DisplayName
	case d.GitHubUsername != "":
		return d.GitHubUsername
	default:
		return d.Email
	}
}

// HasPlaceholderEmail reports whether Email was synthesized from a username.
func (d Developer) HasPlaceholderEmail() bool {
	return IsPlaceholderEmail(d.Email)
}

// PlaceholderEmail synthesizes a stable email for a platform username.
func PlaceholderEmail(username string) string {
	return strings.ToLower(username) + "@" + placeholderEmailDomain
}

// IsPlaceholderEmail reports whether email was produced by PlaceholderEmail.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), "@"+placeholderEmailDomain)
}

// ProvisionalUsername derives a username from the local part of an email.
func ProvisionalUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// NormalizeEmail lowercases and trims an email for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
