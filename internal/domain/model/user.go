package model

import (
	"fmt"
	"strings"
	"time"

	"research-orchestrator/internal/domain"
)

// Provider names an upstream service the user brings a key for.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderTavily     Provider = "tavily"
)

// Providers lists the keys a user needs before a pipeline may run.
var Providers = []Provider{ProviderOpenRouter, ProviderTavily}

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenRouter, ProviderTavily:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, s)
}

// DisplayName is used in user-facing messages.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderOpenRouter:
		return "OpenRouter"
	case ProviderTavily:
		return "Tavily"
	}
	return string(p)
}

// User stores the encrypted provider keys of an account. Plain keys never
// leave the usecase layer.
type User struct {
	ID                     string    `json:"id"`
	EncryptedOpenRouterKey string    `json:"encryptedOpenRouterKey,omitempty"`
	EncryptedTavilyKey     string    `json:"encryptedTavilyKey,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

func NewUser(id string, now time.Time) *User {
	return &User{ID: id, CreatedAt: now, UpdatedAt: now}
}

func (u *User) Key(p Provider) string {
	switch p {
	case ProviderOpenRouter:
		return u.EncryptedOpenRouterKey
	case ProviderTavily:
		return u.EncryptedTavilyKey
	}
	return ""
}

func (u *User) SetKey(p Provider, encrypted string, now time.Time) {
	switch p {
	case ProviderOpenRouter:
		u.EncryptedOpenRouterKey = encrypted
	case ProviderTavily:
		u.EncryptedTavilyKey = encrypted
	}
	u.UpdatedAt = now
}

func (u *User) HasKey(p Provider) bool { return u != nil && u.Key(p) != "" }

// Credentials are the decrypted keys a pipeline run uses.
type Credentials struct {
	LLMKey    string
	SearchKey string
}
