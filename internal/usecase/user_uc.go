package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/infra/security"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase manages the provider keys users bring.
type UserUseCase interface {
	KeyStatus(ctx context.Context, userID string, p model.Provider) (*KeyStatus, error)
	SaveKey(ctx context.Context, userID string, p model.Provider, key string) (*KeyStatus, error)
	DeleteKey(ctx context.Context, userID string, p model.Provider) error
	HasCredentials(ctx context.Context, userID string) (bool, error)
	Credentials(ctx context.Context, userID string) (model.Credentials, error)
}

type KeyStatus struct {
	Provider  model.Provider `json:"provider"`
	HasKey    bool           `json:"hasKey"`
	MaskedKey string         `json:"maskedKey,omitempty"`
}

// KeySealer encrypts keys at rest. security.KeyVault implements it.
type KeySealer interface {
	Seal(userID string, p model.Provider, plaintext string) (string, error)
	Open(userID string, p model.Provider, sealed string) (string, error)
}

type userUC struct {
	users repository.UserRepository
	vault KeySealer
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, vault KeySealer, logger *zerolog.Logger) *userUC {
	l := logger.With().Str("component", "UserUC").Logger()
	return &userUC{users: users, vault: vault, log: &l}
}

// find returns nil without error for a user that never saved a key.
func (u *userUC) find(ctx context.Context, userID string) (*model.User, error) {
	usr, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return usr, err
}

func (u *userUC) KeyStatus(ctx context.Context, userID string, p model.Provider) (*KeyStatus, error) {
	usr, err := u.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &KeyStatus{Provider: p, HasKey: usr.HasKey(p)}
	if st.HasKey {
		if plain, err := u.vault.Open(userID, p, usr.Key(p)); err == nil {
			st.MaskedKey = security.Mask(plain)
		}
	}
	return st, nil
}

func (u *userUC) SaveKey(ctx context.Context, userID string, p model.Provider, key string) (*KeyStatus, error) {
	defer logging.TraceDuration(u.log, "UserUC.SaveKey")()

	key = strings.TrimSpace(key)
	if key == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	sealed, err := u.vault.Seal(userID, p, key)
	if err != nil {
		return nil, err
	}
	usr, err := u.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := model.Now()
	if usr == nil {
		usr = model.NewUser(userID, now)
	}
	usr.SetKey(p, sealed, now)
	if err := u.users.Save(ctx, repository.NoTX, usr); err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("provider", string(p)).Msg("provider key saved")
	return &KeyStatus{Provider: p, HasKey: true, MaskedKey: security.Mask(key)}, nil
}

func (u *userUC) DeleteKey(ctx context.Context, userID string, p model.Provider) error {
	usr, err := u.find(ctx, userID)
	if err != nil || usr == nil || !usr.HasKey(p) {
		return err
	}
	usr.SetKey(p, "", model.Now())
	return u.users.Save(ctx, repository.NoTX, usr)
}

func (u *userUC) HasCredentials(ctx context.Context, userID string) (bool, error) {
	usr, err := u.find(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range model.Providers {
		if !usr.HasKey(p) {
			return false, nil
		}
	}
	return true, nil
}

// Credentials decrypts both provider keys. A missing or unreadable key is
// reported as a MissingKeyError naming the provider.
func (u *userUC) Credentials(ctx context.Context, userID string) (model.Credentials, error) {
	usr, err := u.find(ctx, userID)
	if err != nil {
		return model.Credentials{}, err
	}
	keys := make(map[model.Provider]string, len(model.Providers))
	for _, p := range model.Providers {
		if !usr.HasKey(p) {
			return model.Credentials{}, &domain.MissingKeyError{Provider: p.DisplayName()}
		}
		plain, err := u.vault.Open(userID, p, usr.Key(p))
		if err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Str("provider", string(p)).Msg("stored key unreadable")
			return model.Credentials{}, &domain.MissingKeyError{Provider: p.DisplayName()}
		}
		keys[p] = plain
	}
	return model.Credentials{LLMKey: keys[model.ProviderOpenRouter], SearchKey: keys[model.ProviderTavily]}, nil
}
