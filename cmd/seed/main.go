package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"research-orchestrator/internal/config"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/infra/api"
	pg "research-orchestrator/internal/infra/db/postgres"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/infra/security"
	"research-orchestrator/internal/usecase"
)

// seed stores provider keys for a user and prints a bearer token for it,
// so a fresh environment can run jobs without a sign-in flow.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "", "user id (defaults to auth.dev_user_id)")
	orKey := flag.String("openrouter-key", os.Getenv("OPENROUTER_API_KEY"), "OpenRouter API key")
	tvKey := flag.String("tavily-key", os.Getenv("TAVILY_API_KEY"), "Tavily API key")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *userID == "" {
		*userID = cfg.Auth.DevUserID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	vault, err := security.NewKeyVault(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("key vault: %v", err)
	}
	userUC := usecase.NewUserUseCase(pg.NewUserRepo(pool), vault, logging.Nop())

	keys := map[model.Provider]string{
		model.ProviderOpenRouter: *orKey,
		model.ProviderTavily:     *tvKey,
	}
	for _, p := range model.Providers {
		if keys[p] == "" {
			st, err := userUC.KeyStatus(ctx, *userID, p)
			if err != nil {
				log.Fatalf("key status %s: %v", p, err)
			}
			fmt.Printf("  - %s: no key given (stored=%v)\n", p.DisplayName(), st.HasKey)
			continue
		}
		st, err := userUC.SaveKey(ctx, *userID, p, keys[p])
		if err != nil {
			log.Fatalf("save %s key: %v", p, err)
		}
		fmt.Printf("seeded: %s key %s for %s\n", p.DisplayName(), st.MaskedKey, *userID)
	}

	if cfg.Auth.JWTSecret == "" {
		fmt.Println("auth.jwt_secret is empty; run the server with -dev instead of a token.")
		return
	}
	tok, err := api.NewAuthenticator(cfg.Auth.JWTSecret, false, "").Mint(*userID, *ttl)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Printf("Authorization: Bearer %s\n", tok)
}
