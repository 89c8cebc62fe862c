package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/config"
	"github.com/voicegate/stt-gateway-api/internal/service"
	"github.com/voicegate/stt-gateway-api/internal/storage/postgres"
)

// Issues an API key for an existing user directly against the database,
// bypassing the HTTP surface. Useful for bootstrapping the first key.
func main() {
	userUUID := flag.String("user", "", "Owner user uuid")
	label := flag.String("label", "default", "Key label, unique per owner")
	description := flag.String("description", "", "Optional free-form description")
	flag.Parse()

	if *userUUID == "" {
		log.Fatal("-user is required")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	apiKeyRepo := postgres.NewAPIKeyRepository(pool, logger)
	userRepo := postgres.NewUserRepository(pool, logger)
	usageRepo := postgres.NewUsageRepository(pool, logger)

	credentials := service.NewCredentialService(apiKeyRepo, userRepo, usageRepo, config.JWTConfig{}, logger)

	issued, err := credentials.IssueKey(context.Background(), *userUUID, *label, *description)
	if err != nil {
		log.Fatalf("Failed to issue API key: %v", err)
	}

	fmt.Printf("Generated API Key (SAVE THIS securely!):\n%s\n\n", issued.PlaintextKey)
	fmt.Printf("Prefix:   %s\n", issued.Key.Prefix)
	fmt.Printf("Label:    %s\n", issued.Key.Label)
	fmt.Printf("Key Hash: %s\n", issued.Key.KeyHash)
}
