package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/keymaterial"
	"github.com/nbalawat/api-dev-portal-sub001/internal/storage/postgres"
)

func main() {
	name := flag.String("name", "Operator key", "Human readable key name")
	userID := flag.String("user", "", "Owning user UUID (required)")
	scopes := flag.String("scopes", "read", "Comma separated scopes")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	hmacSecret := os.Getenv("AUTH_HMACSECRET")
	if hmacSecret == "" {
		log.Fatal("AUTH_HMACSECRET environment variable is required")
	}

	owner, err := uuid.Parse(*userID)
	if err != nil {
		log.Fatalf("Invalid -user UUID: %v", err)
	}

	keys, err := keymaterial.NewManager(hmacSecret)
	if err != nil {
		log.Fatalf("Failed to initialize key material manager: %v", err)
	}

	keyID, secret, digest, err := keys.GenerateKeyPair()
	if err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}

	fmt.Printf("Generated API Key (SAVE THIS securely, it is shown only once!):\n%s.%s\n\n", keyID, secret)
	fmt.Printf("Key ID: %s\n", keyID)

	logger, _ := zap.NewDevelopment()
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	repo := postgres.NewAPIKeyRepository(pool, logger)

	newKeyRecord := &apikey.APIKey{
		KeyID:      keyID,
		SecretHash: digest,
		Name:       *name,
		UserID:     owner,
		Status:     apikey.StatusActive,
		Scopes:     strings.Split(*scopes, ","),
	}

	id, err := repo.Create(context.Background(), newKeyRecord)
	if err != nil {
		log.Fatalf("Failed to save API key to database: %v", err)
	}

	fmt.Printf("\nAPI Key saved to database with ID: %s\n", id)
}
