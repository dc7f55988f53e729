package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/consultrelay/consult-relay-go/internal/database"
	"github.com/consultrelay/consult-relay-go/internal/model"
	"github.com/consultrelay/consult-relay-go/internal/repository"
	"github.com/consultrelay/consult-relay-go/internal/util"
)

// Seeds doctors and patients and prints each user's API token. Tokens are
// stored hashed, so this output is the only place they appear.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	doctors := flag.Int("doctors", 3, "number of doctors to create")
	patients := flag.Int("patients", 10, "number of patients to create")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	users := repository.NewUserRepository(db.DB)
	err = db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := users.WithTx(tx)
		if err := seedUsers(ctx, repo, model.UserRoleDoctor, *doctors); err != nil {
			return fmt.Errorf("seed doctors: %w", err)
		}
		if err := seedUsers(ctx, repo, model.UserRolePatient, *patients); err != nil {
			return fmt.Errorf("seed patients: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}

	log.Info().Int("doctors", *doctors).Int("patients", *patients).Msg("seed complete")
}

func seedUsers(ctx context.Context, repo repository.UserRepository, role model.UserRole, count int) error {
	for i := 0; i < count; i++ {
		token, err := util.GenerateToken()
		if err != nil {
			return err
		}

		name := gofakeit.Name()
		if role == model.UserRoleDoctor {
			name = "Dr. " + gofakeit.LastName()
		}

		user, err := repo.Create(ctx, model.CreateUserParams{
			ID:           uuid.NewString(),
			DisplayName:  name,
			Role:         role,
			APITokenHash: util.HashToken(token),
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s\t%s\t%s\t%s\n", user.Role, user.ID, user.DisplayName, token)
	}
	return nil
}
