package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/migrations"
)

func main() {
	var (
		downFlag    int
		versionFlag bool
	)
	flag.IntVar(&downFlag, "down", 0, "roll back this many migrations instead of applying")
	flag.BoolVar(&versionFlag, "version", false, "print the applied schema version and exit")
	flag.Parse()

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}
	logger := infra.NewLogger(os.Getenv("APP_ENV"), "migrate")

	switch {
	case versionFlag:
		v, dirty, err := migrations.Version(dbURL)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("version %d (dirty=%t)\n", v, dirty)
		return
	case downFlag > 0:
		if err := migrations.Down(dbURL, downFlag); err != nil {
			exitWithError(fmt.Errorf("migrate down: %w", err))
		}
		logger.Info().Int("steps", downFlag).Msg("migrations rolled back")
	default:
		if err := migrations.Up(dbURL); err != nil {
			exitWithError(fmt.Errorf("migrate up: %w", err))
		}
		logger.Info().Msg("migrations applied")
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
