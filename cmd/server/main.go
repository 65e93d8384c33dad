package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/triptrack/triptrack-api/internal/auth"
	"github.com/triptrack/triptrack-api/internal/config"
	"github.com/triptrack/triptrack-api/internal/database"
	"github.com/triptrack/triptrack-api/internal/handlers"
	"github.com/triptrack/triptrack-api/internal/notifier"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	// Connect to Database
	db := database.Connect(cfg)

	// Initialize Notifiers
	var mailer notifier.Notifier
	smtpNotifier, err := notifier.NewSMTPNotifier(cfg)
	if err != nil {
		log.Printf("SMTP mailer not initialized: %v", err)
	} else {
		mailer = smtpNotifier
	}

	var organizer notifier.OrganizerNotifier
	discordNotifier, err := notifier.NewDiscordNotifier(cfg)
	if err != nil {
		log.Printf("Discord notifier not initialized: %v", err)
	} else {
		organizer = discordNotifier
	}

	// Initialize Handlers
	authHandler := auth.NewAuthHandler(cfg, db, mailer)
	tripHandler := handlers.NewTripHandler(db, authHandler)
	registrationHandler := handlers.NewRegistrationHandler(db, cfg, mailer, organizer, authHandler)
	apiKeyHandler := handlers.NewAPIKeyHandler(db, authHandler)

	// Initialize Router
	r := chi.NewRouter()

	// Register Routes
	handlers.RegisterRoutes(r, cfg, authHandler, tripHandler, registrationHandler, apiKeyHandler)

	// Start Server
	log.Printf("Starting server on port %s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
