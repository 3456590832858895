package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/projectgen/liya/pkg/token"
)

func main() {
	godotenv.Load()

	var issuer *token.Issuer
	apiKey := os.Getenv("LIVEKIT_API_KEY")
	apiSecret := os.Getenv("LIVEKIT_API_SECRET")
	if apiKey != "" && apiSecret != "" {
		var err error
		issuer, err = token.NewIssuer(apiKey, apiSecret)
		if err != nil {
			log.Fatalf("[Token] Failed to create issuer: %v", err)
		}
	} else {
		log.Printf("[Token] Credentials not configured, token requests will fail")
	}

	h := token.NewHandler(issuer)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/", h.HandleIndex)
	r.Get("/getToken", h.HandleGetToken)
	r.Get("/health", h.HandleHealth)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5001"
	}

	log.Printf("[Token] Listening on :%s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("[Token] Server failed: %v", err)
	}
}
