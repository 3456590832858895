package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/projectgen/liya/pkg/assistant"
	"github.com/projectgen/liya/pkg/feedback"
	"github.com/projectgen/liya/pkg/room"
	"github.com/projectgen/liya/pkg/session"
	"github.com/projectgen/liya/pkg/trace"
)

// sessionLauncher starts one coordinator per negotiated room.
type sessionLauncher struct {
	speechCfg session.SpeechConfig
	submitter *feedback.Submitter
	server    *room.Server
}

func (l *sessionLauncher) OnRoomCreated(ctx context.Context, rm room.Room) {
	log.Printf("[Agent] Room created: %s", rm.ID())

	coord := session.NewCoordinator(session.Config{
		Room:      rm,
		Submitter: l.submitter,
		NewSpeech: func(a *assistant.Assistant) (session.Speech, error) {
			return session.NewSpeech(l.speechCfg, rm, a)
		},
	})

	go func() {
		if err := coord.Run(ctx); err != nil {
			log.Printf("[Agent] Session %s ended with error: %v", rm.ID(), err)
		} else {
			log.Printf("[Agent] Session %s ended", rm.ID())
		}
		if err := rm.Close(); err != nil {
			log.Printf("[Agent] Failed to close room %s: %v", rm.ID(), err)
		}
		l.server.RemoveRoom(rm.ID())
	}()
}

func (l *sessionLauncher) OnRoomError(ctx context.Context, roomID string, err error) {
	log.Printf("[Agent] Room %s error: %v", roomID, err)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Agent] Invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func main() {
	godotenv.Load()

	ctx := context.Background()
	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Fatalf("[Agent] Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Agent] Trace shutdown failed: %v", err)
		}
	}()

	speechCfg := session.SpeechConfig{
		Backend:   getEnv("LLM_BACKEND", "gemini"),
		OpenAIKey: os.Getenv("OPENAI_API_KEY"),
		GoogleKey: os.Getenv("GOOGLE_API_KEY"),
		Model:     os.Getenv("LLM_MODEL"),
		Voice:     os.Getenv("TTS_VOICE"),
		Language:  os.Getenv("STT_LANGUAGE"),
	}
	if speechCfg.OpenAIKey == "" {
		log.Fatal("[Agent] OPENAI_API_KEY is required")
	}
	if speechCfg.Backend == "gemini" && speechCfg.GoogleKey == "" {
		log.Fatal("[Agent] GOOGLE_API_KEY is required for the gemini backend")
	}

	webhookURL := os.Getenv("FEEDBACK_WEBHOOK_URL")
	if webhookURL == "" {
		log.Printf("[Agent] FEEDBACK_WEBHOOK_URL not set, evaluations will not be delivered")
	}
	submitter := feedback.NewSubmitter(webhookURL, 0)

	launcher := &sessionLauncher{
		speechCfg: speechCfg,
		submitter: submitter,
	}
	rtcServer := room.NewServer(&room.ServerConfig{
		RTCUDPPort: getEnvInt("RTC_UDP_PORT", 9000),
	}, launcher)
	launcher.server = rtcServer

	if err := rtcServer.Start(); err != nil {
		log.Fatalf("[Agent] Failed to start RTC server: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/session", rtcServer.HandleNegotiate)
	r.Options("/session", rtcServer.HandleNegotiate)
	r.Get("/ws", rtcServer.HandleWebSocket)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := ":" + getEnv("PORT", "8080")
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Printf("[Agent] Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Agent] Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[Agent] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Agent] Shutdown error: %v", err)
	}
}
