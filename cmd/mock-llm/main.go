// Mock-llm is a deterministic generation backend for local development.
// It speaks the OpenAI chat completions API over HTTP and the Generate
// call over gRPC.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/bbp-discovery/internal/generation"
)

func main() {
	httpAddr := flag.String("http", ":11434", "HTTP listen address (empty disables)")
	grpcAddr := flag.String("grpc", ":50051", "gRPC listen address (empty disables)")
	delay := flag.Duration("delay", 0, "artificial latency per call")
	failEach := flag.Int("fail-every", 0, "fail every Nth call (0 never)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &responder{delay: *delay, failEach: *failEach}
	errCh := make(chan error, 2)

	var httpSrv *http.Server
	if *httpAddr != "" {
		httpSrv = &http.Server{
			Addr:              *httpAddr,
			Handler:           newRouter(r),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Mock LLM HTTP listening", "addr", *httpAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var grpcSrv *grpc.Server
	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			slog.Error("Failed to listen", "addr", *grpcAddr, "error", err)
			os.Exit(1)
		}
		grpcSrv = newGRPCServer(r)
		go func() {
			slog.Info("Mock LLM gRPC listening", "addr", *grpcAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-errCh:
		slog.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
}

func newGRPCServer(g generation.Generator) *grpc.Server {
	srv := grpc.NewServer()
	generation.RegisterGeneratorServer(srv, generation.Serve(g))
	hs := health.NewServer()
	hs.SetServingStatus(generation.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

func newRouter(g generation.Generator) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	completions := func(w http.ResponseWriter, req *http.Request) {
		var body chatRequest
		if err := json.NewDecoder(io.LimitReader(req.Body, 1<<22)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"message": err.Error()}})
			return
		}
		var prompt string
		for _, m := range body.Messages {
			if m.Role == "user" {
				prompt = m.Content
			}
		}

		text, err := g.Generate(req.Context(), prompt)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]string{"message": err.Error()}})
			return
		}
		_, rule := respond(prompt)
		slog.Info("Completion served", "model", body.Model, "rule", rule, "prompt_chars", len(prompt))

		choice := chatChoice{FinishReason: "stop"}
		choice.Message.Role = "assistant"
		choice.Message.Content = text
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "mock-" + chiMiddleware.GetReqID(req.Context()),
			"object":  "chat.completion",
			"model":   body.Model,
			"choices": []chatChoice{choice},
		})
	}
	r.Post("/v1/chat/completions", completions)
	r.Post("/chat/completions", completions)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
