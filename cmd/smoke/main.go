// Command smoke exercises a running trialgate instance end to end: it issues a
// token, opens its session in the store, calls the authenticated API, logs out
// and checks gRPC health.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/config"
	"trialgate.org/internal/hookrpc"
	"trialgate.org/internal/ids"
)

func main() {
	log.SetFlags(0)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseDSN == "" {
		log.Fatal("TRIALGATE_PG_DSN is required to open a session")
	}
	baseURL := strings.TrimRight(envOr("TRIALGATE_SMOKE_BASE_URL", "http://localhost"+cfg.HTTPAddr), "/")
	grpcAddr := envOr("TRIALGATE_SMOKE_GRPC_ADDR", "localhost"+cfg.GRPCAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := auth.NewPGStore(db)
	issuer, err := auth.NewTokenIssuer(cfg.AuthSecret, cfg.TokenIssuer)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	token, user, err := issuer.Issue(auth.UserContext{
		ID:       "smoke-" + ids.New(),
		Email:    "smoke@trialgate.invalid",
		UserType: auth.VariantPhysician.String(),
	}, 5*time.Minute)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	if _, err := auth.NewSessionGuard(store).Start(ctx, user); err != nil {
		log.Fatalf("start session: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var me struct {
		User auth.UserContext `json:"user"`
	}
	expect(ctx, client, http.MethodGet, baseURL+"/v1/me", token, http.StatusOK, &me)
	if me.User.ID != user.ID {
		log.Fatalf("unexpected /v1/me user %q", me.User.ID)
	}
	expect(ctx, client, http.MethodPost, baseURL+"/v1/auth/logout", token, http.StatusOK, nil)
	expect(ctx, client, http.MethodGet, baseURL+"/v1/me", token, http.StatusUnauthorized, nil)

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial grpc %s: %v", grpcAddr, err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: hookrpc.ServiceName})
	if err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health status %v", resp.GetStatus())
	}

	fmt.Printf("trialgate smoke test passed: user=%s jti=%s\n", user.ID, user.TokenID)
}

func expect(ctx context.Context, client *http.Client, method, url, token string, want int, dst any) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		log.Fatalf("build %s %s: %v", method, url, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		log.Fatalf("%s %s: expected %d, got %d", method, url, want, resp.StatusCode)
	}
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
