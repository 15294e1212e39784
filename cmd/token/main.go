// Command token mints a bearer token for the billing API using the same
// JWT settings the server loads.
//
//	token -subject 99988526423 -role subscriber -ttl 24h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"telephone-billing/internal/auth"
	"telephone-billing/internal/config"
	"telephone-billing/internal/rbac"
	"telephone-billing/pkg/logger"
)

func main() {
	subject := flag.String("subject", "", "token subject (carrier name, operator, or the subscriber's phone number)")
	role := flag.String("role", rbac.RoleCarrier, "one of: "+strings.Join(rbac.Roles, ", "))
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to JWT_TTL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env, cfg.App.LogLevel)

	if !rbac.IsKnown(*role) {
		log.Error("unknown role", "role", *role)
		os.Exit(2)
	}
	if *subject == "" {
		log.Error("subject is required")
		os.Exit(2)
	}
	if *ttl > 0 {
		cfg.Auth.AccessTokenTTL = *ttl
	}

	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	tok, err := m.Issue(time.Now(), *subject, *role)
	if err != nil {
		log.Error("issue failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
