package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"engage-notify/internal/handler/http/auth"
)

// runToken implements "api token": it signs a token with JWT_SECRET and
// writes it to w.
func runToken(args []string, w io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(w)
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	fs.StringVar(&subject, "sub", "", "Token subject, e.g. an operator or service name")
	fs.StringVar(&role, "role", auth.RoleViewer, "Role: admin, viewer or publisher")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if subject == "" {
		return errors.New("-sub is required")
	}
	if ttl <= 0 {
		return errors.New("-ttl must be positive")
	}

	secret := os.Getenv("JWT_SECRET")
	if err := validateJWTSecret(secret); err != nil {
		return err
	}
	tok, err := auth.IssueToken([]byte(secret), subject, role, ttl, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, tok)
	return err
}
