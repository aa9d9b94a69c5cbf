// Package main issues access tokens for calling the recall API during
// development, signed with the configured JWT secret.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/onnwee/recall/internal/auth"
	"github.com/onnwee/recall/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	subject := flag.String("sub", "", "user ID to issue the token for (required)")
	orgs := flag.String("orgs", "", "comma-separated organization IDs the caller belongs to")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: token -sub <user-id> [-orgs org-a,org-b] [-config file]")
		os.Exit(2)
	}

	cfg, errs := config.Load(*configPath)
	if cfg == nil || cfg.JWTSecret == "" {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	token, err := auth.NewJWTService(cfg.JWTSecret, cfg.JWTPreviousSecret).
		GenerateAccessToken(*subject, splitList(*orgs))
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
