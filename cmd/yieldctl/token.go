package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"yieldsplit/crypto"
	"yieldsplit/services/yieldd/auth"
	yielddconfig "yieldsplit/services/yieldd/config"
)

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	cfgPath := fs.String("config", "services/yieldd/config.yaml", "Path to the yieldd configuration")
	subject := fs.String("subject", "", "Account address the token signs for")
	keystore := fs.String("keystore", "", "Read the subject from this keystore instead")
	scopes := fs.String("scope", "", "Comma separated scopes to grant")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := yielddconfig.Load(*cfgPath)
	if err != nil {
		return err
	}
	var addr crypto.Address
	switch {
	case *keystore != "":
		addr, err = crypto.KeystoreAddress(*keystore)
	case *subject != "":
		addr, err = crypto.DecodeAddress(*subject)
	default:
		err = fmt.Errorf("one of -subject or -keystore is required")
	}
	if err != nil {
		return err
	}

	token, err := auth.Issue(auth.Config{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	}, addr, splitList(*scopes), *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
