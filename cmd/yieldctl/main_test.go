package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"yieldsplit/crypto"
	"yieldsplit/services/yieldd/auth"
	"yieldsplit/services/yieldd/storage"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run([]string{"bogus"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if err := run(nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error without a command")
	}
}

func TestKeygenAndAddress(t *testing.T) {
	t.Setenv(defaultPassEnv, "correct horse")
	path := filepath.Join(t.TempDir(), "user.keystore")

	var out bytes.Buffer
	if err := run([]string{"keygen", "-out", path}, &out); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	generated := strings.TrimSpace(out.String())
	if !strings.HasPrefix(generated, "ys") {
		t.Fatalf("unexpected address %q", generated)
	}

	if err := run([]string{"keygen", "-out", path}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected refusal to overwrite keystore")
	}

	out.Reset()
	if err := run([]string{"address", "-keystore", path}, &out); err != nil {
		t.Fatalf("address: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != generated {
		t.Fatalf("address mismatch: %s != %s", got, generated)
	}
}

func TestTokenVerifies(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	cfgPath := filepath.Join(t.TempDir(), "yieldd.yaml")
	contents := fmt.Sprintf("auth:\n  hmac_secret: %q\n  issuer: yieldd\n", secret)
	if err := os.WriteFile(cfgPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	addr := crypto.MustNewAddress(crypto.AccountPrefix, fill(0x07)).String()

	var out bytes.Buffer
	if err := run([]string{"token", "-config", cfgPath, "-subject", addr, "-scope", "admin", "-ttl", "5m"}, &out); err != nil {
		t.Fatalf("token: %v", err)
	}
	authn, err := auth.NewAuthenticator(auth.Config{HMACSecret: secret, Issuer: "yieldd", ClockSkew: time.Minute}, nil)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	principal, err := authn.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.Address.String() != addr || !principal.HasScope(auth.ScopeAdmin) {
		t.Fatalf("unexpected principal %+v", principal)
	}
}

func TestSimulateReportsClaims(t *testing.T) {
	var out bytes.Buffer
	err := simulate(context.Background(), &out, simOptions{Assets: 1_000, Step: 100 * time.Second, Steps: 2})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	scanner := bufio.NewScanner(&out)
	var steps []simStep
	for scanner.Scan() {
		var step simStep
		if err := json.Unmarshal(scanner.Bytes(), &step); err != nil {
			t.Fatalf("decode step: %v", err)
		}
		steps = append(steps, step)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Elapsed != 100 || steps[0].Claimed != "10" {
		t.Fatalf("unexpected first step %+v", steps[0])
	}
	if steps[1].Rate.String() != "1020000" {
		t.Fatalf("unexpected rate %s", steps[1].Rate)
	}
}

func TestExportJournal(t *testing.T) {
	journal, err := storage.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer journal.Close()

	out := filepath.Join(t.TempDir(), "events.csv")
	var buf bytes.Buffer
	if err := exportJournal(context.Background(), journal, "csv", out, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), "exported 0 events") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if err := exportJournal(context.Background(), journal, "xml", out, &buf); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
