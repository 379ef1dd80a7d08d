package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docflow/internal/testsupport"
	"docflow/internal/transaction"
)

func submitViaCLI(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	payloadPath := filepath.Join(env.baseDir, "payload.json")
	testsupport.WriteJSON(t, payloadPath, map[string]any{"customer": "acme", "deal_value": 250000})

	out, _, err := runCLI(t, []string{"submit", payloadPath, "--type", "letter_of_intent", "--priority", "high"}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "admitted")
	fields := strings.Fields(out)
	if len(fields) < 2 {
		t.Fatalf("unexpected submit output %q", out)
	}
	return fields[1]
}

func TestSubmitShowAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	id := submitViaCLI(t, env)
	waitForStage(t, env, id, transaction.StageSignatureRequested)

	out, _, err := runCLI(t, []string{"show", id}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "Signature Requested")
	requireContains(t, out, "Stage history")
	requireContains(t, out, "doc-cli")

	out, _, err = runCLI(t, []string{"list", "--status", "waiting_signature"}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "Letter Of Intent")
}

func TestCancelParkedTransactionFails(t *testing.T) {
	env := setupCLITestEnv(t)
	id := submitViaCLI(t, env)
	waitForStage(t, env, id, transaction.StageSignatureRequested)

	_, _, err := runCLI(t, []string{"cancel", id}, env.apiAddr, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected conflict when cancelling a parked transaction, got %v", err)
	}
}

func TestStatusRendersSections(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, section := range []string{"== Engine ==", "== Queue ==", "== Metrics ==", "== Handlers ==", "== Preflight =="} {
		requireContains(t, out, section)
	}
	requireContains(t, out, "[OK] running")
	requireContains(t, out, "Data directory")
}

func TestSubmitRejectsInvalidPriority(t *testing.T) {
	env := setupCLITestEnv(t)
	payloadPath := filepath.Join(env.baseDir, "payload.json")
	testsupport.WriteJSON(t, payloadPath, map[string]any{"customer": "acme"})

	_, _, err := runCLI(t, []string{"submit", payloadPath, "--priority", "whenever"}, env.apiAddr, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid priority") {
		t.Fatalf("expected invalid priority error, got %v", err)
	}
}

func TestCommandsReportUnreachableDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	_, _, err := runCLI(t, []string{"status"}, "127.0.0.1:1", configPath)
	if err == nil || !strings.Contains(err.Error(), "connect to daemon") {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestJournalStatsAndPrune(t *testing.T) {
	env := setupCLITestEnv(t)
	submitViaCLI(t, env)

	out, _, err := runCLI(t, []string{"journal", "stats"}, "", env.configPath)
	if err != nil {
		t.Fatalf("journal stats: %v", err)
	}
	requireContains(t, out, env.cfg.JournalPath())

	out, _, err = runCLI(t, []string{"journal", "prune", "--older-than", "1h"}, "", env.configPath)
	if err != nil {
		t.Fatalf("journal prune: %v", err)
	}
	requireContains(t, out, "Pruned 0 transaction(s)")
}

func TestConfigInitAndValidate(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	t.Setenv("HOME", tmp)
	out, _, err = runCLI(t, []string{"config", "validate"}, "", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"signature_requested": "Signature Requested",
		"letter_of_intent":    "Letter Of Intent",
		"":                    "-",
	}
	for in, want := range cases {
		if got := humanize(in); got != want {
			t.Errorf("humanize(%q) = %q, want %q", in, got, want)
		}
	}
}
