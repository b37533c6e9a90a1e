package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "pmx dev") {
		t.Errorf("expected output to contain 'pmx dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "pmx 1.0.0") {
		t.Errorf("expected output to contain 'pmx 1.0.0', got: %s", out)
	}
	if !strings.Contains(out, "built: 2026-01-01") {
		t.Errorf("expected output to contain 'built: 2026-01-01', got: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Panoramix") {
		t.Errorf("expected help output to contain 'Panoramix', got: %s", out)
	}
	for _, sub := range []string{"negotiation", "endpoint", "message", "proof", "serve"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help output to list %q subcommand, got: %s", sub, out)
		}
	}
}

func TestParseBoxRef(t *testing.T) {
	tests := []struct {
		in      string
		ep, box string
		wantErr bool
	}{
		{in: "mix-1/outbox", ep: "mix-1", box: "OUTBOX"},
		{in: "a/b/INBOX", ep: "a/b", box: "INBOX"},
		{in: "mix-1", wantErr: true},
		{in: "/inbox", wantErr: true},
		{in: "mix-1/", wantErr: true},
		{in: "mix-1/spam", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ep, box, err := parseBoxRef(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseBoxRef(%q) = %s, %s; want error", tt.in, ep, box)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBoxRef(%q): %v", tt.in, err)
			}
			if ep != tt.ep || string(box) != tt.box {
				t.Errorf("parseBoxRef(%q) = %s, %s; want %s, %s", tt.in, ep, box, tt.ep, tt.box)
			}
		})
	}
}

// execArgs runs the root command with args and returns its output.
func execArgs(args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execArgs(args...)
	if err != nil {
		t.Fatalf("pmx %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// field returns the rest of the first output line starting with prefix.
func field(t *testing.T, out, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	t.Fatalf("no line starting with %q in:\n%s", prefix, out)
	return ""
}

// ratifyStatus proposes a status change and signs it with the local key,
// which is the only required signer for an ownerless peer.
func ratifyStatus(t *testing.T, cfg, flag, subject, status string) {
	t.Helper()
	out := run(t, "neg", "propose", "-c", cfg, flag, subject, "--status", status)
	negID := field(t, out, "Opened negotiation ")
	text := field(t, out, "Text: ")
	out = run(t, "neg", "sign", negID, "-c", cfg, "--text", text)
	if !strings.Contains(out, "Consensus ") {
		t.Fatalf("expected consensus after signing, got:\n%s", out)
	}
}

func TestEndToEnd_SQLite(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "alice.key")
	cfg := filepath.Join(dir, "panoramix.yaml")

	out := run(t, "keys", "generate", "-o", keyFile, "--id", "alice")
	pub := field(t, out, "Public key: ")

	yaml := fmt.Sprintf(`peer_id: alice
database:
  driver: sqlite
  path: %s
crypto:
  key_file: %s
proofs:
  disabled: true
`, filepath.Join(dir, "panoramix.db"), keyFile)
	if err := os.WriteFile(cfg, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	run(t, "db", "init", "-c", cfg)
	run(t, "peer", "register", "-c", cfg, "--key", pub, "--id", "alice", "--name", "Alice")

	ratifyStatus(t, cfg, "--peer", "alice", "ready")
	out = run(t, "peer", "show", "alice", "-c", cfg)
	if got := field(t, out, "Status:"); got != "READY" {
		t.Fatalf("peer status = %q, want READY", got)
	}

	run(t, "endpoint", "create", "-c", cfg, "--id", "box-1", "--size-max", "2")
	if _, err := execArgs("message", "send", "box-1", "-c", cfg, "--text", "too early"); err == nil {
		t.Fatal("expected a pending endpoint to refuse traffic")
	}

	ratifyStatus(t, cfg, "--endpoint", "box-1", "open")
	out = run(t, "proof", "verify", "box-1", "-c", cfg)
	if !strings.Contains(out, "is valid") {
		t.Fatalf("expected the ratified opening to issue a proof, got:\n%s", out)
	}

	run(t, "message", "send", "box-1", "-c", cfg, "--text", "hello")
	out = run(t, "message", "send", "box-1", "-c", cfg, "--text", "world", "--serial", "2")
	if !strings.Contains(out, "serial 2") {
		t.Errorf("expected serial 2, got:\n%s", out)
	}
	if _, err := execArgs("message", "send", "box-1", "-c", cfg, "--text", "overflow"); err == nil {
		t.Error("expected size_max to refuse a third message")
	}

	out = run(t, "proof", "verify", "box-1", "-c", cfg)
	if !strings.Contains(out, "accepted after it was issued") {
		t.Errorf("expected a stale proof notice, got:\n%s", out)
	}
	run(t, "proof", "refresh", "box-1", "-c", cfg)
	out = run(t, "proof", "verify", "box-1", "-c", cfg)
	if strings.Contains(out, "accepted after it was issued") {
		t.Errorf("expected a current proof after refresh, got:\n%s", out)
	}

	out = run(t, "endpoint", "verify", "box-1", "-c", cfg)
	if !strings.Contains(out, "INBOX: ok (2 messages") {
		t.Errorf("unexpected verify output:\n%s", out)
	}
	out = run(t, "endpoint", "show", "box-1", "-c", cfg)
	if got := field(t, out, "Status:"); got != "OPEN" {
		t.Errorf("endpoint status = %q, want OPEN", got)
	}
	out = run(t, "message", "list", "box-1", "-c", cfg)
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("expected both messages listed, got:\n%s", out)
	}
}
