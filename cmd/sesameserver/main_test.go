package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/auth"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sesame/internal/preferences"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

const testJWTSecret = "test-secret-that-is-at-least-32-characters"

// writeTestConfig writes a valid configuration with a temporary database
// and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `
database:
  path: "` + filepath.Join(dir, "sesame.db") + `"
  wal_mode: true
logging:
  output: "stderr"
  level: "error"
security:
  jwt:
    secret: "` + testJWTSecret + `"
    issuer: "test-issuer"
    access_token_ttl: 15
sesame:
  uuid: "4f7b2c1e-9a3d-4e58-b6a1-2c0d8e9f1a37"
  triggers:
    - name: "hall"
      address: "c0:11:22:33:44:01"
    - name: "shed"
      address: "c0:11:22:33:44:03"
      lock:
        id: "shed-lock"
  automations:
    - name: "hall-opens-shed"
      trigger: "hall"
      on: "unlock"
      actions:
        - lock: "shed-lock"
          state: "unlocked"
`
	path := filepath.Join(dir, "sesame.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ─── Environment ───────────────────────────────────────────────────

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := loadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
			t.Errorf("loadDotEnv() error = %v", err)
		}
	})

	t.Run("empty path is ignored", func(t *testing.T) {
		if err := loadDotEnv(""); err != nil {
			t.Errorf("loadDotEnv() error = %v", err)
		}
	})

	t.Run("loads variables and keeps existing ones", func(t *testing.T) {
		const fresh, existing = "SESAME_DOTENV_TEST_FRESH", "SESAME_DOTENV_TEST_EXISTING"
		t.Setenv(existing, "from-env")
		t.Cleanup(func() { os.Unsetenv(fresh) }) //nolint:errcheck // test cleanup

		path := filepath.Join(t.TempDir(), ".env")
		data := fresh + "=from-file\n" + existing + "=from-file\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		if err := loadDotEnv(path); err != nil {
			t.Fatalf("loadDotEnv() error = %v", err)
		}
		if got := os.Getenv(fresh); got != "from-file" {
			t.Errorf("%s = %q, want from-file", fresh, got)
		}
		if got := os.Getenv(existing); got != "from-env" {
			t.Errorf("%s = %q, want from-env", existing, got)
		}
	})
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"default", "", "", defaultConfigPath},
		{"environment", "", "/etc/sesame/env.yaml", "/etc/sesame/env.yaml"},
		{"flag wins", "/tmp/flag.yaml", "/etc/sesame/env.yaml", "/tmp/flag.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SESAME_CONFIG", tt.env)
			opts := &options{configPath: tt.flag}
			if got := opts.resolveConfigPath(); got != tt.want {
				t.Errorf("resolveConfigPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── Commands ──────────────────────────────────────────────────────

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("version output %q does not contain %q", out, version)
	}
}

func TestCheckConfigCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "check-config", "--config", path)
	if err != nil {
		t.Fatalf("check-config error = %v", err)
	}
	for _, want := range []string{path + ": ok", "hall", "c0:11:22:33:44:01", "shared", "shed-lock", "bound", "automations: 1", "hall-opens-shed: on unlock of hall"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckConfigCommand_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("sesame:\n  max_sessions: 12\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "check-config", "--config", path)
	if err == nil {
		t.Fatal("check-config accepted an invalid configuration")
	}
	if !strings.Contains(err.Error(), "max_sessions") {
		t.Errorf("error = %v, want it to name max_sessions", err)
	}
}

func TestCheckConfigCommand_BadAutomation(t *testing.T) {
	path := writeTestConfig(t)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data = []byte(strings.Replace(string(data), `trigger: "hall"`, `trigger: "gate"`, 1))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = execute(t, "check-config", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "unknown trigger") {
		t.Errorf("check-config error = %v, want unknown trigger", err)
	}
}

func TestCheckConfigCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "check-config", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("check-config accepted a missing file")
	}
}

func TestTokenCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "token", "--config", path, "--subject", "ops", "--role", "admin")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out), testJWTSecret, "test-issuer")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %s/%s, want ops/admin", claims.Subject, claims.Role)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != 15*time.Minute {
		t.Errorf("ttl = %v, want configured 15m", ttl)
	}
}

func TestTokenCommand_Validation(t *testing.T) {
	path := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing subject", []string{"token", "--config", path}},
		{"unknown role", []string{"token", "--config", path, "--subject", "ops", "--role", "root"}},
		{"invalid subject", []string{"token", "--config", path, "--subject", "has space"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("token succeeded, want error")
			}
		})
	}
}

func TestResetCommand(t *testing.T) {
	path := writeTestConfig(t)

	if _, err := execute(t, "reset", "--config", path); !errors.Is(err, errNotConfirmed) {
		t.Fatalf("reset without --yes error = %v, want errNotConfirmed", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Store a secret as a paired server would.
	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	secret, err := sesame.ParseSecret(strings.Repeat("ab", 16))
	if err != nil {
		t.Fatal(err)
	}
	if err := preferences.NewStore(db).Save(ctx, secret); err != nil {
		t.Fatal(err)
	}
	db.Close() //nolint:errcheck // reopened below

	out, err := execute(t, "reset", "--config", path, "--yes")
	if err != nil {
		t.Fatalf("reset error = %v", err)
	}
	if !strings.Contains(out, "erased") {
		t.Errorf("reset output = %q", out)
	}

	db, err = database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if _, found, err := preferences.NewStore(db).Load(ctx); err != nil || found {
		t.Errorf("Load() found = %v, err = %v; want secret erased", found, err)
	}

	logs, err := audit.NewSQLiteRepository(db.DB).List(ctx, audit.Filter{Action: audit.ActionReset})
	if err != nil {
		t.Fatal(err)
	}
	if logs.Total != 1 || logs.Logs[0].Source != audit.SourceCLI {
		t.Errorf("reset audit logs = %+v, want one cli entry", logs.Logs)
	}
}

// ─── Wiring ────────────────────────────────────────────────────────

func TestTriggerConfig(t *testing.T) {
	noTag := false
	tests := []struct {
		name      string
		in        config.TriggerConfig
		wantLock  *sesame.LockEntity
		wantTag   bool
		wantError bool
	}{
		{
			name:    "shared",
			in:      config.TriggerConfig{Name: "hall", Address: "c0:11:22:33:44:01"},
			wantTag: true,
		},
		{
			name:     "bound defaults to unlocked",
			in:       config.TriggerConfig{Name: "shed", Address: "c0:11:22:33:44:03", Lock: &config.LockConfig{ID: "shed"}},
			wantLock: &sesame.LockEntity{ID: "shed", State: sesame.LockUnlocked},
			wantTag:  true,
		},
		{
			name: "bound with initial state",
			in: config.TriggerConfig{Name: "gate", Address: "c0:11:22:33:44:04",
				Lock: &config.LockConfig{ID: "gate", Name: "Gate", InitialState: "locked"}, PublishHistoryTag: &noTag},
			wantLock: &sesame.LockEntity{ID: "gate", Name: "Gate", State: sesame.LockLocked},
		},
		{
			name:      "bad address",
			in:        config.TriggerConfig{Name: "bad", Address: "nope"},
			wantError: true,
		},
		{
			name: "bad lock state",
			in: config.TriggerConfig{Name: "bad", Address: "c0:11:22:33:44:05",
				Lock: &config.LockConfig{ID: "bad", InitialState: "ajar"}},
			wantError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := triggerConfig(tt.in)
			if tt.wantError {
				if err == nil {
					t.Fatal("triggerConfig() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("triggerConfig() error = %v", err)
			}
			if got.Name != tt.in.Name || got.Address.IsZero() {
				t.Errorf("trigger = %+v", got)
			}
			if got.PublishHistoryTag != tt.wantTag {
				t.Errorf("PublishHistoryTag = %v, want %v", got.PublishHistoryTag, tt.wantTag)
			}
			switch {
			case tt.wantLock == nil && got.Lock != nil:
				t.Errorf("Lock = %+v, want nil", got.Lock)
			case tt.wantLock != nil && (got.Lock == nil || *got.Lock != *tt.wantLock):
				t.Errorf("Lock = %+v, want %+v", got.Lock, tt.wantLock)
			}
		})
	}
}

func TestRestarter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &restarter{cancel: cancel}

	if r.requested() {
		t.Fatal("requested before Restart")
	}
	r.Restart()
	if !r.requested() {
		t.Error("requested = false after Restart")
	}
	if ctx.Err() == nil {
		t.Error("context not cancelled by Restart")
	}
}
