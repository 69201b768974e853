package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RADAR_SERVER_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "RADAR_WEBHOOK_TOKEN"} {
		t.Setenv(k, "")
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != "http://localhost:8000" {
		t.Errorf("expected default server url, got %q", cfg.Server.URL)
	}
	if cfg.Mission.MaxIterations != 50 {
		t.Errorf("expected default max_iterations=50, got %d", cfg.Mission.MaxIterations)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("expected default max_concurrent=2, got %d", cfg.MaxConcurrent)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	t.Setenv("RADAR_SERVER_URL", "https://agent.example")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != "https://agent.example" {
		t.Errorf("expected env server url, got %q", cfg.Server.URL)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("expected env token, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != -100123 {
		t.Errorf("expected chat id -100123, got %d", cfg.Telegram.ChatID)
	}
}

func TestLoad_BadChatID(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric TELEGRAM_CHAT_ID")
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	original := &Config{
		DataDir:       "/tmp/test-data",
		LogLevel:      "debug",
		MaxConcurrent: 4,
	}
	original.Server.URL = "http://agent:8000"
	original.Server.TimeoutSeconds = 12
	original.Mission.MaxIterations = 80
	original.Mission.Headless = false
	original.Telegram.Token = "bot-token-456"
	original.Telegram.ChatID = 42
	original.Webhook.Addr = ":9000"

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file does not exist after Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("LogLevel mismatch: %v != %v", loaded.LogLevel, original.LogLevel)
	}
	if loaded.MaxConcurrent != original.MaxConcurrent {
		t.Errorf("MaxConcurrent mismatch: %v != %v", loaded.MaxConcurrent, original.MaxConcurrent)
	}
	if loaded.Server.URL != original.Server.URL {
		t.Errorf("Server.URL mismatch: %v != %v", loaded.Server.URL, original.Server.URL)
	}
	if loaded.Server.TimeoutSeconds != 12 {
		t.Errorf("Server.TimeoutSeconds mismatch: %v", loaded.Server.TimeoutSeconds)
	}
	if loaded.Mission.MaxIterations != 80 || loaded.Mission.Headless {
		t.Errorf("Mission mismatch: %+v", loaded.Mission)
	}
	if loaded.Telegram.Token != original.Telegram.Token {
		t.Errorf("Telegram.Token mismatch: %v != %v", loaded.Telegram.Token, original.Telegram.Token)
	}
	if loaded.Telegram.ChatID != 42 {
		t.Errorf("Telegram.ChatID mismatch: %v", loaded.Telegram.ChatID)
	}
	if loaded.Webhook.Addr != ":9000" {
		t.Errorf("Webhook.Addr mismatch: %v", loaded.Webhook.Addr)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be gone, stat err = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("saved config is not valid JSON: %v", err)
	}
}

func TestToMap(t *testing.T) {
	cfg := defaults()
	cfg.Server.URL = "http://agent:8000"
	cfg.Mission.MaxIterations = 120

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}
	server, ok := m["server"].(map[string]any)
	if !ok {
		t.Fatalf("expected server to be map, got %T", m["server"])
	}
	if server["url"] != "http://agent:8000" {
		t.Errorf("expected server.url=http://agent:8000, got %v", server["url"])
	}
	mission, ok := m["mission"].(map[string]any)
	if !ok {
		t.Fatalf("expected mission to be map, got %T", m["mission"])
	}
	// JSON numbers decode as float64
	if mission["max_iterations"] != float64(120) {
		t.Errorf("expected mission.max_iterations=120, got %v", mission["max_iterations"])
	}
}

func TestListValues_NoMask(t *testing.T) {
	cfg := defaults()
	cfg.Telegram.Token = "bot-secret-1234"
	cfg.Webhook.Token = "hook-secret-5678"

	flat, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["telegram.token"] != "bot-secret-1234" {
		t.Errorf("expected unmasked telegram.token, got %v", flat["telegram.token"])
	}
	if flat["webhook.token"] != "hook-secret-5678" {
		t.Errorf("expected unmasked webhook.token, got %v", flat["webhook.token"])
	}
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestListValues_WithMask(t *testing.T) {
	cfg := defaults()
	cfg.Telegram.Token = "bot-secret-1234"
	cfg.Webhook.Token = "hook-secret-5678"

	flat, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["telegram.token"] != "***1234" {
		t.Errorf("expected masked telegram.token=***1234, got %v", flat["telegram.token"])
	}
	if flat["webhook.token"] != "***5678" {
		t.Errorf("expected masked webhook.token=***5678, got %v", flat["webhook.token"])
	}
	if flat["server.url"] != "http://localhost:8000" {
		t.Errorf("expected server.url unmasked, got %v", flat["server.url"])
	}
}

func TestGetValue_ExistingKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	cfg := defaults()
	cfg.LogLevel = "warn"
	cfg.Server.URL = "http://agent:8000"
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "warn" {
		t.Errorf("expected log_level=warn, got %v", v)
	}

	v, err = GetValue(path, "server.url")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "http://agent:8000" {
		t.Errorf("expected server.url=http://agent:8000, got %v", v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if err.Error() != "unknown config key: nonexistent.key" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSetValue_String(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	cfg := defaults()
	cfg.Server.URL = "http://agent:8000"
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	// Other values should be preserved
	v, err = GetValue(path, "server.url")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "http://agent:8000" {
		t.Errorf("expected server.url preserved, got %v", v)
	}
}

func TestSetValue_Numeric(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	if err := SetValue(path, "max_concurrent", "8"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	v, err := GetValue(path, "max_concurrent")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != float64(8) {
		t.Errorf("expected max_concurrent=8, got %v (%T)", v, v)
	}
}

func TestSetValue_Boolean(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	if err := SetValue(path, "mission.headless", "false"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mission.Headless {
		t.Error("expected mission.headless=false after set")
	}
}

func TestSetValue_NestedKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	if err := SetValue(path, "mission.max_iterations", "120"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mission.MaxIterations != 120 {
		t.Errorf("expected mission.max_iterations=120, got %d", cfg.Mission.MaxIterations)
	}
}

func TestSetValue_NewNestedKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	if err := SetValue(path, "custom.section.key", "value"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	v, err := GetValue(path, "custom.section.key")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "value" {
		t.Errorf("expected custom.section.key=value, got %v", v)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestGetValue_NonexistentFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "fresh", "config.json")

	// Load writes defaults, so the key resolves
	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "info" {
		t.Errorf("expected default log_level=info, got %v", v)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.json")
	if err := Save(path, defaults()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	if cfg.TasksPath() != "/data/tasks.json" {
		t.Errorf("TasksPath = %q", cfg.TasksPath())
	}
	if cfg.PIDPath() != "/data/radar.pid" {
		t.Errorf("PIDPath = %q", cfg.PIDPath())
	}
}
