package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validBase() Config {
	cfg := *Default()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "valid sqlite backend",
			mutate: func(c *Config) {
				c.DataBackend = "sqlite"
				c.SQLiteDBPath = filepath.Join(tmp, "nested", "budget.db")
			},
			wantErr: false,
		},
		{
			name:        "invalid port - not a number",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "invalid request timeout",
			mutate:      func(c *Config) { c.RequestTimeout = 10 * time.Millisecond },
			wantErr:     true,
			errorString: "invalid request timeout",
		},
		{
			name:        "reconcile interval too short",
			mutate:      func(c *Config) { c.ReconcileInterval = 5 * time.Second },
			wantErr:     true,
			errorString: "invalid reconcile interval 5s",
		},
		{
			name:    "reconcile disabled",
			mutate:  func(c *Config) { c.ReconcileInterval = 0 },
			wantErr: false,
		},
		{
			name:        "invalid backend",
			mutate:      func(c *Config) { c.DataBackend = "postgres" },
			wantErr:     true,
			errorString: "invalid data backend 'postgres'",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.DataBackend = "sqlite"
				c.SQLiteDBPath = ""
			},
			wantErr:     true,
			errorString: "SQLite database path cannot be empty when using sqlite backend",
		},
		{
			name:        "invalid AMQP URL scheme",
			mutate:      func(c *Config) { c.AMQPURL = "http://localhost:5672/" },
			wantErr:     true,
			errorString: "invalid AMQP URL scheme 'http': must be 'amqp' or 'amqps'",
		},
		{
			name: "AMQP URL without queue",
			mutate: func(c *Config) {
				c.AMQPURL = "amqp://localhost:5672/"
				c.AMQPQueue = ""
			},
			wantErr:     true,
			errorString: "AMQP queue name cannot be empty when AMQP URL is provided",
		},
		{
			name: "sheets backend missing spreadsheet ID",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.GoogleServiceAccountJSON = "{}"
			},
			wantErr:     true,
			errorString: "Google Spreadsheet ID is required when using sheets backend",
		},
		{
			name: "sheets backend with OAuth client but no token",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.GoogleSpreadsheetID = "sheet-123"
				c.GoogleOAuthClientJSON = "{}"
			},
			wantErr:     true,
			errorString: "Google credentials missing",
		},
		{
			name: "sheets backend with service account",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.GoogleSpreadsheetID = "sheet-123"
				c.GoogleServiceAccountJSON = "{}"
			},
			wantErr: false,
		},
		{
			name: "sheets backend with missing credential file",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.GoogleSpreadsheetID = "sheet-123"
				c.GoogleServiceAccountFile = "/non/existent/sa.json"
			},
			wantErr:     true,
			errorString: "Google service account file does not exist",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.LogLevel = "loud" },
			wantErr:     true,
			errorString: "invalid log level 'loud'",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.LogFormat = "xml" },
			wantErr:     true,
			errorString: "invalid log format 'xml'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Config.Validate() error = nil, wantErr %v", tt.wantErr)
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Config.Validate() error = %v, want error containing %v", err.Error(), tt.errorString)
				}
			} else if err != nil {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validBase()
	cfg.Port = "x"
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := strings.Count(err.Error(), "\n- "); got != 2 {
		t.Errorf("expected 2 listed problems, got %d: %v", got, err)
	}
}

func TestConfig_ValidateSheetsWithFiles(t *testing.T) {
	tmpDir := t.TempDir()
	clientFile := filepath.Join(tmpDir, "client.json")
	tokenFile := filepath.Join(tmpDir, "token.json")
	if err := os.WriteFile(clientFile, []byte(`{"installed":{}}`), 0644); err != nil {
		t.Fatalf("Failed to create test client file: %v", err)
	}
	if err := os.WriteFile(tokenFile, []byte(`{"access_token":"test"}`), 0644); err != nil {
		t.Fatalf("Failed to create test token file: %v", err)
	}

	cfg := validBase()
	cfg.GoogleSpreadsheetID = "sheet-123"
	cfg.GoogleOAuthClientFile = clientFile
	cfg.GoogleOAuthTokenFile = tokenFile

	if err := cfg.ValidateSheets(); err != nil {
		t.Fatalf("ValidateSheets() error = %v", err)
	}

	cfg.GoogleOAuthTokenFile = filepath.Join(tmpDir, "missing.json")
	if err := cfg.ValidateSheets(); err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestLoad(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, "")
		t.Setenv("PORT", "")
		t.Setenv("DATA_BACKEND", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "8081" {
			t.Errorf("Load() Port = %v, want 8081", cfg.Port)
		}
		if cfg.DataBackend != "memory" {
			t.Errorf("Load() DataBackend = %v, want memory", cfg.DataBackend)
		}
		if cfg.LedgerSheetName != "New Budget Format" || cfg.SettingsSheetName != "POS" || cfg.SettingsRange != "B3:D3" {
			t.Errorf("Load() sheet defaults = %q %q %q", cfg.LedgerSheetName, cfg.SettingsSheetName, cfg.SettingsRange)
		}
		if cfg.RequestTimeout != 15*time.Second {
			t.Errorf("Load() RequestTimeout = %v, want 15s", cfg.RequestTimeout)
		}
	})

	t.Run("environment variables", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, "")
		t.Setenv("PORT", "9090")
		t.Setenv("DATA_BACKEND", "sqlite")
		t.Setenv("SQLITE_DB_PATH", "/tmp/test.db")
		t.Setenv("REQUEST_TIMEOUT", "20s")
		t.Setenv("SETTINGS_RANGE", "C4:E4")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "9090" || cfg.DataBackend != "sqlite" || cfg.SQLiteDBPath != "/tmp/test.db" {
			t.Errorf("Load() = %+v", cfg)
		}
		if cfg.RequestTimeout != 20*time.Second {
			t.Errorf("Load() RequestTimeout = %v, want 20s", cfg.RequestTimeout)
		}
		if cfg.SettingsRange != "C4:E4" {
			t.Errorf("Load() SettingsRange = %v, want C4:E4", cfg.SettingsRange)
		}
	})

	t.Run("application credentials fallback", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, "")
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/sa.json")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.GoogleServiceAccountFile != "/etc/sa.json" {
			t.Errorf("GoogleServiceAccountFile = %q", cfg.GoogleServiceAccountFile)
		}
	})

	t.Run("toml file overlaid by env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "budget.toml")
		content := `
port = "7000"
data_backend = "sheets"
google_spreadsheet_id = "from-file"
ledger_sheet_name = "Ledger"
request_timeout = "45s"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(ConfigFileEnv, path)
		t.Setenv("PORT", "7100")
		t.Setenv("DATA_BACKEND", "")
		t.Setenv("LEDGER_SHEET_NAME", "")
		t.Setenv("GOOGLE_SPREADSHEET_ID", "")
		t.Setenv("REQUEST_TIMEOUT", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "7100" {
			t.Errorf("env should win over file, Port = %v", cfg.Port)
		}
		if cfg.DataBackend != "sheets" || cfg.GoogleSpreadsheetID != "from-file" || cfg.LedgerSheetName != "Ledger" {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if cfg.RequestTimeout != 45*time.Second {
			t.Errorf("RequestTimeout = %v, want 45s", cfg.RequestTimeout)
		}
		if cfg.SettingsSheetName != "POS" {
			t.Errorf("unset file keys keep defaults, SettingsSheetName = %v", cfg.SettingsSheetName)
		}
	})

	t.Run("unreadable toml file", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.toml"))
		if _, err := Load(); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})

	t.Run("malformed toml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		if err := os.WriteFile(path, []byte("port = "), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(ConfigFileEnv, path)
		if _, err := Load(); err == nil {
			t.Fatal("expected parse error")
		}
	})
}
