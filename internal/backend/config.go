package backend

import (
	"fmt"
	"os"

	"budget/internal/config"
	gsheet "budget/internal/sheets/google"
)

// SheetsOptions builds the Sheets client options from the application
// config. Inline JSON wins over the matching file path.
func SheetsOptions(cfg *config.Config) (gsheet.Options, error) {
	if cfg == nil {
		return gsheet.Options{}, fmt.Errorf("app config is nil")
	}

	sa, err := readSecret(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return gsheet.Options{}, fmt.Errorf("service account credentials: %w", err)
	}
	client, err := readSecret(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return gsheet.Options{}, fmt.Errorf("oauth client credentials: %w", err)
	}
	token, err := readSecret(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return gsheet.Options{}, fmt.Errorf("oauth token: %w", err)
	}

	return gsheet.Options{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		LedgerSheet:   cfg.LedgerSheetName,
		SettingsSheet: cfg.SettingsSheetName,
		SettingsRange: cfg.SettingsRange,
		Credentials: gsheet.Credentials{
			ServiceAccountJSON: sa,
			OAuthClientJSON:    client,
			OAuthTokenJSON:     token,
		},
	}, nil
}

func readSecret(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SheetsBackend, SQLiteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
