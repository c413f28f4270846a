package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Journal Configuration

[journal]
# Journal owner ID (used as the userId key across the ledger)
user_id = "default"
# SQLite database path (default: <config dir>/journal.db)
# database_path = ""
# Default exchange for CSV rows missing one: NSE, BSE
default_exchange = "NSE"
# Default product type for CSV rows missing one: MIS, CNC, NRML
default_product = "CNC"
# Brokers to pull trades from on 'journal sync': ZERODHA, DHAN, ANGELONE
sync_brokers = []

[classifier]
# Path to patterns.json produced by the offline training pipeline
# artifact_path = ""
# Maximum centroid distance before falling back to rule-based classification
distance_threshold = 5.0
# Minimum trailing daily candles required to classify a trade
min_observations = 20
# Background classification workers
workers = 4

[insights]
# Enable LLM retrospective commentary
enabled = true
# OpenAI model for commentary
model = "gpt-4o-mini"

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "02-Jan-2006"
# Time format
time_format = "15:04:05"
`

const credentialsTemplate = `# Trade Journal Credentials
# Keep this file private (chmod 600).

[zerodha]
api_key = ""
api_secret = ""
user_id = ""

[dhan]
client_id = ""
access_token = ""

[angelone]
api_key = ""
client_code = ""
pin = ""
totp_secret = ""

[openai]
api_key = ""
`

// Init writes template config and credentials files into configDir without
// overwriting existing ones.
func Init(configDir string) error {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := createTemplateConfig(configDir); err != nil {
		return err
	}
	return createTemplateCredentials(configDir)
}

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
