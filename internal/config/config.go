package config

import "time"

// Config holds runtime settings for the planner CLI.
//
// Fields:
//   - PlannerEndpoint: base URL of the planning backend.
//   - DocstoreBackend: which document store to use (memory, firestore,
//     postgres).
//   - AppID: deployment scope prefix for all document paths.
//   - SaveDelay: quiet period before a debounced state save fires.
//   - HTTPTimeout: planning backend request timeout; zero leaves requests
//     unbounded.
//   - OnlineCheckInterval: how often the client probes backend health.
type Config struct {
	PlannerEndpoint string
	DocstoreBackend string
	AppID           string

	FirestoreProject string
	PostgresDSN      string

	IdentityAPIKey   string
	IdentityBaseURL  string
	IdentityTokenURL string

	LocalDBPath string

	S3Region       string
	S3Bucket       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string

	SaveDelay           time.Duration
	HTTPTimeout         time.Duration
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.PlannerEndpoint = "http://127.0.0.1:8000"
	c.DocstoreBackend = "memory"
	c.AppID = "medical-travel-planner"
	c.LocalDBPath = "planner.db"
	c.SaveDelay = 1 * time.Second
	c.HTTPTimeout = 0
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
