package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/flagx"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies
// on timex.Duration so JSON can specify intervals either as strings like
// "1s" or as integer nanoseconds. After parsing, values are copied into
// the runtime Config (which uses time.Duration).
type JsonConfig struct {
	PlannerEndpoint string `json:"planner_endpoint"`
	DocstoreBackend string `json:"docstore_backend"`
	AppID           string `json:"app_id"`

	FirestoreProject string `json:"firestore_project"`
	PostgresDSN      string `json:"postgres_dsn"`

	IdentityAPIKey   string `json:"identity_api_key"`
	IdentityBaseURL  string `json:"identity_base_url"`
	IdentityTokenURL string `json:"identity_token_url"`

	LocalDBPath string `json:"local_db_path"`

	S3Region       string `json:"s3_region"`
	S3Bucket       string `json:"s3_bucket"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`

	SaveDelay           timex.Duration `json:"save_delay"`
	HTTPTimeout         timex.Duration `json:"http_timeout"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
}

// parseJson overlays cfg with values loaded from a JSON file selected via
// the -c/-config flags. A missing flag means no JSON is loaded. Fields the
// file leaves empty keep their current value, so a partial file works.
// Read or unmarshal errors panic; the caller owns recovery.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlayString(&cfg.PlannerEndpoint, jc.PlannerEndpoint)
	overlayString(&cfg.DocstoreBackend, jc.DocstoreBackend)
	overlayString(&cfg.AppID, jc.AppID)
	overlayString(&cfg.FirestoreProject, jc.FirestoreProject)
	overlayString(&cfg.PostgresDSN, jc.PostgresDSN)
	overlayString(&cfg.IdentityAPIKey, jc.IdentityAPIKey)
	overlayString(&cfg.IdentityBaseURL, jc.IdentityBaseURL)
	overlayString(&cfg.IdentityTokenURL, jc.IdentityTokenURL)
	overlayString(&cfg.LocalDBPath, jc.LocalDBPath)
	overlayString(&cfg.S3Region, jc.S3Region)
	overlayString(&cfg.S3Bucket, jc.S3Bucket)
	overlayString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	overlayString(&cfg.S3AccessKey, jc.S3AccessKey)
	overlayString(&cfg.S3SecretKey, jc.S3SecretKey)

	if jc.SaveDelay.Duration > 0 {
		cfg.SaveDelay = time.Duration(jc.SaveDelay.Duration)
	}
	if jc.HTTPTimeout.Duration > 0 {
		cfg.HTTPTimeout = time.Duration(jc.HTTPTimeout.Duration)
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
