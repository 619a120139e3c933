package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDropbox = "dropbox"
	StorageS3      = "s3"
	StorageGCS     = "gcs"

	RecordsAirtable  = "airtable"
	RecordsFirestore = "firestore"

	EnvProduction = "production"
)

type Config struct {
	Server    ServerConfig
	App       AppConfig
	Storage   StorageConfig
	Dropbox   DropboxConfig
	S3        S3Config
	GCS       GCSConfig
	Records   RecordsConfig
	Airtable  AirtableConfig
	Firestore FirestoreConfig
	Slack     SlackConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type AppConfig struct {
	Env            string
	UploadDir      string
	MaxUploadSize  int64
	RequestTimeout time.Duration
}

// IsProduction reports whether detailed errors must be hidden from callers.
func (a AppConfig) IsProduction() bool {
	return a.Env == EnvProduction
}

type StorageConfig struct {
	Provider string
	Prefix   string
}

type DropboxConfig struct {
	AccessToken string
	ContentURL  string
	APIURL      string
	FallbackURL string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	PresignTTL      time.Duration
}

type GCSConfig struct {
	BucketName string
	SignedTTL  time.Duration
}

type RecordsConfig struct {
	Provider string
}

type AirtableConfig struct {
	AccessToken string
	BaseID      string
	TableName   string
	TableID     string
	APIURL      string
	WebURL      string
}

type FirestoreConfig struct {
	ProjectID  string
	Collection string
}

type SlackConfig struct {
	WebhookURL string
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("NODE_ENV", EnvProduction)
	v.SetDefault("APP_UPLOAD_DIR", os.TempDir()+"/revista-lavanda")
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("APP_REQUEST_TIMEOUT", 60*time.Second)
	v.SetDefault("STORAGE_PROVIDER", StorageDropbox)
	v.SetDefault("STORAGE_PREFIX", "/submissions")
	v.SetDefault("DROPBOX_ACCESS_TOKEN", "")
	v.SetDefault("DROPBOX_CONTENT_URL", "https://content.dropboxapi.com")
	v.SetDefault("DROPBOX_API_URL", "https://api.dropboxapi.com")
	v.SetDefault("DROPBOX_FALLBACK_URL", "https://www.dropbox.com/home/submissions")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_BUCKET_NAME", "submissions")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PRESIGN_TTL", 7*24*time.Hour)
	v.SetDefault("GCS_BUCKET_NAME", "")
	v.SetDefault("GCS_SIGNED_URL_TTL", 7*24*time.Hour)
	v.SetDefault("RECORD_STORE", RecordsAirtable)
	v.SetDefault("AIRTABLE_ACCESS_TOKEN", "")
	v.SetDefault("AIRTABLE_BASE_ID", "")
	v.SetDefault("AIRTABLE_TABLE_NAME", "")
	v.SetDefault("AIRTABLE_TABLE_ID", "")
	v.SetDefault("AIRTABLE_API_URL", "https://api.airtable.com")
	v.SetDefault("AIRTABLE_WEB_URL", "https://airtable.com")
	v.SetDefault("FIRESTORE_PROJECT_ID", "")
	v.SetDefault("FIRESTORE_COLLECTION", "submissions")
	v.SetDefault("SLACK_WEBHOOK_URL", "")

	v.AutomaticEnv()

	env := v.GetString("APP_ENV")
	if env == "" {
		env = v.GetString("NODE_ENV")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		App: AppConfig{
			Env:            strings.ToLower(env),
			UploadDir:      v.GetString("APP_UPLOAD_DIR"),
			MaxUploadSize:  v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			RequestTimeout: v.GetDuration("APP_REQUEST_TIMEOUT"),
		},
		Storage: StorageConfig{
			Provider: strings.ToLower(v.GetString("STORAGE_PROVIDER")),
			Prefix:   v.GetString("STORAGE_PREFIX"),
		},
		Dropbox: DropboxConfig{
			AccessToken: v.GetString("DROPBOX_ACCESS_TOKEN"),
			ContentURL:  v.GetString("DROPBOX_CONTENT_URL"),
			APIURL:      v.GetString("DROPBOX_API_URL"),
			FallbackURL: v.GetString("DROPBOX_FALLBACK_URL"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
			PresignTTL:      v.GetDuration("S3_PRESIGN_TTL"),
		},
		GCS: GCSConfig{
			BucketName: v.GetString("GCS_BUCKET_NAME"),
			SignedTTL:  v.GetDuration("GCS_SIGNED_URL_TTL"),
		},
		Records: RecordsConfig{
			Provider: strings.ToLower(v.GetString("RECORD_STORE")),
		},
		Airtable: AirtableConfig{
			AccessToken: v.GetString("AIRTABLE_ACCESS_TOKEN"),
			BaseID:      v.GetString("AIRTABLE_BASE_ID"),
			TableName:   v.GetString("AIRTABLE_TABLE_NAME"),
			TableID:     v.GetString("AIRTABLE_TABLE_ID"),
			APIURL:      strings.TrimRight(v.GetString("AIRTABLE_API_URL"), "/"),
			WebURL:      strings.TrimRight(v.GetString("AIRTABLE_WEB_URL"), "/"),
		},
		Firestore: FirestoreConfig{
			ProjectID:  v.GetString("FIRESTORE_PROJECT_ID"),
			Collection: v.GetString("FIRESTORE_COLLECTION"),
		},
		Slack: SlackConfig{
			WebhookURL: v.GetString("SLACK_WEBHOOK_URL"),
		},
	}

	if err := createDirs(cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return cfg, nil
}

// Validate reports every missing setting for the selected backends at once.
func (c *Config) Validate() error {
	var errs []error
	missing := func(name, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is not set", name))
		}
	}

	switch c.Storage.Provider {
	case StorageDropbox:
		missing("DROPBOX_ACCESS_TOKEN", c.Dropbox.AccessToken)
	case StorageS3:
		missing("S3_BUCKET_NAME", c.S3.BucketName)
	case StorageGCS:
		missing("GCS_BUCKET_NAME", c.GCS.BucketName)
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_PROVIDER %q", c.Storage.Provider))
	}

	switch c.Records.Provider {
	case RecordsAirtable:
		missing("AIRTABLE_ACCESS_TOKEN", c.Airtable.AccessToken)
		missing("AIRTABLE_BASE_ID", c.Airtable.BaseID)
		missing("AIRTABLE_TABLE_NAME", c.Airtable.TableName)
	case RecordsFirestore:
		missing("FIRESTORE_PROJECT_ID", c.Firestore.ProjectID)
	default:
		errs = append(errs, fmt.Errorf("unknown RECORD_STORE %q", c.Records.Provider))
	}

	missing("SLACK_WEBHOOK_URL", c.Slack.WebhookURL)

	return errors.Join(errs...)
}

func createDirs(cfg *Config) error {
	if err := os.MkdirAll(cfg.App.UploadDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", cfg.App.UploadDir, err)
	}
	return nil
}
