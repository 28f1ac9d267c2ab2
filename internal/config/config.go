package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		AnkiData
		Media
		Database
		Storage
		Analytics
		RevlogSync
		Tasks
		SyncUsers
		Global
	}

	AnkiData struct {
		Root string // Sync server data directory with per-student collections
	}
	Media struct {
		WebRoot string // Web-servable media mirror; empty disables mirroring
	}
	Database struct {
		Path string
	}
	Storage struct {
		BlobDir         string        // Local blob store directory for .apkg payloads
		DownloadTimeout time.Duration // Generous: packages can be tens of megabytes
	}
	Analytics struct {
		BatchSize int // Max revlog rows mirrored per call (bounds memory and lock duration)
	}
	RevlogSync struct {
		Enabled  bool
		Schedule string // Cron format: "*/15 * * * *" = every 15 minutes
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	SyncUsers struct {
		EnvFile string // Credential file read by the sync server
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("anki_data_root", DefaultAnkiDataPath)
	v.SetDefault("media_web_root", "")
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("blob_dir", "./blobs")
	v.SetDefault("blob_download_timeout", "2m")
	v.SetDefault("analytics_batch_size", 10000)
	v.SetDefault("revlog_sync_enabled", false)
	v.SetDefault("revlog_sync_schedule", "*/15 * * * *")
	v.SetDefault("sync_users_file", "/app/sync_users.env")
	v.SetDefault("shutdown_timeout_in_seconds", 2)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		AnkiData: AnkiData{
			Root: v.GetString("ANKI_DATA_ROOT"),
		},
		Media: Media{
			WebRoot: v.GetString("MEDIA_WEB_ROOT"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Storage: Storage{
			BlobDir:         v.GetString("BLOB_DIR"),
			DownloadTimeout: v.GetDuration("BLOB_DOWNLOAD_TIMEOUT"),
		},
		Analytics: Analytics{
			BatchSize: v.GetInt("ANALYTICS_BATCH_SIZE"),
		},
		RevlogSync: RevlogSync{
			Enabled:  v.GetBool("REVLOG_SYNC_ENABLED"),
			Schedule: v.GetString("REVLOG_SYNC_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		SyncUsers: SyncUsers{
			EnvFile: v.GetString("SYNC_USERS_FILE"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
	}
}
