package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "20s", "48h"); empty means the component default.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Portal     PortalConfig     `json:"portal"`
	Cache      CacheConfig      `json:"cache"`
	Refresh    RefreshConfig    `json:"refresh"`
	Digest     DigestConfig     `json:"digest"`
	Homework   HomeworkConfig   `json:"homework"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Storage    StorageConfig    `json:"storage"`
	Debug      DebugConfig      `json:"debug"`
}

type TelegramConfig struct {
	// Token is normally supplied through DIARYBOT_TELEGRAM_TOKEN.
	Token        string  `json:"token,omitempty" validate:"required"`
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty" validate:"dive,ne=0"`
	// GroupLog is "<chat_id>" or "<chat_id>:<thread_id>" for operator alerts.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty" validate:"gte=0"`
	MinLevel   string `json:"min_level,omitempty" validate:"omitempty,oneof=warn error"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

type PortalConfig struct {
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`
	// CookieFile is normally supplied through DIARYBOT_COOKIE_FILE.
	CookieFile     string `json:"cookie_file,omitempty" validate:"required"`
	UserAgent      string `json:"user_agent,omitempty"`
	SettleList     string `json:"settle_list,omitempty"`
	SettlePage     string `json:"settle_page,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type CacheConfig struct {
	TTL string `json:"ttl,omitempty"`
	// SweepEvery is a schedule spec ("every:1h", "cron:0 3 * * *", "30m").
	SweepEvery string `json:"sweep_every,omitempty"`
}

type RefreshConfig struct {
	Timeout     string `json:"timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
	Cooldown    string `json:"cooldown,omitempty"`
	ReapEvery   string `json:"reap_every,omitempty"`
}

type DigestConfig struct {
	Enabled    bool    `json:"enabled"`
	Schedule   string  `json:"schedule,omitempty"`
	Timezone   string  `json:"timezone,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

type HomeworkConfig struct {
	Retention  string `json:"retention,omitempty"`
	PruneEvery string `json:"prune_every,omitempty"`
}

type TaskEngineConfig struct {
	Workers     int `json:"workers,omitempty" validate:"gte=0,lte=64"`
	QueueSize   int `json:"queue_size,omitempty" validate:"gte=0"`
	HistorySize int `json:"history_size,omitempty" validate:"gte=0"`
	RetryMax    int `json:"retry_max,omitempty" validate:"gte=0,lte=10"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=none memory file sqlite sqlite3"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token   string `json:"token,omitempty"`
}
