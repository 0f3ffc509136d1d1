package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Planner     PlannerConfig
	SolveWorker SolveWorkerConfig
	Exports     ExportsConfig
	Cache       CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PlannerConfig holds the engine defaults; requests may override the modes and budget.
type PlannerConfig struct {
	SupervisorsPerRoom   int
	MaxSessionsPerDay    int
	QuotaPerGrade        map[string]int
	PreferenceMode       string
	GradeQuotaMode       string
	GradeFlexibility     int
	MaxGradeFlexibility  int
	MaxSolveTime         time.Duration
	NumWorkers           int
	IterationsPerWorker  int
	ExactCellLimit       int
	ExactCheckBudget     time.Duration
	AutoRelax            bool
	OverprovisioningRate float64
	Weights              WeightsConfig
}

// WeightsConfig mirrors the objective weights.
type WeightsConfig struct {
	QuotaExcess         int64
	QuotaDeviation      int64
	PreferenceViolation int64
	FullDayViolation    int64
	ActiveDay           int64
	GapDay              int64
	BothHalvesBonus     int64
	ConsecutiveBonus    int64
	IsolatedDay         int64
	TieBreakMin         int64
	TieBreakMax         int64
}

// SolveWorkerConfig sizes the asynchronous solve queue.
type SolveWorkerConfig struct {
	Concurrency int
	Retries     int
	RetryDelay  time.Duration
	BufferSize  int
}

// ExportsConfig configures generated downloads.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
	// Timezone is the IANA zone exam slot times are expressed in, used for calendar exports.
	Timezone string
}

// CacheConfig governs cached reports and recommendations.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Planner = PlannerConfig{
		SupervisorsPerRoom:   v.GetInt("PLANNER_SUPERVISORS_PER_ROOM"),
		MaxSessionsPerDay:    v.GetInt("PLANNER_MAX_SESSIONS_PER_DAY"),
		QuotaPerGrade:        parseQuotaTable(v.GetString("PLANNER_QUOTA_PER_GRADE")),
		PreferenceMode:       v.GetString("PLANNER_PREFERENCE_MODE"),
		GradeQuotaMode:       v.GetString("PLANNER_GRADE_QUOTA_MODE"),
		GradeFlexibility:     v.GetInt("PLANNER_GRADE_FLEXIBILITY"),
		MaxGradeFlexibility:  v.GetInt("PLANNER_MAX_GRADE_FLEXIBILITY"),
		MaxSolveTime:         parseDuration(v.GetString("PLANNER_MAX_SOLVE_TIME"), 5*time.Minute),
		NumWorkers:           v.GetInt("PLANNER_NUM_WORKERS"),
		IterationsPerWorker:  v.GetInt("PLANNER_ITERATIONS_PER_WORKER"),
		ExactCellLimit:       v.GetInt("PLANNER_EXACT_CELL_LIMIT"),
		ExactCheckBudget:     parseDuration(v.GetString("PLANNER_EXACT_CHECK_BUDGET"), 10*time.Second),
		AutoRelax:            v.GetBool("PLANNER_AUTO_RELAX"),
		OverprovisioningRate: v.GetFloat64("PLANNER_OVERPROVISIONING_RATE"),
		Weights: WeightsConfig{
			QuotaExcess:         v.GetInt64("PLANNER_WEIGHT_QUOTA_EXCESS"),
			QuotaDeviation:      v.GetInt64("PLANNER_WEIGHT_QUOTA_DEVIATION"),
			PreferenceViolation: v.GetInt64("PLANNER_WEIGHT_PREFERENCE_VIOLATION"),
			FullDayViolation:    v.GetInt64("PLANNER_WEIGHT_FULL_DAY_VIOLATION"),
			ActiveDay:           v.GetInt64("PLANNER_WEIGHT_ACTIVE_DAY"),
			GapDay:              v.GetInt64("PLANNER_WEIGHT_GAP_DAY"),
			BothHalvesBonus:     v.GetInt64("PLANNER_WEIGHT_BOTH_HALVES_BONUS"),
			ConsecutiveBonus:    v.GetInt64("PLANNER_WEIGHT_CONSECUTIVE_BONUS"),
			IsolatedDay:         v.GetInt64("PLANNER_WEIGHT_ISOLATED_DAY"),
			TieBreakMin:         v.GetInt64("PLANNER_WEIGHT_TIE_BREAK_MIN"),
			TieBreakMax:         v.GetInt64("PLANNER_WEIGHT_TIE_BREAK_MAX"),
		},
	}

	cfg.SolveWorker = SolveWorkerConfig{
		Concurrency: v.GetInt("SOLVE_WORKER_CONCURRENCY"),
		Retries:     v.GetInt("SOLVE_WORKER_RETRIES"),
		RetryDelay:  parseDuration(v.GetString("SOLVE_WORKER_RETRY_DELAY"), 2*time.Second),
		BufferSize:  v.GetInt("SOLVE_WORKER_BUFFER"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		Timezone:        v.GetString("EXPORTS_TIMEZONE"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_proctor")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PLANNER_SUPERVISORS_PER_ROOM", 2)
	v.SetDefault("PLANNER_MAX_SESSIONS_PER_DAY", 4)
	v.SetDefault("PLANNER_QUOTA_PER_GRADE", "PR=4,MC=4,MA=7,AS=8,AC=9,PTC=9,PES=9,EX=3,V=4")
	v.SetDefault("PLANNER_PREFERENCE_MODE", "hard")
	v.SetDefault("PLANNER_GRADE_QUOTA_MODE", "minimum")
	v.SetDefault("PLANNER_GRADE_FLEXIBILITY", 0)
	v.SetDefault("PLANNER_MAX_GRADE_FLEXIBILITY", 2)
	v.SetDefault("PLANNER_MAX_SOLVE_TIME", "300s")
	v.SetDefault("PLANNER_NUM_WORKERS", 8)
	v.SetDefault("PLANNER_ITERATIONS_PER_WORKER", 20000)
	v.SetDefault("PLANNER_EXACT_CELL_LIMIT", 5000)
	v.SetDefault("PLANNER_EXACT_CHECK_BUDGET", "10s")
	v.SetDefault("PLANNER_AUTO_RELAX", true)
	v.SetDefault("PLANNER_OVERPROVISIONING_RATE", 1.15)
	v.SetDefault("PLANNER_WEIGHT_QUOTA_EXCESS", 100)
	v.SetDefault("PLANNER_WEIGHT_QUOTA_DEVIATION", 1000000)
	v.SetDefault("PLANNER_WEIGHT_PREFERENCE_VIOLATION", 10000)
	v.SetDefault("PLANNER_WEIGHT_FULL_DAY_VIOLATION", 8000)
	v.SetDefault("PLANNER_WEIGHT_ACTIVE_DAY", 100)
	v.SetDefault("PLANNER_WEIGHT_GAP_DAY", 5000)
	v.SetDefault("PLANNER_WEIGHT_BOTH_HALVES_BONUS", -500)
	v.SetDefault("PLANNER_WEIGHT_CONSECUTIVE_BONUS", -300)
	v.SetDefault("PLANNER_WEIGHT_ISOLATED_DAY", 15000)
	v.SetDefault("PLANNER_WEIGHT_TIE_BREAK_MIN", 1)
	v.SetDefault("PLANNER_WEIGHT_TIE_BREAK_MAX", 3)

	v.SetDefault("SOLVE_WORKER_CONCURRENCY", 1)
	v.SetDefault("SOLVE_WORKER_RETRIES", 2)
	v.SetDefault("SOLVE_WORKER_RETRY_DELAY", "2s")
	v.SetDefault("SOLVE_WORKER_BUFFER", 16)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_TIMEZONE", "Africa/Tunis")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("CACHE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseQuotaTable reads "PR=4,MC=4" into a grade table; malformed entries are skipped.
func parseQuotaTable(raw string) map[string]int {
	table := make(map[string]int)
	for _, entry := range splitAndTrim(raw) {
		grade, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			continue
		}
		table[strings.ToUpper(strings.TrimSpace(grade))] = n
	}
	return table
}
