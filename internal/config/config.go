package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	MaxUploadSize int64
	PublicBaseURL string
	LogLevel      string
	LogFormat     string

	Database DatabaseConfig
	Storage  StorageConfig
	AI       AIConfig

	DetectConcurrency int
	// FetchAllowedHosts limits the hosts /detect downloads from; empty allows any.
	FetchAllowedHosts []string

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DedupTTL      time.Duration
}

type DatabaseConfig struct {
	Type           string // mongo, postgres or sqlite
	MongoURI       string
	MongoDatabase  string
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SQLitePath     string
	MigrationsPath string
}

type StorageConfig struct {
	Backend   string // local, minio or imagekit
	UploadDir string
	Folder    string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
	MinioPublicURL string

	ImageKitPublicKey   string
	ImageKitPrivateKey  string
	ImageKitURLEndpoint string
}

type AIConfig struct {
	Provider       string // gemini or openai
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	RequestTimeout time.Duration
	DisableSafety  bool
	MaxAttempts    int
}

// Configured reports whether the selected provider has credentials.
func (c AIConfig) Configured() bool {
	switch c.Provider {
	case "gemini":
		return c.GeminiAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	}
	return false
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		MaxUploadSize:     getEnvInt64("MAX_UPLOAD_SIZE", 104857600),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
		DetectConcurrency: getEnvInt("DETECT_CONCURRENCY", 1),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "media.analysis.events"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		DedupTTL:          getEnvDuration("DEDUP_TTL", 30*24*time.Hour),
	}
	cfg.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port), "/")

	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS")
	cfg.FetchAllowedHosts = getEnvList("FETCH_ALLOWED_HOSTS")

	// Mongo is the default whenever a connection string is provided.
	defaultDB := "sqlite"
	if os.Getenv("MONGODB_URI") != "" {
		defaultDB = "mongo"
	}
	cfg.Database = DatabaseConfig{
		Type:           getEnv("DB_TYPE", defaultDB),
		MongoURI:       os.Getenv("MONGODB_URI"),
		MongoDatabase:  getEnv("MONGODB_DB", "media_db"),
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           getEnvInt("DB_PORT", 5432),
		User:           getEnv("DB_USER", "mediaverify"),
		Password:       getEnv("DB_PASSWORD", "mediaverify_dev"),
		Name:           getEnv("DB_NAME", "mediaverify"),
		SQLitePath:     getEnv("DB_PATH", "./mediaverify.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}

	cfg.Storage = StorageConfig{
		Backend:             getEnv("STORAGE_BACKEND", "local"),
		UploadDir:           getEnv("UPLOAD_DIR", "./uploads"),
		Folder:              getEnv("STORAGE_FOLDER", "deepfake_detection"),
		MinioEndpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:      os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:      os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:         getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:         getEnv("MINIO_BUCKET", "media-uploads"),
		MinioPublicURL:      os.Getenv("MINIO_PUBLIC_URL"),
		ImageKitPublicKey:   os.Getenv("IMAGEKIT_PUBLIC_KEY"),
		ImageKitPrivateKey:  os.Getenv("IMAGEKIT_PRIVATE_KEY"),
		ImageKitURLEndpoint: os.Getenv("IMAGEKIT_URL_ENDPOINT"),
	}

	cfg.AI = AIConfig{
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o"),
		RequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),
		DisableSafety:  getEnvBool("AI_DISABLE_SAFETY", true),
		MaxAttempts:    getEnvInt("AI_MAX_ATTEMPTS", 2),
	}
	defaultProvider := "gemini"
	if cfg.AI.GeminiAPIKey == "" && cfg.AI.OpenAIAPIKey != "" {
		defaultProvider = "openai"
	}
	cfg.AI.Provider = getEnv("AI_PROVIDER", defaultProvider)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the server unusable. Missing AI
// credentials are not an error; detection requests fail instead.
func (c *Config) Validate() error {
	var problems []string

	if c.MaxUploadSize <= 0 {
		problems = append(problems, "MAX_UPLOAD_SIZE must be positive")
	}
	if c.DetectConcurrency < 1 {
		problems = append(problems, "DETECT_CONCURRENCY must be at least 1")
	}

	switch c.Database.Type {
	case "mongo":
		if c.Database.MongoURI == "" {
			problems = append(problems, "MONGODB_URI is required when DB_TYPE=mongo")
		}
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unsupported DB_TYPE %q", c.Database.Type))
	}

	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.Storage.MinioAccessKey == "" || c.Storage.MinioSecretKey == "" {
			problems = append(problems, "MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when STORAGE_BACKEND=minio")
		}
	case "imagekit":
		if c.Storage.ImageKitPrivateKey == "" || c.Storage.ImageKitURLEndpoint == "" {
			problems = append(problems, "IMAGEKIT_PRIVATE_KEY and IMAGEKIT_URL_ENDPOINT are required when STORAGE_BACKEND=imagekit")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported STORAGE_BACKEND %q", c.Storage.Backend))
	}

	switch c.AI.Provider {
	case "gemini", "openai":
	default:
		problems = append(problems, fmt.Sprintf("unsupported AI_PROVIDER %q", c.AI.Provider))
	}
	if c.AI.MaxAttempts < 1 {
		problems = append(problems, "AI_MAX_ATTEMPTS must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
