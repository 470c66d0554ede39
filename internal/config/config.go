package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"MineSafetyAPI/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	MQTT         MQTTConfig
	Security     SecurityConfig
	Logging      LoggingConfig
	Engine       EngineConfig
	Notification NotificationConfig
	Twilio       TwilioConfig
	SMTP         SMTPConfig
	Telegram     TelegramConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxHeaderBytes  int
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

type MQTTConfig struct {
	Enabled        bool
	Broker         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	ReadingsTopic  string
	SirenTopic     string
	QoS            byte
	RetainMessages bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	AutoReconnect  bool
}

type SecurityConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	RateLimitPerMinute int
	EnableRateLimit    bool
}

type LoggingConfig struct {
	Level      logger.Level
	Mode       logger.Mode
	Format     string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	UseColors  bool
}

type EngineConfig struct {
	ConfigPath            string
	EvaluationInterval    time.Duration
	Retention             time.Duration
	SweepInterval         time.Duration
	ClockSkew             time.Duration
	AutoResolveAfter      int
	MinAlertLevel         string
	EvaluationConcurrency int
}

type NotificationConfig struct {
	DryRun           bool
	MaxRetries       int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	SendTimeout      time.Duration
	RatePerSecond    float64
	Burst            int
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type TelegramConfig struct {
	BotToken string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

var requiredDatabaseVars = []string{
	"DB_HOST",
	"DB_PORT",
	"DB_USER",
	"DB_PASSWORD",
	"DB_NAME",
}

var requiredMQTTVars = []string{
	"MQTT_BROKER",
	"MQTT_PORT",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server:       loadServerConfig(),
		Database:     loadDatabaseConfig(),
		MQTT:         loadMQTTConfig(),
		Security:     loadSecurityConfig(),
		Logging:      loadLoggingConfig(),
		Engine:       loadEngineConfig(),
		Notification: loadNotificationConfig(),
		Twilio:       loadTwilioConfig(),
		SMTP:         loadSMTPConfig(),
		Telegram:     TelegramConfig{BotToken: getEnv("TELEGRAM_BOT_TOKEN", "")},
		Redis:        loadRedisConfig(),
		Kafka:        loadKafkaConfig(),
	}

	if cfg.Database.Enabled {
		if err := validateRequired(requiredDatabaseVars); err != nil {
			return nil, err
		}
	}
	if cfg.MQTT.Enabled {
		if err := validateRequired(requiredMQTTVars); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func validateRequired(keys []string) error {
	var missing []string

	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		Port:            getEnvAsInt("SERVER_PORT", 8080),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "15s"),
		ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", "10s"),
		WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", "10s"),
		MaxHeaderBytes:  getEnvAsInt("MAX_HEADER_BYTES", 1048576),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         getEnvAsBool("DB_ENABLED", true),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "mine_safety"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "mine_safety"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", "5m"),
		AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
	}
}

func loadMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:        getEnvAsBool("MQTT_ENABLED", true),
		Broker:         getEnv("MQTT_BROKER", "localhost"),
		Port:           getEnvAsInt("MQTT_PORT", 1883),
		ClientID:       getEnv("MQTT_CLIENT_ID", "mine-safety-engine"),
		Username:       getEnv("MQTT_USERNAME", ""),
		Password:       getEnv("MQTT_PASSWORD", ""),
		ReadingsTopic:  getEnv("MQTT_READINGS_TOPIC", "mines/+/sensors/+/readings"),
		SirenTopic:     getEnv("MQTT_SIREN_TOPIC", "mines/%s/siren"),
		QoS:            byte(getEnvAsInt("MQTT_QOS", 1)),
		RetainMessages: getEnvAsBool("MQTT_RETAIN", false),
		KeepAlive:      getEnvAsDuration("MQTT_KEEP_ALIVE", "60s"),
		ConnectTimeout: getEnvAsDuration("MQTT_CONNECT_TIMEOUT", "10s"),
		AutoReconnect:  getEnvAsBool("MQTT_AUTO_RECONNECT", true),
	}
}

func loadSecurityConfig() SecurityConfig {
	origins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	methods := getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")

	return SecurityConfig{
		CORSAllowedOrigins: strings.Split(origins, ","),
		CORSAllowedMethods: strings.Split(methods, ","),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
		EnableRateLimit:    getEnvAsBool("ENABLE_RATE_LIMIT", true),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      logger.ParseLevel(getEnv("LOG_LEVEL", "info")),
		Mode:       logger.ParseMode(getEnv("LOG_MODE", "normal")),
		Format:     getEnv("LOG_FORMAT", "console"),
		FilePath:   getEnv("LOG_FILE_PATH", ""),
		MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		UseColors:  getEnvAsBool("LOG_USE_COLORS", true),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		ConfigPath:            getEnv("ENGINE_CONFIG_PATH", ""),
		EvaluationInterval:    getEnvAsDuration("EVALUATION_INTERVAL", "30s"),
		Retention:             getEnvAsDuration("READING_RETENTION", "24h"),
		SweepInterval:         getEnvAsDuration("RETENTION_SWEEP_INTERVAL", "1m"),
		ClockSkew:             getEnvAsDuration("READING_CLOCK_SKEW", "5m"),
		AutoResolveAfter:      getEnvAsInt("AUTO_RESOLVE_AFTER", 3),
		MinAlertLevel:         getEnv("MIN_ALERT_LEVEL", "high"),
		EvaluationConcurrency: getEnvAsInt("EVALUATION_CONCURRENCY", 8),
	}
}

func loadNotificationConfig() NotificationConfig {
	return NotificationConfig{
		DryRun:           getEnvAsBool("NOTIFY_DRY_RUN", false),
		MaxRetries:       getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
		BaseBackoff:      getEnvAsDuration("NOTIFY_BASE_BACKOFF", "2s"),
		MaxBackoff:       getEnvAsDuration("NOTIFY_MAX_BACKOFF", "1m"),
		SendTimeout:      getEnvAsDuration("NOTIFY_SEND_TIMEOUT", "10s"),
		RatePerSecond:    getEnvAsFloat("NOTIFY_RATE_PER_SECOND", 5),
		Burst:            getEnvAsInt("NOTIFY_BURST", 10),
		BreakerThreshold: getEnvAsInt("NOTIFY_BREAKER_THRESHOLD", 5),
		BreakerTimeout:   getEnvAsDuration("NOTIFY_BREAKER_TIMEOUT", "30s"),
	}
}

func loadTwilioConfig() TwilioConfig {
	return TwilioConfig{
		AccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		AuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		FromNumber:   getEnv("TWILIO_FROM_NUMBER", ""),
		WhatsAppFrom: getEnv("TWILIO_WHATSAPP_FROM", ""),
	}
}

func loadSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     getEnvAsInt("SMTP_PORT", 587),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", ""),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
		TTL:      getEnvAsDuration("REDIS_ASSESSMENT_TTL", "5m"),
	}
}

func loadKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled: getEnvAsBool("KAFKA_ENABLED", false),
		Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		Topic:   getEnv("KAFKA_ALERT_TOPIC", "mine-safety.alerts"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func (c *Config) GetMQTTBroker() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTT.Broker, c.MQTT.Port)
}

func (c *Config) Validate() error {
	var errors []string

	if c.Database.Enabled && c.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD cannot be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	if c.Database.Enabled && (c.Database.Port < 1 || c.Database.Port > 65535) {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}

	if c.MQTT.Enabled && (c.MQTT.Port < 1 || c.MQTT.Port > 65535) {
		errors = append(errors, "MQTT_PORT must be between 1 and 65535")
	}

	if c.Engine.EvaluationInterval <= 0 {
		errors = append(errors, "EVALUATION_INTERVAL must be positive")
	}

	if c.Engine.ClockSkew < 0 {
		errors = append(errors, "READING_CLOCK_SKEW cannot be negative")
	}

	if c.Engine.AutoResolveAfter < 1 {
		errors = append(errors, "AUTO_RESOLVE_AFTER must be at least 1")
	}

	switch c.Engine.MinAlertLevel {
	case "medium", "high", "critical":
	default:
		errors = append(errors, "MIN_ALERT_LEVEL must be one of medium, high, critical")
	}

	if c.Notification.MaxRetries < 1 {
		errors = append(errors, "NOTIFY_MAX_RETRIES must be at least 1")
	}

	if c.Notification.SendTimeout <= 0 {
		errors = append(errors, "NOTIFY_SEND_TIMEOUT must be positive")
	}

	if c.Notification.BreakerThreshold < 0 {
		errors = append(errors, "NOTIFY_BREAKER_THRESHOLD cannot be negative")
	}

	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		errors = append(errors, "KAFKA_ALERT_TOPIC cannot be empty when Kafka is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func (c *Config) Print() {
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║           Mine Safety Engine - Configuration             ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Printf("Environment:     %s\n", c.Server.Environment)
	fmt.Printf("Server:          %s:%d\n", c.Server.Host, c.Server.Port)
	if c.Database.Enabled {
		fmt.Printf("Database:        %s:%d/%s\n", c.Database.Host, c.Database.Port, c.Database.Database)
	} else {
		fmt.Printf("Database:        disabled (in-memory only)\n")
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT Broker:     %s:%d (%s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.ReadingsTopic)
	} else {
		fmt.Printf("MQTT Broker:     disabled\n")
	}
	fmt.Printf("Evaluation:      every %s, auto-resolve after %d lows\n", c.Engine.EvaluationInterval, c.Engine.AutoResolveAfter)
	fmt.Printf("Notifications:   %d attempts, dry-run %v\n", c.Notification.MaxRetries, c.Notification.DryRun)
	fmt.Printf("Redis cache:     %s\n", enabled(c.Redis.Enabled))
	fmt.Printf("Kafka events:    %s\n", enabled(c.Kafka.Enabled))
	fmt.Println("──────────────────────────────────────────────────────────")
}
