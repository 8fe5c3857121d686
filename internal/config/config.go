package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server       ServerConfig       `json:"server"`
	Security     SecurityConfig     `json:"security"`
	Logging      LoggingConfig      `json:"logging"`
	Database     DatabaseConfig     `json:"database"`
	ESign        ESignConfig        `json:"esign"`
	Notification NotificationConfig `json:"notification"`
	Certificate  CertificateConfig  `json:"certificate"`
	Workflow     WorkflowConfig     `json:"workflow"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	BaseURL      string        `json:"base_url"`
}

type SecurityConfig struct {
	CookieSecret      string        `json:"cookie_secret"`
	SessionTimeout    time.Duration `json:"session_timeout"`
	PasswordMinLength int           `json:"password_min_length"`
}

type LoggingConfig struct {
	Level        string `json:"level"`
	FilePath     string `json:"file_path"`
	ConsoleLevel string `json:"console_level"`
	FileLevel    string `json:"file_level"`
	Format       string `json:"format"`
}

type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

// ESignConfig selects and parameterizes the provider. Mode is either
// "simulated" or "live"; live mode requires the credential fields.
type ESignConfig struct {
	Mode         string        `json:"mode"`
	BaseURL      string        `json:"base_url"`
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	CallbackURL  string        `json:"callback_url"`
	Timeout      time.Duration `json:"timeout"`
	SignTimeout  time.Duration `json:"sign_timeout"`
	OTPTTL       time.Duration `json:"otp_ttl"`
}

type NotificationConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	AppName  string `json:"app_name"`
	AppURL   string `json:"app_url"`
}

type CertificateConfig struct {
	OutputDir     string `json:"output_dir"`
	SignedDir     string `json:"signed_dir"`
	VerifyBaseURL string `json:"verify_base_url"`
}

type WorkflowConfig struct {
	ReminderCooldown time.Duration `json:"reminder_cooldown"`
}

var (
	config     *Configuration
	configOnce sync.Once
	configLock sync.RWMutex
)

func LoadConfig(filePath string) (*Configuration, error) {
	var err error

	configOnce.Do(func() {
		var file *os.File
		file, err = os.Open(filePath)
		if err != nil {
			err = fmt.Errorf("failed to open config file: %w", err)
			return
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		config = &Configuration{}
		err = decoder.Decode(config)
		if err != nil {
			err = fmt.Errorf("failed to decode config file: %w", err)
			return
		}

		applyDefaults(config)
		applyEnvOverrides(config)
	})

	return config, err
}

func applyDefaults(c *Configuration) {
	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:" + c.Server.Port
	}
	if c.Security.SessionTimeout == 0 {
		c.Security.SessionTimeout = 24 * time.Hour
	}
	if c.Security.PasswordMinLength == 0 {
		c.Security.PasswordMinLength = 8
	}
	if c.ESign.Mode == "" {
		c.ESign.Mode = "simulated"
	}
	if c.ESign.Timeout == 0 {
		c.ESign.Timeout = 30 * time.Second
	}
	if c.ESign.SignTimeout == 0 {
		c.ESign.SignTimeout = 60 * time.Second
	}
	if c.ESign.OTPTTL == 0 {
		c.ESign.OTPTTL = 10 * time.Minute
	}
	if c.Notification.AppName == "" {
		c.Notification.AppName = "LexSign"
	}
	if c.Notification.AppURL == "" {
		c.Notification.AppURL = c.Server.BaseURL
	}
	if c.Certificate.OutputDir == "" {
		c.Certificate.OutputDir = "generated_documents/certificates"
	}
	if c.Certificate.SignedDir == "" {
		c.Certificate.SignedDir = "generated_documents/signed"
	}
	if c.Certificate.VerifyBaseURL == "" {
		c.Certificate.VerifyBaseURL = c.Server.BaseURL
	}
	if c.Workflow.ReminderCooldown == 0 {
		c.Workflow.ReminderCooldown = 24 * time.Hour
	}
}

// Secrets never live in the checked-in config file; they come from the
// environment.
func applyEnvOverrides(c *Configuration) {
	if v := os.Getenv("LEXSIGN_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("LEXSIGN_ESIGN_CLIENT_ID"); v != "" {
		c.ESign.ClientID = v
	}
	if v := os.Getenv("LEXSIGN_ESIGN_CLIENT_SECRET"); v != "" {
		c.ESign.ClientSecret = v
	}
	if v := os.Getenv("LEXSIGN_SMTP_PASSWORD"); v != "" {
		c.Notification.Password = v
	}
	if v := os.Getenv("LEXSIGN_COOKIE_SECRET"); v != "" {
		c.Security.CookieSecret = v
	}
}

func GetConfig() *Configuration {
	configLock.RLock()
	defer configLock.RUnlock()
	return config
}

func InitializeDefaultConfig() *Configuration {
	configLock.Lock()
	defer configLock.Unlock()

	config = &Configuration{
		Server: ServerConfig{
			Port:         "8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			BaseURL:      "http://localhost:8000",
		},
		Security: SecurityConfig{
			CookieSecret:      "lexsign-secret-key",
			SessionTimeout:    24 * time.Hour,
			PasswordMinLength: 8,
		},
		Logging: LoggingConfig{
			Level:        "info",
			FilePath:     "logs/lexsign.log",
			ConsoleLevel: "info",
			FileLevel:    "debug",
			Format:       "json",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			Username:        "postgres",
			Password:        "password",
			Name:            "lexsign",
			SSLMode:         "disable",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: 300,
		},
		ESign: ESignConfig{
			Mode:        "simulated",
			Timeout:     30 * time.Second,
			SignTimeout: 60 * time.Second,
			OTPTTL:      10 * time.Minute,
		},
		Notification: NotificationConfig{
			Enabled: false,
			AppName: "LexSign",
			AppURL:  "http://localhost:8000",
		},
		Certificate: CertificateConfig{
			OutputDir:     "generated_documents/certificates",
			SignedDir:     "generated_documents/signed",
			VerifyBaseURL: "http://localhost:8000",
		},
		Workflow: WorkflowConfig{
			ReminderCooldown: 24 * time.Hour,
		},
	}
	applyEnvOverrides(config)

	return config
}

func LogConfig(logger *zap.Logger) {
	configLock.RLock()
	defer configLock.RUnlock()

	logger.Info("Application configuration",
		zap.String("port", config.Server.Port),
		zap.Duration("read_timeout", config.Server.ReadTimeout),
		zap.Duration("write_timeout", config.Server.WriteTimeout),
		zap.String("esign_mode", config.ESign.Mode),
		zap.Duration("otp_ttl", config.ESign.OTPTTL),
		zap.Bool("notifications_enabled", config.Notification.Enabled),
		zap.Duration("reminder_cooldown", config.Workflow.ReminderCooldown),
		zap.String("database_host", config.Database.Host),
		zap.String("database_name", config.Database.Name),
	)
}
