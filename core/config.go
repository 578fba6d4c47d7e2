package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		FrontendBaseURL  string
		defaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		Server     ServerConfig
		Database   DatabaseConfig
		Storage    StorageConfig
		Pagination PaginationConfig
		LiveClass  LiveClassConfig
		Payment    PaymentConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		BodyLimit                 string
		AllowOrigins              []string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		LoginAttempts             int
		LoginAttemptsWindow       time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		Backend       string // local | gcs
		LocalDir      string
		BaseURL       string
		Bucket        string
		MaxUploadSize int64
	}

	PaginationConfig struct {
		DefaultLimit int
		MaxLimit     int
	}

	LiveClassConfig struct {
		MeetingBaseURL string
		JoinWindow     time.Duration
	}

	PaymentConfig struct {
		Currency string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, s.Port)
}

func (d DatabaseConfig) Address() string {
	return net.JoinHostPort(d.Host, d.Port)
}

// NewConfig loads the configuration of the current ENV (DEV (default), TEST, QA, PROD).
// Values come from `<ENV>_`-prefixed env vars; `config/.env.<env>` is loaded first if it exists.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", "memory")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetString("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			BodyLimit:                 v.GetString("server.bodyLimit"),
			AllowOrigins:              v.GetStringSlice("server.allowOrigins"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			LoginAttempts:             v.GetInt("server.loginAttempts"),
			LoginAttemptsWindow:       v.GetDuration("server.loginAttemptsWindow"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Storage: StorageConfig{
			Backend:       v.GetString("storage.backend"),
			LocalDir:      v.GetString("storage.localDir"),
			BaseURL:       strings.TrimSuffix(v.GetString("storage.baseURL"), "/"),
			Bucket:        v.GetString("storage.bucket"),
			MaxUploadSize: v.GetInt64("storage.maxUploadSize"),
		},
		Pagination: PaginationConfig{
			DefaultLimit: v.GetInt("pagination.defaultLimit"),
			MaxLimit:     v.GetInt("pagination.maxLimit"),
		},
		LiveClass: LiveClassConfig{
			MeetingBaseURL: strings.TrimSuffix(v.GetString("liveClass.meetingBaseURL"), "/"),
			JoinWindow:     v.GetDuration("liveClass.joinWindow"),
		},
		Payment: PaymentConfig{
			Currency: strings.ToUpper(v.GetString("payment.currency")),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Darasa")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.bodyLimit", "60M")
	v.SetDefault("server.allowOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.loginAttempts", 5)
	v.SetDefault("server.loginAttemptsWindow", 15*time.Minute)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "darasa")
	v.SetDefault("database.user", "darasa")
	v.SetDefault("database.password", "darasa")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.localDir", filepath.Join(os.TempDir(), "darasa-media"))
	v.SetDefault("storage.baseURL", "http://localhost:8000/media")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.maxUploadSize", int64(50<<20))

	v.SetDefault("pagination.defaultLimit", 10)
	v.SetDefault("pagination.maxLimit", 100)

	v.SetDefault("liveClass.meetingBaseURL", "https://meet.localhost/room")
	v.SetDefault("liveClass.joinWindow", 10*time.Minute)

	v.SetDefault("payment.currency", "USD")
}

// NewTestConfig returns the configuration used by tests: no env lookups, in-memory storage.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("debug", false)
	v.Set("secretKey", "secret")
	v.Set("database.engine", "memory")

	return &Config{
		Env:              "TEST",
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            "test",
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      "localhost",
			Port:                      "0",
			ShutdownTimeout:           time.Second,
			BodyLimit:                 v.GetString("server.bodyLimit"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			LoginAttempts:             v.GetInt("server.loginAttempts"),
			LoginAttemptsWindow:       v.GetDuration("server.loginAttemptsWindow"),
		},
		Database: DatabaseConfig{Engine: "memory"},
		Storage: StorageConfig{
			Backend:       "local",
			LocalDir:      filepath.Join(os.TempDir(), "darasa-test-media"),
			BaseURL:       v.GetString("storage.baseURL"),
			MaxUploadSize: 1 << 20,
		},
		Pagination: PaginationConfig{
			DefaultLimit: v.GetInt("pagination.defaultLimit"),
			MaxLimit:     v.GetInt("pagination.maxLimit"),
		},
		LiveClass: LiveClassConfig{
			MeetingBaseURL: v.GetString("liveClass.meetingBaseURL"),
			JoinWindow:     v.GetDuration("liveClass.joinWindow"),
		},
		Payment: PaymentConfig{Currency: "USD"},
	}
}
