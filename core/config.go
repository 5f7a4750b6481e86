package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MongoConfig struct {
		URI      string
		Database string
	}

	MailConfig struct {
		Host     string
		Port     int
		User     string
		Password string // SendGrid API key when the relay is SendGrid
		From     string
	}

	ServerConfig struct {
		Host               string
		Address            string
		JWTExpirationDelta time.Duration
		AllowedOrigins     []string
	}

	Config struct {
		Env       string
		Build     string
		Debug     bool
		TestMode  bool
		AppName   string
		SecretKey string
		Region    string

		SharedSecret           string
		ProfileCollection      string
		CanonicalField         string
		LegacyField            string
		MigrationCollections   []string
		NotificationCollection string
		CallbackBaseURL        string
		AllowEmulatorWrites    bool
		WatchNotifications     bool

		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		PushURL                   string

		Server   ServerConfig
		Database DatabaseConfig
		Mongo    MongoConfig
		Mail     MailConfig
	}
)

// DefaultFromEmail parses the configured sender; a bare address gets AppName as display name.
func (conf *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(conf.Mail.From); err == nil {
		if addr.Name == "" {
			addr.Name = conf.AppName
		}
		return *addr
	}
	return mail.Address{Name: conf.AppName, Address: conf.Mail.From}
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "InternQuest")
	v.SetDefault("secretKey", "t2a#9x!iq-@k7w0s5f$n3^ve_lq8zr(p)4d1hmb*j6yc&0gu")
	v.SetDefault("region", "")

	v.SetDefault("sharedSecret", "")
	v.SetDefault("profileCollection", "users")
	v.SetDefault("canonicalField", "studentId")
	v.SetDefault("legacyField", "studentNumber")
	v.SetDefault("migrationCollections", "users,students")
	v.SetDefault("notificationCollection", "notifications")
	v.SetDefault("callbackBaseURL", "")
	v.SetDefault("allowEmulatorWrites", false)
	v.SetDefault("watchNotifications", true)

	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("push.url", "https://exp.host/--/api/v2/push/send")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.allowedOrigins", "*")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "internquest")
	v.SetDefault("database.user", "internquest")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "internquest")

	v.SetDefault("mail.host", "https://api.sendgrid.com")
	v.SetDefault("mail.port", 0)
	v.SetDefault("mail.user", "apikey")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "noreply@localhost")
}

// NewConfig loads the configuration of the current ENV (DEV by default) from the environment
// and from the optional `config/.env.<env>` file of the working directory.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:       env,
		Build:     v.GetString("build"),
		Debug:     v.GetBool("debug"),
		TestMode:  v.GetBool("testMode"),
		AppName:   v.GetString("appName"),
		SecretKey: v.GetString("secretKey"),
		Region:    v.GetString("region"),

		SharedSecret:           v.GetString("sharedSecret"),
		ProfileCollection:      v.GetString("profileCollection"),
		CanonicalField:         v.GetString("canonicalField"),
		LegacyField:            v.GetString("legacyField"),
		MigrationCollections:   splitList(v.GetString("migrationCollections")),
		NotificationCollection: v.GetString("notificationCollection"),
		CallbackBaseURL:        v.GetString("callbackBaseURL"),
		AllowEmulatorWrites:    v.GetBool("allowEmulatorWrites"),
		WatchNotifications:     v.GetBool("watchNotifications"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              v.GetString("rollbarToken"),
		PushURL:                   v.GetString("push.url"),

		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			AllowedOrigins:     splitList(v.GetString("server.allowedOrigins")),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Mail: MailConfig{
			Host:     v.GetString("mail.host"),
			Port:     v.GetInt("mail.port"),
			User:     v.GetString("mail.user"),
			Password: v.GetString("mail.password"),
			From:     v.GetString("mail.from"),
		},
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanString(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}
