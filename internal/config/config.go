package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultSanctionedCountries is the OFAC comprehensive-sanctions list payouts are withheld for.
var defaultSanctionedCountries = []string{"BY", "CU", "IR", "KP", "RU", "SY", "VE"}

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	RabbitMQURL         string
	WiseAPIURL          string
	WiseAPIKey          string
	WiseProfileID       string
	StripeSecretKey     string
	StripeWebhookSecret string
	FrontendURLEndsWith string // CORS origin suffix
	SendinblueAPIKey    string // SENDINBLUE_API_KEY for payout notification emails (Brevo)
	MailFrom            string
	HealthAdminKey      string
	SanctionedCountries []string
	LockTTL             time.Duration
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetDefault("LOCK_TTL_SECONDS", 300)
	viper.SetDefault("WISE_API_URL", "https://api.sandbox.transferwise.tech")

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	return &Config{
		Env:                 env,
		Port:                port,
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		RabbitMQURL:         viper.GetString("RABBITMQ_URL"),
		WiseAPIURL:          viper.GetString("WISE_API_URL"),
		WiseAPIKey:          viper.GetString("WISE_API_KEY"),
		WiseProfileID:       viper.GetString("WISE_PROFILE_ID"),
		StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		SendinblueAPIKey:    viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		SanctionedCountries: sanctionedCountries(viper.GetString("SANCTIONED_COUNTRIES")),
		LockTTL:             time.Duration(viper.GetInt("LOCK_TTL_SECONDS")) * time.Second,
	}, nil
}

func sanctionedCountries(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return append([]string(nil), defaultSanctionedCountries...)
	}
	var out []string
	for _, c := range strings.Split(s, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
