package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type PostgreSQLConfig struct {
	DBHost     string
	DBName     string
	DBPort     string
	DBUsername string
	DBPassword string
}

type KafkaConfig struct {
	BrokerAddress string
	BrokerTopic   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Sender   string
	Password string
}

type TracingConfig struct {
	CollectorHost string
}

// GatewayConfig is the configuration slice the notification processor needs
// for one (method, store) pair: the signing secret, and whether and where to
// write the debug trail.
type GatewayConfig struct {
	SharedSecret string
	DebugEnabled bool
	LogFile      string
}

type Config struct {
	ServicePort      string
	MetricsPort      string
	Environment      string
	PostgreSQLConfig PostgreSQLConfig
	KafkaConfig      KafkaConfig
	SMTPConfig       SMTPConfig
	RatesServiceHost string
	TracingConfig    TracingConfig

	EMSSharedSecret string
	EMSDebug        bool
	EMSLogFile      string

	// Per-method secret overrides parsed from EMS_METHOD_SECRETS, e.g.
	// "ems_cc:s1,ems_klarna:s2".
	EMSMethodSecrets map[string]string
}

func CreateNewConfig() *Config {
	godotenv.Load(".env")

	conf := Config{
		ServicePort: os.Getenv("SERVICE_PORT"),
		MetricsPort: os.Getenv("METRICS_PORT"),
		Environment: os.Getenv("ENVIRONMENT"),
		PostgreSQLConfig: PostgreSQLConfig{
			DBHost:     os.Getenv("DB_HOST"),
			DBName:     os.Getenv("DB_NAME"),
			DBPort:     os.Getenv("DB_PORT"),
			DBUsername: os.Getenv("DB_USERNAME"),
			DBPassword: os.Getenv("DB_PASSWORD"),
		},
		KafkaConfig: KafkaConfig{
			BrokerAddress: os.Getenv("BROKER_ADDRESS"),
			BrokerTopic:   os.Getenv("BROKER_TOPIC"),
		},
		SMTPConfig: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     587,
			Sender:   os.Getenv("SMTP_SENDER"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		RatesServiceHost: os.Getenv("RATES_SERVICE_HOST"),
		TracingConfig: TracingConfig{
			CollectorHost: os.Getenv("COLLECTOR_HOST"),
		},
		EMSSharedSecret:  os.Getenv("EMS_SHARED_SECRET"),
		EMSDebug:         os.Getenv("EMS_DEBUG") == "true",
		EMSLogFile:       os.Getenv("EMS_LOG_FILE"),
		EMSMethodSecrets: parseMethodSecrets(os.Getenv("EMS_METHOD_SECRETS")),
	}

	if conf.EMSLogFile == "" {
		conf.EMSLogFile = "ems_pay.log"
	}

	return &conf
}

func parseMethodSecrets(raw string) map[string]string {
	secrets := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		code, secret, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		secrets[strings.TrimSpace(code)] = strings.TrimSpace(secret)
	}

	return secrets
}

// ConfigFor resolves the gateway configuration for a (method, store) pair.
// The processor calls it twice per run: once for the provisional defaults
// before the order is loaded, and again with the real method and store codes
// taken from the order.
func (c *Config) ConfigFor(methodCode, storeID string) GatewayConfig {
	return GatewayConfig{
		SharedSecret: c.SharedSecret(methodCode, storeID),
		DebugEnabled: c.EMSDebug,
		LogFile:      c.EMSLogFile,
	}
}

// SharedSecret satisfies the method package's SecretSource.
func (c *Config) SharedSecret(methodCode, storeID string) string {
	if secret, ok := c.EMSMethodSecrets[methodCode]; ok {
		return secret
	}

	return c.EMSSharedSecret
}
