package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"reparto-backend/internal/reporter"
)

// Agent configures cmd/reporter, the device-side position agent.
type Agent struct {
	ServerURL string
	Token     string
	LogLevel  string
	Report    reporter.Config
}

func LoadAgent() (*Agent, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.SetDefault("SERVER_URL", "http://localhost:8080")
	v.AutomaticEnv()
	return agentFromViper(v)
}

func agentFromViper(v *viper.Viper) (*Agent, error) {
	a := &Agent{
		ServerURL: strings.TrimRight(v.GetString("SERVER_URL"), "/"),
		Token:     v.GetString("COURIER_TOKEN"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		Report: reporter.Config{
			Interval:         v.GetDuration("REPORT_INTERVAL"),
			GoodAccuracy:     v.GetFloat64("REPORT_GOOD_ACCURACY"),
			DegradedAccuracy: v.GetFloat64("REPORT_DEGRADED_ACCURACY"),
		},
	}
	if a.Token == "" {
		return nil, errors.New("COURIER_TOKEN is required")
	}
	return a, nil
}
