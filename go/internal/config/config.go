package config

import (
	"os"
	"strconv"
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/session"
	"github.com/rs/zerolog"
)

// Question catalog sources
const (
	QuestionsFromFile     = "file"
	QuestionsFromPostgres = "postgres"
)

// Config holds the gateway server settings
type Config struct {
	Port            string
	NATSURL         string // empty disables the JetStream relay
	QuestionsSource string
	QuestionsPath   string
	// Seed makes pairing and tie-breaks reproducible; 0 seeds from the clock
	Seed     int64
	LogLevel zerolog.Level
	Timing   session.Timing
	// MaxPlayers caps rooms whose host sets no limit; 0 is unlimited
	MaxPlayers int
	// InstanceID names this gateway's relay consumer; empty picks a random one
	InstanceID string
}

// NewConfigFromEnv reads the environment, falling back to defaults
func NewConfigFromEnv() Config {
	defaults := session.DefaultTiming()

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	seed, err := strconv.ParseInt(getEnv("KNOCKOUT_SEED", "0"), 10, 64)
	if err != nil {
		seed = 0
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		NATSURL:         os.Getenv("NATS_URL"),
		QuestionsSource: getEnv("QUESTIONS_SOURCE", QuestionsFromFile),
		QuestionsPath:   getEnv("QUESTIONS_PATH", "go/internal/assets/questions.yaml"),
		Seed:            seed,
		LogLevel:        level,
		MaxPlayers:      max(getEnvAsInt("MAX_PLAYERS", 0), 0),
		InstanceID:      os.Getenv("GATEWAY_INSTANCE_ID"),
		Timing: session.Timing{
			Intro:        getEnvAsSeconds("INTRO_SECONDS", defaults.Intro),
			FinalsIntro:  getEnvAsSeconds("FINALS_INTRO_SECONDS", defaults.FinalsIntro),
			Countdown:    getEnvAsSeconds("COUNTDOWN_SECONDS", defaults.Countdown),
			Answer:       getEnvAsSeconds("ANSWER_SECONDS", defaults.Answer),
			Settle:       getEnvAsMillis("SETTLE_MS", defaults.Settle),
			Result:       getEnvAsMillis("RESULT_MS", defaults.Result),
			FinalsResult: getEnvAsMillis("FINALS_RESULT_MS", defaults.FinalsResult),
		},
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, int(defaultValue/time.Second))) * time.Second
}

func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, int(defaultValue/time.Millisecond))) * time.Millisecond
}
