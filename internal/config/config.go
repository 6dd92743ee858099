package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type IdentityConfig struct {
	AuthURL      string
	CallbackHost string
	CallbackPort int
	// PopupTTL is how long the callback listener stays up after a terminal
	// signal before it shuts itself down.
	PopupTTL time.Duration
	// LoginTimeout bounds how long one login attempt waits for a signal.
	LoginTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StateConfig struct {
	// Dir holds the credential file and the signal flag file. Plays the
	// role browser storage plays for a web client.
	Dir string
	// FlagPollInterval is how often the signal listener checks the flag
	// file for a change.
	FlagPollInterval time.Duration
}

type RoutesConfig struct {
	Landing           string
	Login             string
	Dashboard         string
	StudentOnboarding string
	TutorPayment      string
	TutorDetails      string
	TutorDocuments    string
	ContentPrefix     string
	GenerationPrefix  string
}

type RefreshConfig struct {
	// Lead is how far before access-token expiry the background job
	// refreshes proactively.
	Lead          time.Duration
	CheckSchedule string
}

type AppConfig struct {
	Environment string
	Backend     BackendConfig
	Identity    IdentityConfig
	Redis       RedisConfig
	State       StateConfig
	Routes      RoutesConfig
	Refresh     RefreshConfig
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("OPENEDU")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("backend.baseurl", "http://localhost:4000/api/v1")
	v.SetDefault("backend.requesttimeout", "15s")

	v.SetDefault("identity.authurl", "http://localhost:4000/auth/google")
	v.SetDefault("identity.callbackhost", "127.0.0.1")
	v.SetDefault("identity.callbackport", 8975)
	v.SetDefault("identity.popupttl", "3s")
	v.SetDefault("identity.logintimeout", "5m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("state.flagpollinterval", "500ms")

	v.SetDefault("routes.landing", "/")
	v.SetDefault("routes.login", "/login")
	v.SetDefault("routes.dashboard", "/dashboard")
	v.SetDefault("routes.studentonboarding", "/student/onboarding")
	v.SetDefault("routes.tutorpayment", "/tutor/onboarding/payment")
	v.SetDefault("routes.tutordetails", "/tutor/onboarding/details")
	v.SetDefault("routes.tutordocuments", "/tutor/onboarding/documents")
	v.SetDefault("routes.contentprefix", "/courses")
	v.SetDefault("routes.generationprefix", "/courses/generate")

	v.SetDefault("refresh.lead", "2m")
	v.SetDefault("refresh.checkschedule", "*/30 * * * * *")

	if home, err := os.UserHomeDir(); err == nil {
		v.SetDefault("state.dir", filepath.Join(home, ".openedu"))
	} else {
		v.SetDefault("state.dir", ".openedu")
	}
}
