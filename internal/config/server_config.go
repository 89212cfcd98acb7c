package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"golang.org/x/term"
)

const (
	// DefaultConfigPath is used when --config is not given
	DefaultConfigPath = "/etc/automated-fund-transfer/config.toml"

	// EnvPrefix prefixes environment overrides, e.g. AFT_RPC_PROVIDER
	EnvPrefix = "AFT"
	// EnvFileVar names an optional dotenv file loaded before the environment is read
	EnvFileVar = "AFT_ENV_FILE"

	ChainSolana = "solana"
	ChainEVM    = "evm"

	// DefaultSolThreshold is one week worth of vote fees
	DefaultSolThreshold = 7.0
	// DefaultPollIntervalSeconds checks every 4 hours to keep transfer fees low
	DefaultPollIntervalSeconds = 14_400

	redacted = "[REDACTED]"
)

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type Confirm struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type Email struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Enabled reports whether enough is configured to send mail
func (e Email) Enabled() bool {
	return e.Host != "" && e.From != "" && len(e.To) > 0
}

type Logger struct {
	Level              zerolog.Level `mapstructure:"-"`
	PrettyPrintConsole bool          `mapstructure:"-"`
}

// Server is the complete daemon configuration. It is loaded once and never reloaded.
type Server struct {
	SenderKeypair         string  `mapstructure:"sender_keypair"`
	SenderKeypairPassword string  `mapstructure:"sender_keypair_password"`
	ReceiverPubkey        string  `mapstructure:"receiver_pubkey"`
	RPCProvider           string  `mapstructure:"rpc_provider"`
	SlackWebhook          string  `mapstructure:"slack_webhook"`
	SolThreshold          float64 `mapstructure:"sol_threshold"`
	PollIntervalSeconds   uint64  `mapstructure:"poll_interval_seconds"`
	PollIntervalDays      float64 `mapstructure:"poll_interval_days"`

	Chain      string `mapstructure:"chain"`
	EVMChainID int64  `mapstructure:"evm_chain_id"`

	DryRun        bool          `mapstructure:"dry_run"`
	NotifySkipped bool          `mapstructure:"notify_skipped"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
	Retry         Retry         `mapstructure:"retry"`
	Confirm       Confirm       `mapstructure:"confirm"`
	Email         Email         `mapstructure:"email"`

	ManagementListenAddress string        `mapstructure:"management_listen_address"`
	ShutdownTimeout         time.Duration `mapstructure:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	Logger Logger `mapstructure:"-"`
}

// PollInterval is the time between two balance observations. poll_interval_days wins when set.
func (s Server) PollInterval() time.Duration {
	if s.PollIntervalDays > 0 {
		return time.Duration(s.PollIntervalDays * float64(24*time.Hour))
	}

	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// RPCProviders splits rpc_provider into its endpoints in failover order
func (s Server) RPCProviders() []string {
	var urls []string
	for _, url := range strings.Split(s.RPCProvider, ",") {
		if url = strings.TrimSpace(url); url != "" {
			urls = append(urls, url)
		}
	}

	return urls
}

// Redacted returns a copy that is safe to log
func (s Server) Redacted() Server {
	if s.SenderKeypair != "" {
		s.SenderKeypair = redacted
	}
	if s.SenderKeypairPassword != "" {
		s.SenderKeypairPassword = redacted
	}
	if s.SlackWebhook != "" {
		s.SlackWebhook = redacted
	}
	if s.Email.Password != "" {
		s.Email.Password = redacted
	}

	return s
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sender_keypair", "")
	v.SetDefault("sender_keypair_password", "")
	v.SetDefault("receiver_pubkey", "")
	v.SetDefault("rpc_provider", "")
	v.SetDefault("slack_webhook", "")
	v.SetDefault("sol_threshold", DefaultSolThreshold)
	v.SetDefault("poll_interval_seconds", DefaultPollIntervalSeconds)
	v.SetDefault("poll_interval_days", 0)
	v.SetDefault("chain", ChainSolana)
	v.SetDefault("evm_chain_id", 0)
	v.SetDefault("dry_run", false)
	v.SetDefault("notify_skipped", false)
	v.SetDefault("submit_timeout", 30*time.Second)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("confirm.timeout", 90*time.Second)
	v.SetDefault("confirm.poll_interval", 2*time.Second)
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.to", []string{})
	v.SetDefault("management_listen_address", "")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log_level", zerolog.InfoLevel.String())
	// log_pretty has no default so an unset value can fall back to terminal detection
	_ = v.BindEnv("log_pretty")
}

// Load reads the TOML file at path, applies AFT_ environment overrides and validates the result
func Load(path string) (Server, error) {
	if envFile := os.Getenv(EnvFileVar); envFile != "" {
		if err := gotenv.Load(envFile); err != nil {
			return Server{}, errors.Wrapf(err, "failed to load env file %s", envFile)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Server{}, errors.Wrapf(err, "failed to read config file %s", path)
	}

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return Server{}, errors.Wrap(err, "failed to parse config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return Server{}, errors.Wrapf(err, "invalid log_level %q", cfg.LogLevel)
	}
	cfg.Logger.Level = level

	cfg.Logger.PrettyPrintConsole = cfg.LogPretty
	if !v.IsSet("log_pretty") {
		cfg.Logger.PrettyPrintConsole = term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}

	return cfg, nil
}

// Validate checks the fields the transfer loop cannot run without
func (s Server) Validate() error {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(s.SenderKeypair, "sender_keypair"),
		vala.StringNotEmpty(s.ReceiverPubkey, "receiver_pubkey"),
		vala.StringNotEmpty(s.RPCProvider, "rpc_provider"),
		oneOf(s.Chain, "chain", ChainSolana, ChainEVM),
		nonNegative(s.SolThreshold, "sol_threshold"),
		nonNegative(s.PollIntervalDays, "poll_interval_days"),
		positiveDuration(s.PollInterval(), "poll_interval_seconds"),
		vala.GreaterThan(s.Retry.MaxAttempts, 0, "retry.max_attempts"),
		positiveDuration(s.Retry.BaseDelay, "retry.base_delay"),
		atLeast(s.Retry.Multiplier, 1, "retry.multiplier"),
		positiveDuration(s.Retry.MaxDelay, "retry.max_delay"),
		nonNegativeDuration(s.Confirm.Timeout, "confirm.timeout"),
		positiveDuration(s.Confirm.PollInterval, "confirm.poll_interval"),
		nonNegativeDuration(s.SubmitTimeout, "submit_timeout"),
	).Check()
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}

	if len(s.RPCProviders()) == 0 {
		return errors.New("invalid config: rpc_provider lists no endpoint")
	}

	return nil
}

func oneOf(value string, name string, allowed ...string) vala.Checker {
	return func() (bool, string) {
		for _, a := range allowed {
			if value == a {
				return true, ""
			}
		}
		return false, fmt.Sprintf("Parameter was not one of %v: %s", allowed, name)
	}
}

func nonNegative(value float64, name string) vala.Checker {
	return func() (bool, string) {
		return value >= 0, fmt.Sprintf("Parameter was negative: %s", name)
	}
}

func atLeast(value float64, minimum float64, name string) vala.Checker {
	return func() (bool, string) {
		return value >= minimum, fmt.Sprintf("Parameter was less than %v: %s", minimum, name)
	}
}

func positiveDuration(value time.Duration, name string) vala.Checker {
	return func() (bool, string) {
		return value > 0, fmt.Sprintf("Parameter was not a positive duration: %s", name)
	}
}

func nonNegativeDuration(value time.Duration, name string) vala.Checker {
	return func() (bool, string) {
		return value >= 0, fmt.Sprintf("Parameter was a negative duration: %s", name)
	}
}
