package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Match    MatchConfig    `mapstructure:"match"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress  string `mapstructure:"http_address"`
	RPCAddress   string `mapstructure:"rpc_address"`
	MatchMaxSize int    `mapstructure:"match_max_size"`
}

type DatabaseConfig struct {
	// Driver selects the match result store: "gorm", "postgres" or "memory".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// MatchConfig holds the timing and economy knobs shared by every peer of a match.
type MatchConfig struct {
	ExpectedPlayers  int           `mapstructure:"expected_players"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	MoveDuration     time.Duration `mapstructure:"move_duration"`
	AttackDuration   time.Duration `mapstructure:"attack_duration"`
	GoldInterval     time.Duration `mapstructure:"gold_interval"`
	StartingGold     int           `mapstructure:"starting_gold"`
	MaxGold          int           `mapstructure:"max_gold"`
	HandSize         int           `mapstructure:"hand_size"`
	ShuffleDecks     bool          `mapstructure:"shuffle_decks"`
	MaxDisplaceDepth int           `mapstructure:"max_displace_depth"`
}

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	SocketURL      string        `mapstructure:"socket_url"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	DeviceID       string        `mapstructure:"device_id"`
	Username       string        `mapstructure:"username"`
	RewardAttempts int           `mapstructure:"reward_attempts"`
	RewardBackoff  time.Duration `mapstructure:"reward_backoff"`
	PlayInterval   time.Duration `mapstructure:"play_interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":7350")
	v.SetDefault("server.rpc_address", ":7349")
	v.SetDefault("server.match_max_size", 2)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "piratepanic")

	v.SetDefault("auth.signing_key", "defaultkey")
	v.SetDefault("auth.issuer", "piratepanic")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("match.expected_players", 2)
	v.SetDefault("match.tick_interval", "500ms")
	v.SetDefault("match.move_duration", "400ms")
	v.SetDefault("match.attack_duration", "300ms")
	v.SetDefault("match.gold_interval", "1s")
	v.SetDefault("match.starting_gold", 3)
	v.SetDefault("match.max_gold", 10)
	v.SetDefault("match.hand_size", 4)
	v.SetDefault("match.shuffle_decks", true)
	v.SetDefault("match.max_displace_depth", 4)

	v.SetDefault("client.server_url", "http://localhost:7350")
	v.SetDefault("client.socket_url", "ws://localhost:7350/ws")
	v.SetDefault("client.rpc_address", "localhost:7349")
	v.SetDefault("client.username", "pirate")
	v.SetDefault("client.reward_attempts", 5)
	v.SetDefault("client.reward_backoff", "1s")
	v.SetDefault("client.play_interval", "2s")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path, overlaid by PIRATEPANIC_* environment
// variables (a .env file in the working directory is loaded first). A missing
// config file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("piratepanic")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and no file or
// environment overlay.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
