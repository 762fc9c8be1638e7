package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths         PathsConfig         `mapstructure:"paths"`
	WordPiece     WordPieceConfig     `mapstructure:"wordpiece"`
	SentencePiece SentencePieceConfig `mapstructure:"sentencepiece"`
	Server        ServerConfig        `mapstructure:"server"`
	LogLevel      string              `mapstructure:"log_level"`
}

type PathsConfig struct {
	VocabPath string `mapstructure:"vocab_path"`
	ModelPath string `mapstructure:"model_path"`
}

type WordPieceConfig struct {
	Lowercase    bool `mapstructure:"lowercase"`
	StripAccents bool `mapstructure:"strip_accents"`
	CacheSize    int  `mapstructure:"cache_size"`
}

type SentencePieceConfig struct {
	Engine string `mapstructure:"engine"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			VocabPath: "models/vocab.txt",
			ModelPath: "models/tokenizer.model",
		},
		WordPiece: WordPieceConfig{
			Lowercase:    true,
			StripAccents: true,
			CacheSize:    4096,
		},
		SentencePiece: SentencePieceConfig{
			Engine: "auto",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxTextBytes:    64 * 1024,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each flag registered by RegisterFlags to its config key.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"vocab", "paths.vocab_path"},
	{"model", "paths.model_path"},
	{"lowercase", "wordpiece.lowercase"},
	{"strip-accents", "wordpiece.strip_accents"},
	{"cache-size", "wordpiece.cache_size"},
	{"engine", "sentencepiece.engine"},
	{"listen-addr", "server.listen_addr"},
	{"max-text-bytes", "server.max_text_bytes"},
	{"shutdown-timeout", "server.shutdown_timeout"},
	{"log-level", "log_level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("vocab", defaults.Paths.VocabPath, "Path to WordPiece vocab.txt")
	fs.String("model", defaults.Paths.ModelPath, "Path to SentencePiece model")
	fs.Bool("lowercase", defaults.WordPiece.Lowercase, "Lowercase text before WordPiece splitting")
	fs.Bool("strip-accents", defaults.WordPiece.StripAccents, "Strip accents before WordPiece splitting")
	fs.Int("cache-size", defaults.WordPiece.CacheSize, "WordPiece token cache entries in the server (0 disables)")
	fs.String("engine", defaults.SentencePiece.Engine, "SentencePiece engine (auto|unigram)")
	fs.String("listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("CURATEDTOK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("curatedtok")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", fk.flag, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.vocab_path", c.Paths.VocabPath)
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("wordpiece.lowercase", c.WordPiece.Lowercase)
	v.SetDefault("wordpiece.strip_accents", c.WordPiece.StripAccents)
	v.SetDefault("wordpiece.cache_size", c.WordPiece.CacheSize)
	v.SetDefault("sentencepiece.engine", c.SentencePiece.Engine)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}
