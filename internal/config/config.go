package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cesilk/comfy-nodes/internal/templates"
	"github.com/cesilk/comfy-nodes/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	MQTypeInMemory = "inmemory"
	MQTypePulsar   = "pulsar"
)

const cesilkPrefix = "CESILK"

type Config struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	CesilkHome      string        `mapstructure:"cesilk_home"`
	Environment     string        `mapstructure:"environment"`
	OutputDir       string        `mapstructure:"output_dir"`
	DisableMetadata bool          `mapstructure:"disable_metadata"`
	S3              *S3Config     `mapstructure:"s3"`
	GDrive          *GDriveConfig `mapstructure:"gdrive"`
	OpenAI          *OpenAIConfig `mapstructure:"openai"`
	DB              *DBConfig     `mapstructure:"db"`
	MQ              *MQConfig     `mapstructure:"mq"`
	Pulsar          *PulsarConfig `mapstructure:"pulsar"`
}

type S3Config struct {
	Profile     string `mapstructure:"profile"`
	Region      string `mapstructure:"region_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

type GDriveConfig struct {
	RootID          string `mapstructure:"root_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type MQConfig struct {
	Type    string `mapstructure:"type"`
	MaxSize int    `mapstructure:"max_size"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

var config *Config

// LoadEnvAndConfigFiles resolves the cesilk home directory, creates the default
// .env and config.yaml files when they are missing and loads both into viper.
func LoadEnvAndConfigFiles() error {
	cesilkHome, err := getCesilkHome()
	if err != nil {
		return err
	}

	if err := createCesilkHomeDirs(cesilkHome); err != nil {
		return err
	}

	outputDir, err := getOutputDir(cesilkHome)
	if err != nil {
		return err
	}

	viper.Set("cesilk_home", cesilkHome)
	viper.Set("output_dir", outputDir)

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(cesilkHome, ".env")
	}

	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(cesilkHome, "config.yaml")
	}

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	viper.SetConfigFile(configFile)
	bindEnvs()
	setDefaults(cesilkHome)

	if err := LoadConfig(true); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	config = &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	return nil
}

func IsLoaded() bool {
	return config != nil
}

func MustGetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

// SetConfig replaces the loaded configuration. Used by tests and embedders that
// build a Config by hand instead of reading it from disk.
func SetConfig(cfg *Config) {
	config = cfg
}

func bindEnvs() {
	// Core settings, CESILK_ prefix
	viper.BindEnv("port")
	viper.BindEnv("host")
	viper.BindEnv("environment")
	viper.BindEnv("output_dir")
	viper.BindEnv("disable_metadata")

	viper.BindEnv("db.driver")
	viper.BindEnv("db.dsn")
	viper.BindEnv("mq.type")
	viper.BindEnv("mq.max_size")
	viper.BindEnv("pulsar.url")

	viper.BindEnv("s3.access_key")
	viper.BindEnv("s3.secret_key")
	viper.BindEnv("s3.endpoint_url")
	viper.BindEnv("gdrive.credentials_file")
	viper.BindEnv("gdrive.token_file")

	// Shared with other tools, no prefix
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("gdrive.root_id", "GDRIVE_ROOT_ID")
	viper.BindEnv("s3.profile", "AWS_PROFILE")
	viper.BindEnv("s3.region_name", "AWS_REGION")
}

func setDefaults(cesilkHome string) {
	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("host", DefaultHost)
	viper.SetDefault("environment", "dev")
	viper.SetDefault("disable_metadata", false)

	viper.SetDefault("s3.profile", DefaultS3Profile)
	viper.SetDefault("s3.region_name", DefaultS3Region)

	viper.SetDefault("gdrive.credentials_file", filepath.Join(cesilkHome, "credentials.json"))
	viper.SetDefault("gdrive.token_file", filepath.Join(cesilkHome, "token.json"))

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", fmt.Sprintf("file:%s?cache=shared", filepath.Join(cesilkHome, "cesilk.db")))
	viper.SetDefault("mq.type", MQTypeInMemory)
	viper.SetDefault("mq.max_size", DefaultQueueSize)
}

// Returns the cesilk home directory path.
// It attempts to retrieve the cesilk home directory from the following sources in order:
// 1. The `cesilk_home` flag from viper.
// 2. The `CESILK_HOME` environment variable.
// 3. The default cesilk home directory.
func getCesilkHome() (string, error) {
	cesilkHome := viper.GetString("cesilk_home")
	if cesilkHome == "" {
		cesilkHome = os.Getenv("CESILK_HOME")
		if cesilkHome == "" {
			cesilkHome = DefaultCesilkHome
		}
	}

	cesilkHome, err := pathutil.ExpandPath(cesilkHome)
	if err != nil {
		return "", fmt.Errorf("failed to expand cesilk home path: %w", err)
	}

	return cesilkHome, nil
}

func getOutputDir(cesilkHome string) (string, error) {
	if cesilkHome == "" {
		return "", ErrCesilkHomeNotSet
	}

	outputDir := viper.GetString("output_dir")
	if outputDir == "" {
		outputDir = filepath.Join(cesilkHome, "output")
	}

	outputDir, err := pathutil.ExpandPath(outputDir)
	if err != nil {
		return "", ErrCesilkHomeExpandFailed
	}

	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output directory: %w", err)
	}

	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	return outputDir, nil
}

func createCesilkHomeDirs(cesilkHome string) error {
	if err := os.MkdirAll(cesilkHome, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create cesilk home directory: %w", err)
	}

	return nil
}

func init() {
	viper.SetEnvPrefix(cesilkPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`, `.`, `_`))
	viper.AutomaticEnv()
}
