package cmd

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/resume-matcher/internal/ai/gemini"
	"github.com/spigell/resume-matcher/internal/pipeline"
)

const (
	app = "resume-matcher"
)

type Config struct {
	AI            *AIConfig          `mapstructure:"ai"`
	Job           *JobConfig         `mapstructure:"job"`
	Weights       map[string]float64 `mapstructure:"weights"`
	Workers       int                `mapstructure:"workers"`
	MinTextLength int                `mapstructure:"min-text-length"`
	Output        string             `mapstructure:"output"`
	HistoryFile   string             `mapstructure:"history-file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	Model        string        `mapstructure:"model"`
	MaxRetries   int           `mapstructure:"max-retries"`
	BaseDelay    time.Duration `mapstructure:"base-delay"`
	MaxDelay     time.Duration `mapstructure:"max-delay"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

// JobConfig holds the job description, either inline or as a path to a text
// or JSON file.
type JobConfig struct {
	Text string `mapstructure:"text"`
	File string `mapstructure:"file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-matcher parses resumes with an LLM and scores them against a job description",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	viper.SetDefault("ai.provider", gemini.Provider)
	viper.SetDefault("ai.gemini.max-retries", gemini.DefaultMaxRetries)
	viper.SetDefault("ai.gemini.base-delay", gemini.DefaultBaseDelay)
	viper.SetDefault("ai.gemini.max-delay", gemini.DefaultMaxDelay)
	viper.SetDefault("ai.gemini.max-log-length", 200)
	viper.SetDefault("workers", pipeline.DefaultWorkers)
	viper.SetDefault("min-text-length", pipeline.DefaultMinTextLength)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("api-key", "", "gemini api key for this run, overrides the configured one")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("api-key", rootCmd.PersistentFlags().Lookup("api-key"))
}

func initConfig() {
	// Variables already present in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every key has a default or a flag, so running without a config file is fine.
	// A config file that exists but does not parse is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Job == nil {
		config.Job = &JobConfig{}
	}

	return config, nil
}
