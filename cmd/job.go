package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/fields"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/pipeline"
)

var parseJobCmd = &cobra.Command{
	Use:   "parse-job [job description file]",
	Short: "Parse a job description and print its structured form and scoring fields",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		parseJob(args)
	},
}

func init() {
	rootCmd.AddCommand(parseJobCmd)
}

type parsedJob struct {
	Title  string      `json:"title,omitempty"`
	Fields []string    `json:"fields"`
	Job    *fields.Map `json:"job"`
}

func parseJob(args []string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if len(args) == 1 {
		config.Job = &JobConfig{File: args[0]}
	}

	job, err := loadJob(config.Job)
	if err != nil {
		logger.Fatal("loading the job description", zap.Error(err))
	}

	if job.Empty() {
		logger.Fatal("job description is required",
			zap.String("hint", "pass a file or set job.text or job.file in the configuration file"),
		)
	}

	p, err := newPipeline(config, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	prepared, err := p.PrepareJob(context.Background(), job)
	if err != nil {
		logger.Fatal("parsing the job description", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(parsedJob{
		Title:  prepared.Title(),
		Fields: fields.JobFields(prepared.Fields),
		Job:    prepared.Fields,
	}, "", "  ")
	fmt.Println(string(pretty))
}

// loadJob reads the job description from the config. A .json file is taken
// as an already structured description; anything else is text for the model.
func loadJob(cfg *JobConfig) (*pipeline.Job, error) {
	if cfg == nil {
		return &pipeline.Job{}, nil
	}

	if cfg.File == "" {
		return &pipeline.Job{Text: strings.TrimSpace(cfg.Text)}, nil
	}

	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("reading job file %q: %w", cfg.File, err)
	}

	if strings.EqualFold(filepath.Ext(cfg.File), ".json") {
		doc, err := fields.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("decoding job file %q: %w", cfg.File, err)
		}
		return &pipeline.Job{Fields: doc}, nil
	}

	return &pipeline.Job{Text: strings.TrimSpace(string(data))}, nil
}
