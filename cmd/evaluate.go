package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ecodeclub/ekit/slice"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/extract"
	"github.com/spigell/resume-matcher/internal/fields"
	"github.com/spigell/resume-matcher/internal/history"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/pipeline"
	"github.com/spigell/resume-matcher/internal/scoring"
)

const (
	PromptReportSummary   = "Report summary"
	PromptReportRanking   = "Report ranking"
	PromptReportFailed    = "Report failed resumes"
	PromptResultsToFile   = "Dump results to file"
	PromptAppendToHistory = "Append evaluations to history file"
	PromptExit            = "Exit"
)

var errExit = errors.New("exit requested")

var evaluateCmd = &cobra.Command{
	Use:    "evaluate [resume files or directories...]",
	Short:  "Parse resumes and score them against the configured job description",
	Args:   cobra.MinimumNArgs(1),
	PreRun: bindResultFlags,
	Run: func(cmd *cobra.Command, args []string) {
		evaluate(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	addResultFlags(evaluateCmd)
}

// addResultFlags registers the flags shared by the commands that produce
// evaluations.
func addResultFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("auto-approve", "y", false, "do not ask for an action, write the results and the history and exit")
	cmd.Flags().StringP("output", "o", "", "file for the JSON results. Default is a temporary file.")
	cmd.Flags().String("job-file", "", "job description file (text or JSON)")
	cmd.Flags().StringP("history-file", "H", "", "file with the evaluation history. Default is unset.")
}

// bindResultFlags binds the flags of the running command only, since viper
// keeps a single flag per key.
func bindResultFlags(cmd *cobra.Command, _ []string) {
	viper.BindPFlag("output", cmd.Flags().Lookup("output"))
	viper.BindPFlag("job.file", cmd.Flags().Lookup("job-file"))
	viper.BindPFlag("history-file", cmd.Flags().Lookup("history-file"))
}

func evaluate(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the resume-matcher", zap.String("version", version))

	paths, err := collectResumes(args)
	if err != nil {
		logger.Fatal("collecting resume files", zap.Error(err))
	}

	if len(paths) == 0 {
		logger.Info("exiting", zap.String("reason", "no resume files found"), zap.Strings("supported", extract.Supported))
		return
	}

	job, err := loadJob(config.Job)
	if err != nil {
		logger.Fatal("loading the job description", zap.Error(err))
	}

	if job.Empty() {
		logger.Info("no job description configured, resumes will be parsed without scoring",
			zap.String("hint", "set job.text or job.file in the configuration file"),
		)
	}

	p, err := newPipeline(config, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	logger.Info("evaluating resumes", zap.Int("count", len(paths)))

	outcomes, err := p.RunBatch(ctx, paths, job)
	if err != nil {
		logger.Fatal("evaluation failed", zap.Error(err))
	}

	review(cmd, config, outcomes, logger)
}

// review writes the results and then either records them right away
// (auto-approve) or asks what to do next.
func review(cmd *cobra.Command, config *Config, outcomes []pipeline.Outcome, logger *zap.Logger) {
	filename, err := dumpOutcomes(config.Output, outcomes)
	if err != nil {
		logger.Fatal("writing results", zap.Error(err))
	}
	logger.Info("results written", zap.String("filename", filename))

	if cmd.Flag("auto-approve").Value.String() == "true" {
		if config.HistoryFile != "" {
			if err := appendHistory(config.HistoryFile, outcomes, logger); err != nil {
				logger.Fatal("appending to history", zap.Error(err))
			}
		}
		reportSummary(outcomes, logger)
		return
	}

	items := []string{PromptReportSummary, PromptReportRanking, PromptReportFailed, PromptResultsToFile}
	if config.HistoryFile != "" {
		items = append(items, PromptAppendToHistory)
	}

	prompt := promptui.Select{
		Label: "What next?",
		Items: append(items, PromptExit),
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, config, outcomes, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, config *Config, outcomes []pipeline.Outcome, logger *zap.Logger) error {
	switch action {
	case PromptReportSummary:
		reportSummary(outcomes, logger)
		return nil
	case PromptReportRanking:
		pretty, _ := json.MarshalIndent(rank(outcomes), "", "  ")
		logger.Info(string(pretty))
		return nil
	case PromptReportFailed:
		for _, o := range outcomes {
			if !o.Succeeded() {
				logger.Info("failed resume", zap.String("file", o.File), zap.String("error", o.Error))
			}
		}
		return nil
	case PromptResultsToFile:
		filename, err := dumpOutcomes("", outcomes)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToHistory:
		return appendHistory(config.HistoryFile, outcomes, logger)
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func newPipeline(config *Config, logger *zap.Logger) (*pipeline.Pipeline, error) {
	gateway, err := newGateway(config.AI, logger)
	if err != nil {
		return nil, err
	}

	weights := scoring.Weights{}
	for name, w := range config.Weights {
		weights[name] = w
	}

	return pipeline.New(gateway, extract.New(logger), pipeline.Config{
		Model:         config.AI.Gemini.Model,
		APIKey:        strings.TrimSpace(viper.GetString("api-key")),
		Weights:       weights,
		Workers:       config.Workers,
		MinTextLength: config.MinTextLength,
	}, logger), nil
}

// collectResumes expands directories into the supported files they contain.
// Explicit file arguments are kept as given.
func collectResumes(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && slice.Contains(extract.Supported, strings.ToLower(filepath.Ext(path))) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}

		slices.Sort(found)
		paths = append(paths, found...)
	}

	return paths, nil
}

// dumpOutcomes writes the outcome records as a JSON array. An empty path
// means a new temporary file. The name of the written file is returned.
func dumpOutcomes(path string, outcomes []pipeline.Outcome) (string, error) {
	var (
		file *os.File
		err  error
	)
	if path == "" {
		file, err = os.CreateTemp("", "evaluations_*.json")
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcomes); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func appendHistory(path string, outcomes []pipeline.Outcome, logger *zap.Logger) error {
	store, err := history.Load(path)
	if err != nil {
		return err
	}

	added := store.Append(outcomes)

	if err := store.ToFile(path); err != nil {
		return err
	}

	logger.Info("appended to history file",
		zap.String("filename", path),
		zap.Int("evaluations", added),
		zap.Int("candidates", store.Len()),
	)
	return nil
}

type rankItem struct {
	File  string  `json:"file"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// rank lists the scored outcomes, best first.
func rank(outcomes []pipeline.Outcome) []rankItem {
	items := make([]rankItem, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Succeeded() || o.Evaluation == nil {
			continue
		}
		name, _ := o.Resume.Get("name")
		items = append(items, rankItem{
			File:  o.File,
			Name:  fields.String(name),
			Score: o.Evaluation.Score,
		})
	}

	slices.SortStableFunc(items, func(a, b rankItem) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return items
}

func reportSummary(outcomes []pipeline.Outcome, logger *zap.Logger) {
	summary := pipeline.Summarize(outcomes)
	logger.Info("summary",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
}
