package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/history"
	"github.com/spigell/resume-matcher/internal/logger"
)

var rescoreCmd = &cobra.Command{
	Use:    "rescore",
	Short:  "Score the resumes kept in the history file against the configured job description",
	Args:   cobra.NoArgs,
	PreRun: bindResultFlags,
	Run: func(cmd *cobra.Command, _ []string) {
		rescore(cmd)
	},
}

func init() {
	rootCmd.AddCommand(rescoreCmd)

	addResultFlags(rescoreCmd)
}

// rescore runs the stored resumes through scoring only. Their text is not
// extracted and they are not parsed by the model again.
func rescore(cmd *cobra.Command) {
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

	if config.HistoryFile == "" {
		logger.Fatal("history file is required",
			zap.String("hint", "set history-file in the configuration file or pass --history-file"),
		)
	}

	store, err := history.Load(config.HistoryFile)
	if err != nil {
		logger.Fatal("loading the history file", zap.Error(err))
	}

	if store.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no resumes in the history file"))
		return
	}

	job, err := loadJob(config.Job)
	if err != nil {
		logger.Fatal("loading the job description", zap.Error(err))
	}

	p, err := newPipeline(config, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	logger.Info("rescoring stored resumes", zap.Int("count", store.Len()))

	outcomes, err := p.RescoreBatch(ctx, store.Resumes(), job)
	if err != nil {
		logger.Fatal("rescoring failed", zap.Error(err))
	}

	review(cmd, config, outcomes, logger)
}
