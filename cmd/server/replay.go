package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/freshness-monitor/backend/internal/config"
	"github.com/freshness-monitor/backend/internal/evaluator"
	"github.com/freshness-monitor/backend/internal/ingest"
	"github.com/freshness-monitor/backend/internal/logging"
	"github.com/freshness-monitor/backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// maxLineSize bounds a single JSON line in a replay file.
const maxLineSize = 1 << 20

func replayCmd() *cobra.Command {
	var (
		file       string
		thresholds string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Evaluate a file of recorded readings offline",
		Long: `Reads one JSON reading per line and writes one JSON result per line to
stdout. Lines that cannot be decoded are reported on stderr and skipped.
Use --file - to read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.NewWithOutput(cmd.ErrOrStderr(), logLevel, "text")
			if err != nil {
				log.WithError(err).Warn("falling back to info level")
			}

			profiles := models.DefaultProfiles()
			if thresholds != "" {
				if profiles, err = config.LoadThresholds(thresholds, profiles); err != nil {
					return err
				}
			}

			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open replay file: %w", err)
				}
				defer f.Close()
				in = f
			}

			evaluated, skipped, err := runReplay(in, cmd.OutOrStdout(), evaluator.New(profiles, evaluator.DefaultPolicy()), log)
			log.WithFields(logrus.Fields{
				"evaluated": evaluated,
				"skipped":   skipped,
			}).Info("replay finished")
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON lines file of readings")
	cmd.Flags().StringVar(&thresholds, "thresholds", "", "YAML file overriding channel defaults")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level for diagnostics on stderr")
	return cmd
}

// runReplay feeds every line of in through the engine in order.
func runReplay(in io.Reader, out io.Writer, engine *evaluator.Engine, log logrus.FieldLogger) (evaluated, skipped int, err error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(out)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		reading, err := ingest.Decode(data)
		if err == nil {
			var result *models.Result
			if result, err = engine.Evaluate(reading); err == nil {
				if err := enc.Encode(result); err != nil {
					return evaluated, skipped, fmt.Errorf("failed to write result: %w", err)
				}
				evaluated++
				continue
			}
		}
		log.WithError(err).WithField("line", line).Warn("skipping reading")
		skipped++
	}
	if err := scanner.Err(); err != nil {
		return evaluated, skipped, fmt.Errorf("failed to read replay input: %w", err)
	}
	return evaluated, skipped, nil
}
