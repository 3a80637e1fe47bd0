package ninactl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ninahq/nina/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Seed generates a dataset, posts it and verifies the reports respond.
func Seed(ctx context.Context, c *Client, cfg SeedConfig, at time.Time, out io.Writer) (*Stats, error) {
	log := logger.Named("seed")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting nina seed",
		logger.Int("directors", cfg.Directors),
		logger.Int("leadersPerDirector", cfg.LeadersPerDirector),
		logger.Int("membersPerLeader", cfg.MembersPerLeader),
		logger.Int("months", cfg.Months),
		logger.Int("workers", cfg.Workers),
	)

	if err := checkServiceHealth(ctx, c); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	data := Generate(cfg, at)
	log.Info(ctx, "generated dataset",
		logger.Int("individuals", len(data.Individuals)),
		logger.Int("interactions", len(data.Interactions)),
		logger.Int("actions", len(data.Actions)),
	)

	// Leaders must exist before their reports, so the roster goes in order.
	for _, ind := range data.Individuals {
		if err := c.PostJSON(ctx, "/individuals", nil, ind, nil); err != nil {
			return nil, fmt.Errorf("create individual %s: %w", ind.Name, err)
		}
		stats.Individuals++
	}

	submitHistory(ctx, c, cfg.Workers, data, stats)

	if cfg.OutputFile != "" {
		if err := saveDataset(cfg.OutputFile, data); err != nil {
			log.Warn(ctx, "failed to save dataset", logger.Error(err))
		}
	}

	if !cfg.SkipVerify {
		if err := verifySeed(ctx, c, cfg, at, data, stats); err != nil {
			return stats, fmt.Errorf("verification failed: %w", err)
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	displayStats(out, stats)
	return stats, nil
}

func checkServiceHealth(ctx context.Context, c *Client) error {
	resp, err := c.Do(ctx, http.MethodGet, "/healthz", nil, http.NoBody, "")
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

type historyJob struct {
	interaction *Interaction
	action      *Action
}

// submitHistory posts interactions and actions with a worker pool. Failures
// are counted and do not stop the remaining uploads.
func submitHistory(ctx context.Context, c *Client, workers int, data Dataset, stats *Stats) {
	if workers < 1 {
		workers = 1
	}
	log := logger.Named("seed")

	var sentI, okI, sentA, okA, failed int64
	jobs := make(chan historyJob, workers*2)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				var err error
				switch {
				case job.interaction != nil:
					atomic.AddInt64(&sentI, 1)
					err = c.PostJSON(ctx, "/individuals/"+job.interaction.OwnerID+"/interactions", nil, job.interaction, nil)
					if err == nil {
						atomic.AddInt64(&okI, 1)
					}
				case job.action != nil:
					atomic.AddInt64(&sentA, 1)
					err = c.PostJSON(ctx, "/individuals/"+job.action.OwnerID+"/actions", nil, job.action, nil)
					if err == nil {
						atomic.AddInt64(&okA, 1)
					}
				}
				if err != nil {
					atomic.AddInt64(&failed, 1)
					log.Debug(ctx, "history upload failed", logger.Error(err))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range data.Interactions {
			select {
			case <-ctx.Done():
				return
			case jobs <- historyJob{interaction: &data.Interactions[i]}:
			}
		}
		for i := range data.Actions {
			select {
			case <-ctx.Done():
				return
			case jobs <- historyJob{action: &data.Actions[i]}:
			}
		}
	}()

	wg.Wait()

	stats.InteractionsSent = int(sentI)
	stats.InteractionsOK = int(okI)
	stats.ActionsSent = int(sentA)
	stats.ActionsOK = int(okA)
	stats.Failed = int(failed)
	log.Info(ctx, "history uploaded",
		logger.Int("interactions", stats.InteractionsOK),
		logger.Int("actions", stats.ActionsOK),
		logger.Int("failed", stats.Failed),
	)
}

func saveDataset(filename string, data Dataset) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	if err := os.WriteFile(filename, raw, filePermission); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	return nil
}

func displayStats(out io.Writer, s *Stats) {
	fmt.Fprintf(out, `Seed completed in %s
  individuals:   %d
  interactions:  %d/%d
  actions:       %d/%d
  failed:        %d
  leaders:       %d ranked
  compliance:    %d results
`, s.Duration.Round(time.Millisecond), s.Individuals,
		s.InteractionsOK, s.InteractionsSent, s.ActionsOK, s.ActionsSent,
		s.Failed, s.LeadersRanked, s.ComplianceResults)
}
