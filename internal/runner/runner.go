// Package runner orchestrates the per-key discovery pipeline: crawl, match,
// select, validate, version, mirror, register.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/econradar/autodiscovery/internal/contracts"
	"github.com/econradar/autodiscovery/internal/crawler"
	"github.com/econradar/autodiscovery/internal/discovery"
	"github.com/econradar/autodiscovery/internal/metrics"
	"github.com/econradar/autodiscovery/internal/mirror"
	"github.com/econradar/autodiscovery/internal/validator"
)

// OutcomeTopic names the published event stream for per-key outcomes.
const OutcomeTopic = "discovery.outcome"

// Runner wires the pipeline stages for one or many contract keys.
type Runner struct {
	contracts *contracts.Store
	crawler   *crawler.Crawler
	validator *validator.Validator
	mirror    *mirror.Manager
	registry  discovery.RegistryStore
	publisher discovery.Publisher
	clock     discovery.Clock
	ids       discovery.IDGenerator
	logger    *zap.Logger

	concurrency int
}

// Options carries the runner's collaborators. Publisher may be nil.
type Options struct {
	Contracts   *contracts.Store
	Crawler     *crawler.Crawler
	Validator   *validator.Validator
	Mirror      *mirror.Manager
	Registry    discovery.RegistryStore
	Publisher   discovery.Publisher
	Clock       discovery.Clock
	IDs         discovery.IDGenerator
	Logger      *zap.Logger
	Concurrency int
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	switch {
	case opts.Contracts == nil:
		return nil, errors.New("contracts store is required")
	case opts.Crawler == nil:
		return nil, errors.New("crawler is required")
	case opts.Validator == nil:
		return nil, errors.New("validator is required")
	case opts.Mirror == nil:
		return nil, errors.New("mirror manager is required")
	case opts.Registry == nil:
		return nil, errors.New("registry store is required")
	case opts.Clock == nil:
		return nil, errors.New("clock is required")
	case opts.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	metrics.Init()
	return &Runner{
		contracts:   opts.Contracts,
		crawler:     opts.Crawler,
		validator:   opts.Validator,
		mirror:      opts.Mirror,
		registry:    opts.Registry,
		publisher:   opts.Publisher,
		clock:       opts.Clock,
		ids:         opts.IDs,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
	}, nil
}

// SyncKey runs the full pipeline for one contract key.
func (r *Runner) SyncKey(ctx context.Context, key string) (discovery.Outcome, error) {
	contract, err := r.contracts.Get(key)
	if err != nil {
		return discovery.Outcome{}, err
	}
	outcome := r.run(ctx, contract)
	return outcome, nil
}

// SyncAll runs every contract through a bounded worker pool and returns one
// outcome per key, in contract file order. Individual failures never abort
// the batch.
func (r *Runner) SyncAll(ctx context.Context) []discovery.Outcome {
	all := r.contracts.All()
	outcomes := make([]discovery.Outcome, len(all))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for i, contract := range all {
		wg.Add(1)
		go func(i int, contract discovery.Contract) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			outcomes[i] = r.run(ctx, contract)
		}(i, contract)
	}
	wg.Wait()
	return outcomes
}

// run executes the pipeline for one contract and always produces an Outcome.
func (r *Runner) run(ctx context.Context, contract discovery.Contract) discovery.Outcome {
	runID, err := r.ids.NewID()
	if err != nil {
		runID = "unknown"
	}
	outcome := discovery.Outcome{RunID: runID, Key: contract.Key}
	log := r.logger.With(zap.String("run_id", runID), zap.String("key", contract.Key))

	defer func() {
		outcome.Finished = r.clock.Now()
		result := "ok"
		if outcome.Failed() {
			result = string(outcome.Failure)
		}
		metrics.ObserveRun(contract.Key, result)
		r.publish(ctx, log, outcome)
	}()

	winnerURL, match, failure, err := r.resolveWinner(ctx, contract, log)
	if failure != discovery.FailureNone {
		outcome.Failure = failure
		outcome.Error = err.Error()
		log.Warn("discovery failed", zap.String("failure", string(failure)), zap.Error(err))
		return outcome
	}
	outcome.URL = winnerURL

	file := r.validator.Validate(ctx, winnerURL, contract.Expect)
	outcome.Mime = file.Mime
	outcome.SizeKB = file.SizeKB()
	outcome.Status = file.Status
	outcome.Notes = file.Notes

	version := ""
	if contract.SourceType != discovery.SourceAPI {
		version = discovery.ResolveVersion(contract.Versioning, match, file, r.clock.Now())
	}
	outcome.Version = version

	filename := discovery.FilenameFromURL(winnerURL)

	if file.Status == discovery.StatusBroken {
		// Nothing to mirror; still record the breakage so operators see it.
		outcome.Failure = discovery.FailureValidation
		outcome.Error = file.Notes
		if err := r.writeEntry(ctx, contract, file, version, filename, discovery.MirrorResult{}); err != nil {
			outcome.Failure = discovery.FailureRegistryWrite
			outcome.Error = err.Error()
			return outcome
		}
		log.Warn("source broken, registered without mirror", zap.String("url", winnerURL))
		return outcome
	}

	var mirrored discovery.MirrorResult
	if contract.Mirror {
		mirrored, err = r.mirror.Mirror(ctx, winnerURL, contract.Key, version, filename)
		if err != nil && !errors.Is(err, mirror.ErrObjectUpload) {
			outcome.Failure = discovery.FailureMirror
			outcome.Error = err.Error()
			log.Error("mirror failed, registry untouched", zap.Error(err))
			return outcome
		}
		if err != nil {
			log.Warn("object upload failed, continuing with filesystem copy", zap.Error(err))
		}
		outcome.SHA256 = mirrored.SHA256
		outcome.Stored = mirrored.StoredPath
		outcome.Object = mirrored.ObjectKey
		metrics.ObserveMirroredBytes(contract.Key, mirrored.Bytes)
	}

	if err := r.writeEntry(ctx, contract, file, version, filename, mirrored); err != nil {
		outcome.Failure = discovery.FailureRegistryWrite
		outcome.Error = err.Error()
		log.Error("registry write failed", zap.Error(err))
		return outcome
	}

	log.Info("source synced",
		zap.String("url", winnerURL),
		zap.String("version", version),
		zap.String("status", string(file.Status)),
	)
	return outcome
}

// resolveWinner produces the single URL the rest of the pipeline operates
// on. API sources skip crawl and match; their first start URL wins.
func (r *Runner) resolveWinner(ctx context.Context, contract discovery.Contract, log *zap.Logger) (string, discovery.MatchResult, discovery.FailureKind, error) {
	if contract.SourceType == discovery.SourceAPI {
		return contract.StartURLs[0], discovery.MatchResult{}, discovery.FailureNone, nil
	}

	candidates, err := r.crawler.Crawl(ctx, contract)
	if err != nil {
		return "", discovery.MatchResult{}, discovery.FailureCanceled, fmt.Errorf("crawl: %w", err)
	}

	var matches []discovery.MatchResult
	for _, c := range candidates {
		if m, ok := discovery.MatchCandidate(c, contract.Match); ok {
			matches = append(matches, m)
		}
	}
	log.Debug("candidates matched",
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
	)

	winner, ok := discovery.SelectWinner(matches, contract.Select)
	if !ok {
		return "", discovery.MatchResult{}, discovery.FailureNoCandidates,
			fmt.Errorf("no candidate matched contract %q", contract.Key)
	}
	return winner.Candidate.URL, winner, discovery.FailureNone, nil
}

func (r *Runner) writeEntry(ctx context.Context, contract discovery.Contract, file discovery.ValidatedFile, version, filename string, mirrored discovery.MirrorResult) error {
	notes := file.Notes
	if contract.Notes != "" {
		if notes != "" {
			notes = contract.Notes + "; " + notes
		} else {
			notes = contract.Notes
		}
	}
	entry := discovery.RegistryEntry{
		URL:         file.URL,
		Version:     version,
		Filename:    filename,
		Mime:        file.Mime,
		SizeKB:      file.SizeKB(),
		SHA256:      mirrored.SHA256,
		LastChecked: r.clock.Now(),
		Status:      file.Status,
		Notes:       notes,
		StoredPath:  mirrored.StoredPath,
		ObjectKey:   mirrored.ObjectKey,
	}
	return r.registry.Upsert(ctx, contract.Key, entry)
}

func (r *Runner) publish(ctx context.Context, log *zap.Logger, outcome discovery.Outcome) {
	if r.publisher == nil {
		return
	}
	if _, err := r.publisher.Publish(ctx, OutcomeTopic, outcome); err != nil {
		log.Warn("outcome publish failed", zap.Error(err))
	}
}
