package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const (
	defaultTagBatchSize     = 20
	defaultTagCooldown      = 2 * time.Second
	defaultPendingLimit     = 500
	defaultClusterBatchSize = 200
	minClusterInput         = 3
	relatedProductLimit     = 5
	fallbackClusterLabel    = "General"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources    []ports.SignalSource
	Repository ports.PipelineRepository
	Engine     ports.InsightEngine
	Trends     ports.TrendProvider
	Notifier   ports.Notifier
	Logger     *slog.Logger

	TagBatchSize     int
	TagCooldown      time.Duration
	PendingLimit     int
	ClusterBatchSize int
}

// Pipeline implements the fetch, tag, cluster, brief workflow. A single
// Run never returns an error; every failure is captured in the result's
// ordered error list and later stages always execute.
type Pipeline struct {
	sources    []ports.SignalSource
	repository ports.PipelineRepository
	engine     ports.InsightEngine
	trends     ports.TrendProvider
	notifier   ports.Notifier
	logger     *slog.Logger

	tagBatchSize     int
	tagCooldown      time.Duration
	pendingLimit     int
	clusterBatchSize int

	sleep func(ctx context.Context, d time.Duration)
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		sources:          deps.Sources,
		repository:       deps.Repository,
		engine:           deps.Engine,
		trends:           deps.Trends,
		notifier:         deps.Notifier,
		logger:           deps.Logger,
		tagBatchSize:     deps.TagBatchSize,
		tagCooldown:      deps.TagCooldown,
		pendingLimit:     deps.PendingLimit,
		clusterBatchSize: deps.ClusterBatchSize,
		sleep:            sleepCtx,
	}
	if p.tagBatchSize <= 0 {
		p.tagBatchSize = defaultTagBatchSize
	}
	if p.tagCooldown <= 0 {
		p.tagCooldown = defaultTagCooldown
	}
	if p.pendingLimit <= 0 {
		p.pendingLimit = defaultPendingLimit
	}
	if p.clusterBatchSize <= 0 {
		p.clusterBatchSize = defaultClusterBatchSize
	}
	return p
}

// Run executes one full pipeline pass under the advisory run lock. When the
// lock is held elsewhere the run exits immediately with a single error and
// all counters at zero.
func (p *Pipeline) Run(ctx context.Context) domain.RunResult {
	var result domain.RunResult

	acquired, err := p.repository.AcquireLock(ctx)
	if err != nil {
		result.AddError("could not acquire advisory lock: %v", err)
		return result
	}
	if !acquired {
		result.AddError("could not acquire advisory lock: another run is in progress")
		return result
	}
	defer func() {
		if err := p.repository.ReleaseLock(context.WithoutCancel(ctx)); err != nil {
			p.warn("release advisory lock", "error", err)
		}
	}()

	p.runFetch(ctx, &result)
	p.runTag(ctx, &result)
	p.runCluster(ctx, &result)
	p.runBrief(ctx, &result)

	p.info("run finished",
		"fetched", result.SignalsFetched,
		"upserted", result.SignalsUpserted,
		"products", result.ProductsFound,
		"tagged", result.SignalsTagged,
		"clusters", result.ClustersCreated,
		"briefs", result.BriefsCreated,
		"errors", len(result.Errors))

	p.publishSummary(ctx, result)

	return result
}

// runFetch queries every source concurrently; a failing source only records
// its own error. Fetched records are deduplicated by (source, external id)
// before the upsert.
func (p *Pipeline) runFetch(ctx context.Context, result *domain.RunResult) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		signals  []domain.RawSignal
		products []domain.RawProduct
	)

	for _, source := range p.sources {
		source := source
		wg.Add(1)
		go func() {
			defer wg.Done()
			harvest, err := source.Fetch(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.AddError("fetch %s: %v", source.Name(), err)
				return
			}
			signals = append(signals, harvest.Signals...)
			products = append(products, harvest.Products...)
		}()
	}
	wg.Wait()

	signals = dedupeSignals(signals)
	products = dedupeProducts(products)
	result.SignalsFetched = len(signals)
	result.ProductsFound = len(products)

	if len(signals) > 0 {
		upserted, err := p.repository.UpsertSignals(ctx, signals)
		if err != nil {
			result.AddError("upsert signals: %v", err)
		} else {
			result.SignalsUpserted = upserted
		}
	}

	if len(products) > 0 {
		if _, err := p.repository.UpsertProducts(ctx, products); err != nil {
			result.AddError("upsert products: %v", err)
		}
	}
}

// runTag classifies pending signals in fixed-size batches. One batch's
// failure marks exactly its own signals failed; other batches proceed. A
// cooldown separates consecutive batches regardless of outcome.
func (p *Pipeline) runTag(ctx context.Context, result *domain.RunResult) {
	pending, err := p.repository.PendingSignals(ctx, p.pendingLimit)
	if err != nil {
		result.AddError("load pending signals: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	for start := 0; start < len(pending); start += p.tagBatchSize {
		end := start + p.tagBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if err := p.tagBatch(ctx, batch, result); err != nil {
			result.AddError("tag batch of %d signals failed: %T: %v", len(batch), err, err)
			ids := make([]int64, len(batch))
			for i, sig := range batch {
				ids[i] = sig.ID
			}
			if markErr := p.repository.MarkTagFailed(ctx, ids); markErr != nil {
				result.AddError("mark batch failed: %v", markErr)
			}
		}

		if end < len(pending) {
			p.sleep(ctx, p.tagCooldown)
		}
	}
}

func (p *Pipeline) tagBatch(ctx context.Context, batch []domain.Signal, result *domain.RunResult) error {
	existing, err := p.repository.ExistingTagSlugs(ctx)
	if err != nil {
		return fmt.Errorf("load existing tags: %w", err)
	}

	results, err := p.engine.Classify(ctx, batch, existing)
	if err != nil {
		return err
	}

	if err := p.repository.SaveTagResults(ctx, results); err != nil {
		return fmt.Errorf("save tag results: %w", err)
	}

	result.SignalsTagged += len(results)
	return nil
}

// runCluster groups tagged actionable signals with no prior membership.
// Fewer than minClusterInput signals are grouped as-is under a fallback
// label; the unsupervised split needs more data than that to be meaningful.
func (p *Pipeline) runCluster(ctx context.Context, result *domain.RunResult) {
	signals, err := p.repository.TaggedUnclustered(ctx)
	if err != nil {
		result.AddError("load unclustered signals: %v", err)
		return
	}
	if len(signals) == 0 {
		return
	}

	if len(signals) < minClusterInput {
		ids := make([]int64, len(signals))
		for i, sig := range signals {
			ids[i] = sig.ID
		}
		created, err := p.repository.SaveClusters(ctx, []domain.ClusterResult{{
			Label:     fallbackClusterLabel,
			Summary:   fmt.Sprintf("All %d actionable signals from this run.", len(signals)),
			SignalIDs: ids,
		}})
		if err != nil {
			result.AddError("save clusters: %v", err)
			return
		}
		result.ClustersCreated += created
		return
	}

	for start := 0; start < len(signals); start += p.clusterBatchSize {
		end := start + p.clusterBatchSize
		if end > len(signals) {
			end = len(signals)
		}

		clusters, err := p.engine.Cluster(ctx, signals[start:end])
		if err != nil {
			result.AddError("cluster signals: %v", err)
			return
		}

		created, err := p.repository.SaveClusters(ctx, clusters)
		if err != nil {
			result.AddError("save clusters: %v", err)
			return
		}
		result.ClustersCreated += created
	}
}

// runBrief synthesizes one brief per unbriefed cluster. Trend and related-
// product look-ups are best effort; their failure degrades the brief, never
// the stage. A failing cluster is recorded by id and skipped.
func (p *Pipeline) runBrief(ctx context.Context, result *domain.RunResult) {
	clusters, err := p.repository.ClustersWithoutBriefs(ctx)
	if err != nil {
		result.AddError("load unbriefed clusters: %v", err)
		return
	}

	for _, cluster := range clusters {
		keywords := ExtractKeywords(cluster.Label, cluster.Summary)

		trendData := p.fetchTrends(ctx, keywords)
		related := p.fetchRelated(ctx, keywords)

		draft, err := p.engine.Synthesize(ctx, cluster.Label, cluster.Summary, cluster.Members, trendData, related)
		if err != nil {
			result.AddError("brief for cluster %d: %v", cluster.ClusterID, err)
			continue
		}

		if err := p.repository.SaveBrief(ctx, cluster.ClusterID, draft); err != nil {
			result.AddError("save brief for cluster %d: %v", cluster.ClusterID, err)
			continue
		}
		result.BriefsCreated++
	}
}

func (p *Pipeline) fetchTrends(ctx context.Context, keywords []string) map[string]int {
	if p.trends == nil || len(keywords) == 0 {
		return nil
	}

	trendData, err := p.trends.Interest(ctx, keywords)
	if err != nil {
		p.warn("trend lookup failed", "keywords", keywords, "error", err)
		return nil
	}
	return trendData
}

func (p *Pipeline) fetchRelated(ctx context.Context, keywords []string) []domain.RawProduct {
	var related []domain.RawProduct
	seen := map[string]struct{}{}

	for _, keyword := range keywords {
		products, err := p.repository.FindRelatedProducts(ctx, keyword, relatedProductLimit)
		if err != nil {
			p.warn("related product lookup failed", "keyword", keyword, "error", err)
			continue
		}
		for _, product := range products {
			key := product.Source + "/" + product.ExternalID
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			related = append(related, product)
			if len(related) == relatedProductLimit {
				return related
			}
		}
	}

	return related
}

func (p *Pipeline) publishSummary(ctx context.Context, result domain.RunResult) {
	if p.notifier == nil {
		return
	}

	summary := fmt.Sprintf(
		"Pipeline run: %d fetched, %d tagged, %d clusters, %d briefs, %d errors",
		result.SignalsFetched, result.SignalsTagged,
		result.ClustersCreated, result.BriefsCreated, len(result.Errors))
	if err := p.notifier.PublishSummary(ctx, summary); err != nil {
		p.warn("publish run summary", "error", err)
	}
}

func dedupeSignals(signals []domain.RawSignal) []domain.RawSignal {
	seen := map[string]struct{}{}
	deduped := signals[:0]
	for _, sig := range signals {
		key := string(sig.Source) + "/" + sig.ExternalID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, sig)
	}
	return deduped
}

func dedupeProducts(products []domain.RawProduct) []domain.RawProduct {
	seen := map[string]struct{}{}
	deduped := products[:0]
	for _, product := range products {
		key := product.Source + "/" + product.ExternalID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, product)
	}
	return deduped
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
