package ports

import (
	"context"
	"time"

	"SignalScanner/internal/domain"
)

// SignalSource pulls fresh signals and products from one upstream origin.
type SignalSource interface {
	Name() string
	Fetch(ctx context.Context) (domain.Harvest, error)
}

// InsightEngine exposes the three model-backed operations of the pipeline.
type InsightEngine interface {
	Classify(ctx context.Context, signals []domain.Signal, existingTags []string) ([]domain.TagResult, error)
	Cluster(ctx context.Context, signals []domain.Signal) ([]domain.ClusterResult, error)
	Synthesize(ctx context.Context, label, summary string, members []domain.Signal, trends map[string]int, related []domain.RawProduct) (domain.BriefDraft, error)
}

// PipelineRepository is the persistence boundary for every pipeline stage.
type PipelineRepository interface {
	// AcquireLock attempts the session-scoped advisory run lock. It returns
	// false without error when another run already holds it.
	AcquireLock(ctx context.Context) (bool, error)
	ReleaseLock(ctx context.Context) error

	UpsertSignals(ctx context.Context, signals []domain.RawSignal) (int, error)
	UpsertProducts(ctx context.Context, products []domain.RawProduct) (int, error)

	PendingSignals(ctx context.Context, limit int) ([]domain.Signal, error)
	ExistingTagSlugs(ctx context.Context) ([]string, error)
	SaveTagResults(ctx context.Context, results []domain.TagResult) error
	MarkTagFailed(ctx context.Context, signalIDs []int64) error

	TaggedUnclustered(ctx context.Context) ([]domain.Signal, error)
	SaveClusters(ctx context.Context, clusters []domain.ClusterResult) (int, error)

	ClustersWithoutBriefs(ctx context.Context) ([]domain.BriefedCluster, error)
	SaveBrief(ctx context.Context, clusterID int64, draft domain.BriefDraft) error
	FindRelatedProducts(ctx context.Context, keyword string, limit int) ([]domain.RawProduct, error)
}

// TrendProvider fetches search-interest figures for keywords. Callers treat
// failures as absent enrichment, not as pipeline errors.
type TrendProvider interface {
	Interest(ctx context.Context, keywords []string) (map[string]int, error)
}

// Notifier publishes run summaries to an external channel.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
