package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

type fakeSource struct {
	name    string
	harvest domain.Harvest
	err     error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(context.Context) (domain.Harvest, error) {
	return f.harvest, f.err
}

type fakeRepo struct {
	lockAcquired bool
	lockErr      error
	released     bool

	pending     []domain.Signal
	unclustered []domain.Signal
	unbriefed   []domain.BriefedCluster
	tagSlugs    []string
	related     []domain.RawProduct

	upsertedSignals  []domain.RawSignal
	upsertedProducts []domain.RawProduct
	savedTags        [][]domain.TagResult
	markedFailed     [][]int64
	savedClusters    [][]domain.ClusterResult
	savedBriefs      map[int64]domain.BriefDraft

	writes int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{lockAcquired: true, savedBriefs: map[int64]domain.BriefDraft{}}
}

func (f *fakeRepo) AcquireLock(context.Context) (bool, error) { return f.lockAcquired, f.lockErr }

func (f *fakeRepo) ReleaseLock(context.Context) error {
	f.released = true
	return nil
}

func (f *fakeRepo) UpsertSignals(_ context.Context, signals []domain.RawSignal) (int, error) {
	f.writes++
	f.upsertedSignals = append(f.upsertedSignals, signals...)
	return len(signals), nil
}

func (f *fakeRepo) UpsertProducts(_ context.Context, products []domain.RawProduct) (int, error) {
	f.writes++
	f.upsertedProducts = append(f.upsertedProducts, products...)
	return len(products), nil
}

func (f *fakeRepo) PendingSignals(_ context.Context, limit int) ([]domain.Signal, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRepo) ExistingTagSlugs(context.Context) ([]string, error) { return f.tagSlugs, nil }

func (f *fakeRepo) SaveTagResults(_ context.Context, results []domain.TagResult) error {
	f.writes++
	f.savedTags = append(f.savedTags, results)
	return nil
}

func (f *fakeRepo) MarkTagFailed(_ context.Context, ids []int64) error {
	f.writes++
	f.markedFailed = append(f.markedFailed, ids)
	return nil
}

func (f *fakeRepo) TaggedUnclustered(context.Context) ([]domain.Signal, error) {
	return f.unclustered, nil
}

func (f *fakeRepo) SaveClusters(_ context.Context, clusters []domain.ClusterResult) (int, error) {
	f.writes++
	f.savedClusters = append(f.savedClusters, clusters)
	return len(clusters), nil
}

func (f *fakeRepo) ClustersWithoutBriefs(context.Context) ([]domain.BriefedCluster, error) {
	return f.unbriefed, nil
}

func (f *fakeRepo) SaveBrief(_ context.Context, clusterID int64, draft domain.BriefDraft) error {
	f.writes++
	f.savedBriefs[clusterID] = draft
	return nil
}

func (f *fakeRepo) FindRelatedProducts(_ context.Context, keyword string, limit int) ([]domain.RawProduct, error) {
	return f.related, nil
}

type fakeEngine struct {
	classifyCalls  [][]domain.Signal
	classifyErrOn  int
	classifyErr    error
	clusterCalls   [][]domain.Signal
	clusterResults []domain.ClusterResult
	clusterErr     error
	synthDrafts    map[string]domain.BriefDraft
	synthErrLabels map[string]error
	synthTrends    []map[string]int
}

func (f *fakeEngine) Classify(_ context.Context, signals []domain.Signal, _ []string) ([]domain.TagResult, error) {
	f.classifyCalls = append(f.classifyCalls, signals)
	if f.classifyErr != nil && len(f.classifyCalls) == f.classifyErrOn {
		return nil, f.classifyErr
	}

	results := make([]domain.TagResult, len(signals))
	for i, sig := range signals {
		results[i] = domain.TagResult{
			SignalID:  sig.ID,
			Sentiment: domain.SentimentNegative,
			PostType:  domain.PostTypeComplaint,
			Tags:      []string{"testing"},
		}
	}
	return results, nil
}

func (f *fakeEngine) Cluster(_ context.Context, signals []domain.Signal) ([]domain.ClusterResult, error) {
	f.clusterCalls = append(f.clusterCalls, signals)
	return f.clusterResults, f.clusterErr
}

func (f *fakeEngine) Synthesize(_ context.Context, label, _ string, members []domain.Signal, trends map[string]int, _ []domain.RawProduct) (domain.BriefDraft, error) {
	f.synthTrends = append(f.synthTrends, trends)
	if err, ok := f.synthErrLabels[label]; ok {
		return domain.BriefDraft{}, err
	}
	if draft, ok := f.synthDrafts[label]; ok {
		return draft, nil
	}

	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return domain.BriefDraft{
		Title:         "Brief: " + label,
		Slug:          "brief",
		Summary:       "summary",
		SourcePostIDs: ids,
	}, nil
}

type fakeTrends struct {
	interest map[string]int
	err      error
	calls    int
}

func (f *fakeTrends) Interest(context.Context, []string) (map[string]int, error) {
	f.calls++
	return f.interest, f.err
}

func newTestPipeline(repo ports.PipelineRepository, engine ports.InsightEngine, opts PipelineDeps) *Pipeline {
	opts.Repository = repo
	opts.Engine = engine
	p := NewPipeline(opts)
	p.sleep = func(context.Context, time.Duration) {}
	return p
}

func makeSignals(n int, status domain.TagStatus) []domain.Signal {
	signals := make([]domain.Signal, n)
	for i := range signals {
		signals[i] = domain.Signal{
			ID:         int64(i + 1),
			Source:     domain.SourceReddit,
			ExternalID: fmt.Sprintf("ext-%d", i+1),
			Title:      fmt.Sprintf("signal %d", i+1),
			PostType:   domain.PostTypeComplaint,
			TagStatus:  status,
		}
	}
	return signals
}

func TestRunLockContention(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.lockAcquired = false
	engine := &fakeEngine{}

	result := newTestPipeline(repo, engine, PipelineDeps{}).Run(context.Background())

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "advisory lock")
	assert.Zero(t, result.SignalsFetched)
	assert.Zero(t, result.SignalsTagged)
	assert.Zero(t, result.ClustersCreated)
	assert.Zero(t, result.BriefsCreated)
	assert.Zero(t, repo.writes, "no repository write may happen without the lock")
	assert.False(t, repo.released)
}

func TestRunReleasesLock(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	result := newTestPipeline(repo, &fakeEngine{}, PipelineDeps{}).Run(context.Background())

	assert.Empty(t, result.Errors)
	assert.True(t, repo.released)
}

func TestFetchPartialFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	good := &fakeSource{
		name: "reddit",
		harvest: domain.Harvest{Signals: []domain.RawSignal{
			{Source: domain.SourceReddit, ExternalID: "a", Title: "first"},
			{Source: domain.SourceReddit, ExternalID: "b", Title: "second"},
		}},
	}
	bad := &fakeSource{name: "rss", err: errors.New("connection refused")}

	result := newTestPipeline(repo, &fakeEngine{}, PipelineDeps{
		Sources: []ports.SignalSource{good, bad},
	}).Run(context.Background())

	assert.Equal(t, 2, result.SignalsFetched)
	assert.Equal(t, 2, result.SignalsUpserted)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "fetch rss")
	assert.Contains(t, result.Errors[0], "connection refused")
}

func TestFetchDeduplicatesByExternalID(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	duplicate := domain.RawSignal{Source: domain.SourceRSS, ExternalID: "same", Title: "dup"}
	one := &fakeSource{name: "rss-a", harvest: domain.Harvest{Signals: []domain.RawSignal{duplicate}}}
	two := &fakeSource{name: "rss-b", harvest: domain.Harvest{Signals: []domain.RawSignal{duplicate}}}

	result := newTestPipeline(repo, &fakeEngine{}, PipelineDeps{
		Sources: []ports.SignalSource{one, two},
	}).Run(context.Background())

	assert.Equal(t, 1, result.SignalsFetched)
	assert.Len(t, repo.upsertedSignals, 1)
}

func TestTagBatchPartitioning(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.pending = makeSignals(25, domain.TagStatusPending)
	engine := &fakeEngine{}

	result := newTestPipeline(repo, engine, PipelineDeps{}).Run(context.Background())

	require.Len(t, engine.classifyCalls, 2)
	assert.Len(t, engine.classifyCalls[0], 20)
	assert.Len(t, engine.classifyCalls[1], 5)
	assert.Equal(t, 25, result.SignalsTagged)
	assert.Empty(t, result.Errors)
}

func TestTagBatchFailureIsIsolated(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.pending = makeSignals(25, domain.TagStatusPending)
	engine := &fakeEngine{classifyErrOn: 1, classifyErr: errors.New("model overloaded")}

	result := newTestPipeline(repo, engine, PipelineDeps{}).Run(context.Background())

	require.Len(t, engine.classifyCalls, 2)
	require.Len(t, repo.markedFailed, 1)
	assert.Len(t, repo.markedFailed[0], 20, "exactly the failed batch is marked")
	assert.Equal(t, 5, result.SignalsTagged, "second batch is unaffected")

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "batch of 20")
	assert.Contains(t, result.Errors[0], "model overloaded")

	for _, id := range repo.markedFailed[0] {
		assert.LessOrEqual(t, id, int64(20))
	}
}

func TestClusterUnderThreeSignalsGroupsAsGeneral(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.unclustered = makeSignals(2, domain.TagStatusTagged)
	engine := &fakeEngine{}

	result := newTestPipeline(repo, engine, PipelineDeps{}).Run(context.Background())

	assert.Empty(t, engine.clusterCalls, "algorithm must not run on tiny input")
	require.Len(t, repo.savedClusters, 1)
	require.Len(t, repo.savedClusters[0], 1)

	cluster := repo.savedClusters[0][0]
	assert.Equal(t, "General", cluster.Label)
	assert.ElementsMatch(t, []int64{1, 2}, cluster.SignalIDs)
	assert.Equal(t, 1, result.ClustersCreated)
}

func TestClusterStageFailureDoesNotBlockBriefs(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.unclustered = makeSignals(5, domain.TagStatusTagged)
	repo.unbriefed = []domain.BriefedCluster{{
		ClusterID: 7, Label: "Billing pain", Summary: "Invoices are hard.",
		Members: makeSignals(3, domain.TagStatusTagged),
	}}
	engine := &fakeEngine{clusterErr: errors.New("embedding backend down")}

	result := newTestPipeline(repo, engine, PipelineDeps{}).Run(context.Background())

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cluster")
	assert.Equal(t, 1, result.BriefsCreated, "brief stage still ran")
}

func TestBriefStagePerClusterIsolation(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	members := makeSignals(3, domain.TagStatusTagged)
	repo.unbriefed = []domain.BriefedCluster{
		{ClusterID: 1, Label: "Broken exports", Summary: "CSV exports fail.", Members: members},
		{ClusterID: 2, Label: "Slow sync", Summary: "Sync takes hours.", Members: members},
	}
	engine := &fakeEngine{
		synthErrLabels: map[string]error{"Broken exports": errors.New("empty model response")},
	}

	result := newTestPipeline(repo, engine, PipelineDeps{}).Run(context.Background())

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cluster 1")
	assert.Equal(t, 1, result.BriefsCreated)

	draft, ok := repo.savedBriefs[2]
	require.True(t, ok)
	assert.NotEmpty(t, draft.Title)
	assert.NotEmpty(t, draft.Slug)

	memberIDs := map[int64]struct{}{}
	for _, m := range members {
		memberIDs[m.ID] = struct{}{}
	}
	for _, id := range draft.SourcePostIDs {
		_, ok := memberIDs[id]
		assert.True(t, ok, "source post %d must be a cluster member", id)
	}
}

func TestBriefTrendFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.unbriefed = []domain.BriefedCluster{{
		ClusterID: 3, Label: "Calendar chaos", Summary: "Double bookings everywhere.",
		Members: makeSignals(3, domain.TagStatusTagged),
	}}
	engine := &fakeEngine{}
	trendsStub := &fakeTrends{err: errors.New("quota exceeded")}

	result := newTestPipeline(repo, engine, PipelineDeps{Trends: trendsStub}).Run(context.Background())

	assert.Equal(t, 1, trendsStub.calls)
	assert.Empty(t, result.Errors, "enrichment failure never surfaces as a run error")
	require.Len(t, engine.synthTrends, 1)
	assert.Nil(t, engine.synthTrends[0])
	assert.Equal(t, 1, result.BriefsCreated)
}

func TestSingleClusterEndToEnd(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.unclustered = makeSignals(3, domain.TagStatusTagged)
	engine := &fakeEngine{
		clusterResults: []domain.ClusterResult{{
			Label: "Inbox overload", Summary: "Too much email.", SignalIDs: []int64{1, 2, 3},
		}},
	}

	pipeline := newTestPipeline(repo, engine, PipelineDeps{})
	// Simulate the cluster stage's output becoming visible to the brief stage.
	repo.unbriefed = []domain.BriefedCluster{{
		ClusterID: 10, Label: "Inbox overload", Summary: "Too much email.",
		Members: repo.unclustered,
	}}

	result := pipeline.Run(context.Background())

	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.ClustersCreated)
	assert.Equal(t, 1, result.BriefsCreated)

	draft := repo.savedBriefs[10]
	assert.True(t, strings.HasPrefix(draft.Title, "Brief:"))
	assert.Len(t, draft.SourcePostIDs, 3)
}
