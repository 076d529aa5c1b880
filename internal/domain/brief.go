package domain

import "fmt"

// DemandMetrics aggregates quantitative evidence backing a brief.
type DemandMetrics struct {
	PostCount            int
	CommunityCount       int
	AvgScore             float64
	TotalComments        int
	TrendInterest        map[string]int
	CompetitiveLandscape string
}

// SourceSnapshot freezes the visible part of a member signal at the moment a
// brief was synthesized, so the brief stays readable even if the signal row
// changes later.
type SourceSnapshot struct {
	SignalID  int64
	Title     string
	Excerpt   string
	URL       string
	Community string
	Score     int
}

// BriefDraft is a validated model response for one cluster, not yet stored.
type BriefDraft struct {
	Title         string
	Slug          string
	Summary       string
	Problem       string
	Opportunity   string
	Solutions     []string
	Metrics       DemandMetrics
	Snapshots     []SourceSnapshot
	SourcePostIDs []int64
}

// Brief is a persisted opportunity write-up. Vote counters are mutated by
// the public API, never by the pipeline.
type Brief struct {
	ID        int64
	ClusterID int64
	BriefDraft
	Upvotes   int
	Downvotes int
}

// RunResult is the in-memory aggregate returned from one pipeline run.
// Errors preserves insertion order; any entry means the run was only
// partially successful.
type RunResult struct {
	SignalsFetched  int
	SignalsUpserted int
	ProductsFound   int
	SignalsTagged   int
	ClustersCreated int
	BriefsCreated   int
	Errors          []string
}

// AddError appends a formatted error message to the run result.
func (r *RunResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// BriefedCluster pairs a cluster awaiting a brief with its member signals.
type BriefedCluster struct {
	ClusterID int64
	Label     string
	Summary   string
	Members   []Signal
}
