package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// runLockKey names the advisory lock guarding pipeline execution. The value
// is arbitrary but must be stable across deployments sharing a database.
const runLockKey = 815001

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists pipeline state into Postgres.
type PostgresRepository struct {
	db *sql.DB

	mu       sync.Mutex
	lockConn *sql.Conn
}

var _ ports.PipelineRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AcquireLock takes the advisory run lock on a dedicated connection so the
// lock stays session-scoped for the lifetime of the run. It returns false
// when another process holds the lock.
func (r *PostgresRepository) AcquireLock(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lockConn != nil {
		return false, fmt.Errorf("advisory lock already held by this process")
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("open lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, runLockKey).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}

	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	r.lockConn = conn
	return true, nil
}

// ReleaseLock releases the advisory lock and closes its connection. Closing
// the connection alone would also release the lock server-side.
func (r *PostgresRepository) ReleaseLock(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lockConn == nil {
		return nil
	}

	_, err := r.lockConn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, runLockKey)
	closeErr := r.lockConn.Close()
	r.lockConn = nil

	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock connection: %w", closeErr)
	}
	return nil
}

// UpsertSignals inserts or refreshes signals keyed on (source, external_id).
// Conflicting rows keep their tagging state; only engagement counters and
// the timestamp are refreshed.
func (r *PostgresRepository) UpsertSignals(ctx context.Context, signals []domain.RawSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}

	builder := psql.Insert("signals").
		Columns("source", "external_id", "title", "body", "url", "posted_at",
			"score", "comment_count", "community", "tag_status")

	for _, sig := range signals {
		builder = builder.Values(sig.Source, sig.ExternalID, sig.Title, sig.Body,
			sig.URL, sig.PostedAt, sig.Score, sig.CommentCount, sig.Community,
			domain.TagStatusPending)
	}

	query, args, err := builder.Suffix(`ON CONFLICT (source, external_id) DO UPDATE
		SET score = EXCLUDED.score,
		    comment_count = EXCLUDED.comment_count,
		    updated_at = NOW()`).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build signal upsert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert signals: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count upserted signals: %w", err)
	}
	return int(affected), nil
}

// UpsertProducts inserts or refreshes observed products keyed on
// (source, external_id).
func (r *PostgresRepository) UpsertProducts(ctx context.Context, products []domain.RawProduct) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	builder := psql.Insert("products").
		Columns("source", "external_id", "name", "slug", "tagline",
			"description", "url", "image_url", "category", "launched_at")

	for _, product := range products {
		builder = builder.Values(product.Source, product.ExternalID, product.Name,
			product.Slug, product.Tagline, product.Description, product.URL,
			product.ImageURL, product.Category, nullableTime(product.LaunchedAt))
	}

	query, args, err := builder.Suffix(`ON CONFLICT (source, external_id) DO UPDATE
		SET tagline = EXCLUDED.tagline,
		    description = EXCLUDED.description,
		    updated_at = NOW()`).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build product upsert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert products: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count upserted products: %w", err)
	}
	return int(affected), nil
}

// PendingSignals returns untagged signals in insertion order, bounded by limit.
func (r *PostgresRepository) PendingSignals(ctx context.Context, limit int) ([]domain.Signal, error) {
	query, args, err := signalColumns().
		Where(sq.Eq{"tag_status": domain.TagStatusPending}).
		OrderBy("id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	return r.querySignals(ctx, query, args...)
}

// ExistingTagSlugs returns the full tag vocabulary for reuse-aware prompting.
func (r *PostgresRepository) ExistingTagSlugs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT slug FROM tags ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("query tag slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan tag slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag slugs: %w", err)
	}

	return slugs, nil
}

// SaveTagResults applies one classified batch in a single transaction:
// signals flip to tagged, newly minted tags are created lazily, and
// memberships are linked.
func (r *PostgresRepository) SaveTagResults(ctx context.Context, results []domain.TagResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tag tx: %w", err)
	}
	defer tx.Rollback()

	for _, result := range results {
		_, err := tx.ExecContext(ctx,
			`UPDATE signals SET sentiment = $1, post_type = $2, tag_status = $3, updated_at = NOW() WHERE id = $4`,
			result.Sentiment, result.PostType, domain.TagStatusTagged, result.SignalID)
		if err != nil {
			return fmt.Errorf("update signal %d: %w", result.SignalID, err)
		}

		for _, slug := range result.Tags {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO tags (slug, name) VALUES ($1, $2) ON CONFLICT (slug) DO NOTHING`,
				slug, strings.ReplaceAll(slug, "-", " "))
			if err != nil {
				return fmt.Errorf("insert tag %s: %w", slug, err)
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO signal_tags (signal_id, tag_slug) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				result.SignalID, slug)
			if err != nil {
				return fmt.Errorf("link tag %s to signal %d: %w", slug, result.SignalID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tag tx: %w", err)
	}
	return nil
}

// MarkTagFailed flips an entire failed batch to failed so the next run's
// pending scan skips it.
func (r *PostgresRepository) MarkTagFailed(ctx context.Context, signalIDs []int64) error {
	if len(signalIDs) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE signals SET tag_status = $1, updated_at = NOW() WHERE id = ANY($2)`,
		domain.TagStatusFailed, pq.Array(signalIDs))
	if err != nil {
		return fmt.Errorf("mark signals failed: %w", err)
	}
	return nil
}

// TaggedUnclustered returns tagged actionable signals with no cluster
// membership yet.
func (r *PostgresRepository) TaggedUnclustered(ctx context.Context) ([]domain.Signal, error) {
	actionable := []domain.PostType{
		domain.PostTypeNeed, domain.PostTypeComplaint, domain.PostTypeFeatureRequest,
		domain.PostTypeAlternativeSeeking, domain.PostTypeComparison,
	}

	query, args, err := signalColumns().
		Where(sq.Eq{"tag_status": domain.TagStatusTagged}).
		Where(sq.Eq{"post_type": actionable}).
		Where("id NOT IN (SELECT signal_id FROM cluster_signals)").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unclustered query: %w", err)
	}

	return r.querySignals(ctx, query, args...)
}

// SaveClusters stores the grouping outcome and memberships atomically and
// returns the number of clusters created.
func (r *PostgresRepository) SaveClusters(ctx context.Context, clusters []domain.ClusterResult) (int, error) {
	if len(clusters) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cluster tx: %w", err)
	}
	defer tx.Rollback()

	for _, cluster := range clusters {
		var clusterID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO clusters (label, summary, member_count, status) VALUES ($1, $2, $3, $4) RETURNING id`,
			cluster.Label, cluster.Summary, len(cluster.SignalIDs), domain.ClusterActive).Scan(&clusterID)
		if err != nil {
			return 0, fmt.Errorf("insert cluster %q: %w", cluster.Label, err)
		}

		for _, signalID := range cluster.SignalIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cluster_signals (cluster_id, signal_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				clusterID, signalID)
			if err != nil {
				return 0, fmt.Errorf("link signal %d to cluster %d: %w", signalID, clusterID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cluster tx: %w", err)
	}
	return len(clusters), nil
}

// ClustersWithoutBriefs returns active clusters that have not been briefed
// yet, each with its full member signal list.
func (r *PostgresRepository) ClustersWithoutBriefs(ctx context.Context) ([]domain.BriefedCluster, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.label, c.summary FROM clusters c
		 WHERE c.status = $1 AND NOT EXISTS (SELECT 1 FROM briefs b WHERE b.cluster_id = c.id)
		 ORDER BY c.id`, domain.ClusterActive)
	if err != nil {
		return nil, fmt.Errorf("query unbriefed clusters: %w", err)
	}
	defer rows.Close()

	var clusters []domain.BriefedCluster
	for rows.Next() {
		var cluster domain.BriefedCluster
		if err := rows.Scan(&cluster.ClusterID, &cluster.Label, &cluster.Summary); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		clusters = append(clusters, cluster)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}

	for i := range clusters {
		members, err := r.clusterMembers(ctx, clusters[i].ClusterID)
		if err != nil {
			return nil, fmt.Errorf("members of cluster %d: %w", clusters[i].ClusterID, err)
		}
		clusters[i].Members = members
	}

	return clusters, nil
}

// SaveBrief stores the brief and its source snapshots atomically. The final
// slug gets the cluster id appended, guaranteeing uniqueness without a
// retry loop.
func (r *PostgresRepository) SaveBrief(ctx context.Context, clusterID int64, draft domain.BriefDraft) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin brief tx: %w", err)
	}
	defer tx.Rollback()

	slug := fmt.Sprintf("%s-%d", draft.Slug, clusterID)

	var briefID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO briefs (cluster_id, title, slug, summary, problem, opportunity,
		    solutions, post_count, community_count, avg_score, total_comments,
		    trend_interest, competitive_landscape, source_post_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id`,
		clusterID, draft.Title, slug, draft.Summary, draft.Problem, draft.Opportunity,
		pq.Array(draft.Solutions), draft.Metrics.PostCount, draft.Metrics.CommunityCount,
		draft.Metrics.AvgScore, draft.Metrics.TotalComments,
		trendJSON(draft.Metrics.TrendInterest), draft.Metrics.CompetitiveLandscape,
		pq.Array(draft.SourcePostIDs)).Scan(&briefID)
	if err != nil {
		return fmt.Errorf("insert brief for cluster %d: %w", clusterID, err)
	}

	for _, snapshot := range draft.Snapshots {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO brief_snapshots (brief_id, signal_id, title, excerpt, url, community, score)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			briefID, snapshot.SignalID, snapshot.Title, snapshot.Excerpt,
			snapshot.URL, snapshot.Community, snapshot.Score)
		if err != nil {
			return fmt.Errorf("insert snapshot for signal %d: %w", snapshot.SignalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit brief tx: %w", err)
	}
	return nil
}

// FindRelatedProducts matches known products whose visible text mentions the
// keyword.
func (r *PostgresRepository) FindRelatedProducts(ctx context.Context, keyword string, limit int) ([]domain.RawProduct, error) {
	pattern := "%" + keyword + "%"
	query, args, err := psql.Select("source", "external_id", "name", "slug",
		"tagline", "description", "url", "image_url", "category").
		From("products").
		Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"tagline": pattern},
			sq.ILike{"description": pattern},
		}).
		OrderBy("launched_at DESC NULLS LAST").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build related query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query related products: %w", err)
	}
	defer rows.Close()

	var products []domain.RawProduct
	for rows.Next() {
		var p domain.RawProduct
		if err := rows.Scan(&p.Source, &p.ExternalID, &p.Name, &p.Slug,
			&p.Tagline, &p.Description, &p.URL, &p.ImageURL, &p.Category); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

func (r *PostgresRepository) clusterMembers(ctx context.Context, clusterID int64) ([]domain.Signal, error) {
	query, args, err := signalColumns().
		Join("cluster_signals cs ON cs.signal_id = signals.id").
		Where(sq.Eq{"cs.cluster_id": clusterID}).
		OrderBy("signals.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build members query: %w", err)
	}

	return r.querySignals(ctx, query, args...)
}

func signalColumns() sq.SelectBuilder {
	return psql.Select("signals.id", "signals.source", "signals.external_id",
		"signals.title", "signals.body", "signals.url", "signals.posted_at",
		"signals.score", "signals.comment_count", "signals.community",
		"signals.sentiment", "signals.post_type", "signals.tag_status").
		From("signals")
}

func (r *PostgresRepository) querySignals(ctx context.Context, query string, args ...any) ([]domain.Signal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var (
			sig       domain.Signal
			sentiment sql.NullString
			postType  sql.NullString
		)
		if err := rows.Scan(&sig.ID, &sig.Source, &sig.ExternalID, &sig.Title,
			&sig.Body, &sig.URL, &sig.PostedAt, &sig.Score, &sig.CommentCount,
			&sig.Community, &sentiment, &postType, &sig.TagStatus); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Sentiment = domain.Sentiment(sentiment.String)
		sig.PostType = domain.PostType(postType.String)
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}

	return signals, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func trendJSON(trends map[string]int) any {
	if len(trends) == 0 {
		return nil
	}
	raw, err := json.Marshal(trends)
	if err != nil {
		return nil
	}
	return string(raw)
}
