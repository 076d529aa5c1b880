package domain

import (
	"regexp"
	"strings"
	"time"
)

// SignalSource identifies the origin of a fetched signal.
type SignalSource string

const (
	SourceReddit    SignalSource = "reddit"
	SourceRSS       SignalSource = "rss"
	SourceAppStore  SignalSource = "app-store"
	SourcePlayStore SignalSource = "play-store"
)

// Sentiment classifies the emotional tone of a signal.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// PostType classifies what kind of feedback a signal carries.
type PostType string

const (
	PostTypeNeed               PostType = "need"
	PostTypeComplaint          PostType = "complaint"
	PostTypeFeatureRequest     PostType = "feature_request"
	PostTypeAlternativeSeeking PostType = "alternative_seeking"
	PostTypeComparison         PostType = "comparison"
	PostTypeQuestion           PostType = "question"
	PostTypeReview             PostType = "review"
	PostTypeShowcase           PostType = "showcase"
	PostTypeDiscussion         PostType = "discussion"
	PostTypeOther              PostType = "other"
)

// TagStatus tracks progress of a signal through the tagging stage.
type TagStatus string

const (
	TagStatusPending TagStatus = "pending"
	TagStatusTagged  TagStatus = "tagged"
	TagStatusFailed  TagStatus = "failed"
)

// RawSignal is an origin-tagged record as produced by a source adapter,
// before it has been persisted or assigned a database identity.
type RawSignal struct {
	Source       SignalSource
	ExternalID   string
	Title        string
	Body         string
	URL          string
	PostedAt     time.Time
	Score        int
	CommentCount int
	Community    string
}

// Signal is a persisted piece of external feedback flowing through the
// tagging and clustering stages.
type Signal struct {
	ID           int64
	Source       SignalSource
	ExternalID   string
	Title        string
	Body         string
	URL          string
	PostedAt     time.Time
	Score        int
	CommentCount int
	Community    string
	Sentiment    Sentiment
	PostType     PostType
	TagStatus    TagStatus
	Tags         []string
}

// RawProduct is a launched product observed from a catalog or store source,
// used only as contextual enrichment for brief synthesis.
type RawProduct struct {
	Source      string
	ExternalID  string
	Name        string
	Slug        string
	Tagline     string
	Description string
	URL         string
	ImageURL    string
	Category    string
	LaunchedAt  time.Time
}

// Tag is a topic label attached to signals by the tagging stage.
type Tag struct {
	Slug string
	Name string
}

// TagResult carries the validated classification outcome for one signal.
type TagResult struct {
	SignalID  int64
	Sentiment Sentiment
	PostType  PostType
	Tags      []string
}

// ClusterStatus marks whether a cluster is still eligible for briefing.
type ClusterStatus string

const (
	ClusterActive   ClusterStatus = "active"
	ClusterArchived ClusterStatus = "archived"
)

// NoiseLabel names the reserved cluster holding signals the grouping
// algorithm could not confidently place.
const NoiseLabel = "Miscellaneous"

// Cluster is a stored themed group of actionable signals.
type Cluster struct {
	ID          int64
	Label       string
	Summary     string
	MemberCount int
	Status      ClusterStatus
}

// ClusterResult is one group produced by the clustering algorithm before it
// is persisted.
type ClusterResult struct {
	Label     string
	Summary   string
	SignalIDs []int64
}

// Harvest is the combined output of one source fetch.
type Harvest struct {
	Signals  []RawSignal
	Products []RawProduct
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]?$`)

// ValidSlug reports whether s is an acceptable tag slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// NormalizeSentiment maps untrusted model output onto a known sentiment,
// defaulting to neutral.
func NormalizeSentiment(v string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(v))) {
	case SentimentPositive, SentimentNegative, SentimentNeutral, SentimentMixed:
		return Sentiment(strings.ToLower(strings.TrimSpace(v)))
	default:
		return SentimentNeutral
	}
}

// NormalizePostType maps untrusted model output onto a known post type,
// defaulting to other.
func NormalizePostType(v string) PostType {
	switch PostType(strings.ToLower(strings.TrimSpace(v))) {
	case PostTypeNeed, PostTypeComplaint, PostTypeFeatureRequest,
		PostTypeAlternativeSeeking, PostTypeComparison, PostTypeQuestion,
		PostTypeReview, PostTypeShowcase, PostTypeDiscussion, PostTypeOther:
		return PostType(strings.ToLower(strings.TrimSpace(v)))
	default:
		return PostTypeOther
	}
}

// Actionable reports whether a post type is eligible for clustering.
// Questions, reviews, showcases and plain discussion carry too little
// product-gap information to group.
func (p PostType) Actionable() bool {
	switch p {
	case PostTypeNeed, PostTypeComplaint, PostTypeFeatureRequest,
		PostTypeAlternativeSeeking, PostTypeComparison:
		return true
	default:
		return false
	}
}
