// Package store defines the durable entities from spec §3 and the
// transactional access pattern (C4) every other component reads and
// writes through.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Phase is a named stage recorded in Project.PhaseStatus.
type Phase string

// Project is the top-level durable entity. PhaseStatus and
// BrandWizardState are opaque JSON blobs at the storage boundary
// (spec §9's "typed config structs at component entry" design note —
// they are decoded into typed structs only inside the components that
// care about a particular phase's shape).
type Project struct {
	ID               uuid.UUID
	Name             string
	SiteURL          string
	PhaseStatus      map[string]map[string]any
	BrandWizardState map[string]any
}

// PageStatus enumerates CrawledPage.Status.
type PageStatus string

const (
	PageStatusPending   PageStatus = "pending"
	PageStatusCompleted PageStatus = "completed"
	PageStatusFailed    PageStatus = "failed"
)

// CrawledPage is owned by the crawl subsystem (out of scope); the
// pipeline only reads it.
type CrawledPage struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	NormalizedURL string
	Title         string
	Status        PageStatus
	Labels        []string
	Headings      map[string][]string
}

// PageKeywords is the caller-approved input to generation.
type PageKeywords struct {
	CrawledPageID  uuid.UUID
	PrimaryKeyword string
	IsApproved     bool
}

// LSITerm is one latent-semantic-index phrase from the optimization
// provider.
type LSITerm struct {
	Phrase       string
	Weight       float64
	AverageCount float64
	TargetCount  float64
}

// Competitor is one competing page surfaced by the optimization
// provider.
type Competitor struct {
	URL       string
	Title     string
	H2Texts   []string
	H3Texts   []string
	PageScore float64
	WordCount int
}

// HeadingTarget is a recommended heading structure entry.
type HeadingTarget struct {
	Tag    string
	Target string
	Min    int
	Max    int
	Source string
}

// KeywordTargetType distinguishes exact-keyword from LSI placements.
type KeywordTargetType string

const (
	KeywordTargetExact KeywordTargetType = "exact"
	KeywordTargetLSI   KeywordTargetType = "lsi"
)

// KeywordTarget is a recommended keyword placement.
type KeywordTarget struct {
	Signal  string
	Target  int
	Phrase  string
	Comment string
	Type    KeywordTargetType
}

// ContentBrief is one per page (unique on PageID), created and
// replaced by C8.
type ContentBrief struct {
	PageID            uuid.UUID
	Keyword           string
	LSITerms          []LSITerm
	RelatedSearches   []string
	Competitors       []Competitor
	RelatedQuestions  []string
	HeadingTargets    []HeadingTarget
	KeywordTargets    []KeywordTarget
	WordCountTarget   int
	WordCountMin      int
	WordCountMax      int
	PageScoreTarget   float64
	RawResponse       map[string]any
	PopTaskID         string
}

// PageContentStatus is the DAG from spec §3 invariant 2.
type PageContentStatus string

const (
	PageContentPending          PageContentStatus = "pending"
	PageContentGeneratingBrief  PageContentStatus = "generating_brief"
	PageContentWriting          PageContentStatus = "writing"
	PageContentChecking         PageContentStatus = "checking"
	PageContentComplete         PageContentStatus = "complete"
	PageContentFailed           PageContentStatus = "failed"
)

// QAIssue is one deterministic-quality-check finding (C6).
type QAIssue struct {
	Type    string
	Field   string
	Excerpt string
	RuleID  string
}

// QAResults is PageContent.QAResults, mutated in place by C6.
type QAResults struct {
	Passed    bool
	Issues    []QAIssue
	CheckedAt time.Time
	Error     string
}

// PageContent is owned by the pipeline; one per page.
type PageContent struct {
	CrawledPageID         uuid.UUID
	Status                PageContentStatus
	PageTitle             string
	MetaDescription       string
	TopDescription        string
	BottomDescription     string
	WordCount             int
	IsApproved            bool
	ApprovedAt            *time.Time
	QAResults             *QAResults
	GenerationStartedAt   *time.Time
	GenerationCompletedAt *time.Time
}

// Edit applies a field-level content edit and enforces spec §3
// invariant 3: editing any content field clears approval.
func (p *PageContent) Edit(mutate func(*PageContent)) {
	mutate(p)
	p.IsApproved = false
	p.ApprovedAt = nil
}

// PromptStep names a PromptLog.Step value.
type PromptStep string

const (
	PromptStepContentBrief PromptStep = "content_brief"
	PromptStepWriting      PromptStep = "writing"
)

// PromptLog is an append-only artifact per page.
type PromptLog struct {
	PageContentID uuid.UUID
	Step          PromptStep
	Role          string
	PromptText    string
	ResponseText  string
	CreatedAt     time.Time
}

// JobStatus enumerates CrawlHistory.Status, the target of C5.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobRunning     JobStatus = "running"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
	JobCancelled   JobStatus = "cancelled"
	JobInterrupted JobStatus = "interrupted"
)

// NonTerminalJobStatuses are eligible for recovery per spec §4.5.
var NonTerminalJobStatuses = []JobStatus{JobPending, JobRunning}

// IsTerminal reports whether s is a terminal status. "interrupted" is
// first-class terminal per spec §4.5.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobInterrupted:
		return true
	default:
		return false
	}
}

// CrawlHistory is a durable job record.
type CrawlHistory struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Status       JobStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
	PagesCrawled int
	PagesFailed  int
	Stats        map[string]any
	ErrorLog     []map[string]any
	ErrorMessage string
}

// BrandConfig is read by the writer and quality checker.
type BrandConfig struct {
	ProjectID uuid.UUID
	BrandName string
	V2Schema  map[string]any
}
