package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seoasis/contentforge/core/broker"
	"github.com/seoasis/contentforge/core/message"
)

// Progress is the per-run counters and phase marker spec §3 describes
// as "transient ... read by the status endpoint". Safe for concurrent
// updates from Phase 1/2 goroutines.
type Progress struct {
	mu               sync.Mutex
	ProjectID        uuid.UUID
	Phase            string
	KeywordsSearched int
	PostsScored      int
	Stored           int
}

func newProgress(projectID uuid.UUID) *Progress {
	return &Progress{ProjectID: projectID, Phase: "starting"}
}

func (p *Progress) setPhase(phase string) {
	p.mu.Lock()
	p.Phase = phase
	p.mu.Unlock()
}

func (p *Progress) incStored() {
	p.mu.Lock()
	p.Stored++
	p.mu.Unlock()
}

func (p *Progress) snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Progress{
		ProjectID:        p.ProjectID,
		Phase:            p.Phase,
		KeywordsSearched: p.KeywordsSearched,
		PostsScored:      p.PostsScored,
		Stored:           p.Stored,
	}
}

// ProgressEvent is the payload published on the optional progress
// topic, adapted from core/broker/kafka.go's generic message envelope
// into a pipeline-specific shape.
type ProgressEvent struct {
	ProjectID uuid.UUID `json:"project_id"`
	Phase     string    `json:"phase"`
	PageID    uuid.UUID `json:"page_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Stored    int       `json:"stored"`
	At        time.Time `json:"at"`
}

// ProgressPublisher fires ProgressEvents onto a broker.Producer.
// Publishing is best-effort: failures are logged by the caller and
// never interrupt pipeline execution, since the event stream is an
// observability aid, not part of the durable record.
type ProgressPublisher struct {
	producer broker.Producer
}

// NewProgressPublisher wraps a broker.Producer. A nil producer yields
// a no-op publisher, used when no broker is configured (spec's
// progress events are optional).
func NewProgressPublisher(producer broker.Producer) *ProgressPublisher {
	return &ProgressPublisher{producer: producer}
}

func (p *ProgressPublisher) Publish(ctx context.Context, evt ProgressEvent) error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Produce(ctx, message.New(evt))
}
