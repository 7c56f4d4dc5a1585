package learning

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/model/chat"
)

// ConversationSource supplies the rolling history the scheduler relearns from.
type ConversationSource interface {
	// Conversations returns recent messages keyed by persona id.
	Conversations(ctx context.Context) map[string][]chat.Message
}

// Scheduler periodically replays recent conversation history through the
// learned phrase store so passive learning keeps up without sitting on the
// send path.
type Scheduler struct {
	cron   *cron.Cron
	store  *Store
	source ConversationSource
	log    *zap.Logger
}

// NewScheduler registers the relearn job under the given cron spec
// (e.g. "@every 10m").
func NewScheduler(spec string, store *Store, source ConversationSource, log *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		store:  store,
		source: source,
		log:    log,
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for personaID, messages := range s.source.Conversations(ctx) {
		if err := s.store.LearnFromConversation(ctx, personaID, messages); err != nil {
			s.log.Warn("relearn pass failed",
				zap.String("persona", personaID),
				zap.Error(err))
		}
	}
}
