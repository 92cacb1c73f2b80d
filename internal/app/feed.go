package app

import (
	"sync"

	"quiz-progress-service/internal/domain"
)

// StatsUpdate is pushed to study-stream subscribers after an attempt lands.
type StatsUpdate struct {
	SubjectID string        `json:"userId"`
	Totals    domain.Totals `json:"totals"`
}

// StatsFeed fans totals updates out to the open study streams of a subject.
type StatsFeed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan StatsUpdate]struct{}
}

func NewStatsFeed() *StatsFeed {
	return &StatsFeed{subscribers: make(map[string]map[chan StatsUpdate]struct{})}
}

// Subscribe returns a channel of updates for subjectID. The caller must
// invoke cancel to release it.
func (f *StatsFeed) Subscribe(subjectID string) (<-chan StatsUpdate, func()) {
	ch := make(chan StatsUpdate, 8)

	f.mu.Lock()
	subs, ok := f.subscribers[subjectID]
	if !ok {
		subs = make(map[chan StatsUpdate]struct{})
		f.subscribers[subjectID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[subjectID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(f.subscribers, subjectID)
		}
	}
	return ch, cancel
}

// Publish delivers the update to every subscriber of the subject. A full
// subscriber loses its oldest pending update instead of blocking the writer.
func (f *StatsFeed) Publish(update StatsUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[update.SubjectID] {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

// Subscribers reports how many streams are open for the subject.
func (f *StatsFeed) Subscribers(subjectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[subjectID])
}
