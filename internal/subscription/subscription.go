// Package subscription stores which group chats receive the evening
// digest and when.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"diarybot/internal/schedule"
	"diarybot/internal/storage"
	"diarybot/pkg/logx"
)

const SnapshotName = "subscriptions"

// Subscription is one chat's digest setting. LastSentDate is the
// DD.MM.YYYY day a digest last went out, empty if never.
type Subscription struct {
	ChatID       int64  `json:"chat_id"`
	SendTime     string `json:"send_time"`
	LastSentDate string `json:"last_sent_date,omitempty"`
}

type Store struct {
	store storage.Store
	log   logx.Logger

	mu   sync.Mutex
	subs map[int64]Subscription
}

func New(store storage.Store, log logx.Logger) *Store {
	return &Store{
		store: store,
		log:   log.With(logx.String("comp", "subscription")),
		subs:  map[int64]Subscription{},
	}
}

func (s *Store) Load(ctx context.Context) error {
	b, ok, err := s.store.Load(ctx, SnapshotName)
	if err != nil || !ok {
		return err
	}
	var list []Subscription
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("decode %s: %w", SnapshotName, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range list {
		s.subs[sub.ChatID] = sub
	}
	return nil
}

// List returns every subscription ordered by chat id.
func (s *Store) List() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

func (s *Store) Get(chatID int64) (Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chatID]
	return sub, ok
}

// Upsert sets the send time for chatID. An unchanged time keeps the
// last sent date.
func (s *Store) Upsert(ctx context.Context, chatID int64, sendTime string) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[chatID]
	if sub.SendTime != sendTime {
		sub.LastSentDate = ""
	}
	sub.ChatID = chatID
	sub.SendTime = sendTime
	s.subs[chatID] = sub
	s.persistLocked(ctx)
	s.log.Info("subscription saved", logx.Int64("chat_id", chatID), logx.String("send_time", sendTime))
	return sub
}

func (s *Store) Remove(ctx context.Context, chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[chatID]; !ok {
		return false
	}
	delete(s.subs, chatID)
	s.persistLocked(ctx)
	s.log.Info("subscription removed", logx.Int64("chat_id", chatID))
	return true
}

// MarkSent records that chatID received the digest on day (DD.MM.YYYY).
// It reports false when the chat unsubscribed meanwhile.
func (s *Store) MarkSent(ctx context.Context, chatID int64, day string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chatID]
	if !ok {
		return false
	}
	sub.LastSentDate = day
	s.subs[chatID] = sub
	s.persistLocked(ctx)
	return true
}

func (s *Store) persistLocked(ctx context.Context) {
	list := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		list = append(list, sub)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ChatID < list[j].ChatID })
	b, err := json.Marshal(list)
	if err == nil {
		err = s.store.Save(context.WithoutCancel(ctx), SnapshotName, b)
	}
	if err != nil {
		s.log.Error("subscriptions snapshot failed", logx.Err(fmt.Errorf("%w: %w", schedule.ErrPersistence, err)))
	}
}
