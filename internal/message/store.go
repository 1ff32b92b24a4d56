package message

import (
	"context"
	"errors"
	"time"

	"anonuplift/internal/apperr"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// InboxFilter narrows an inbox listing. Zero value lists everything.
type InboxFilter struct {
	Categories []Category
	Reported   *bool
}

// FlagPatch carries the flags to change; nil leaves a flag alone.
type FlagPatch struct {
	Deleted  *bool
	Reported *bool
}

type Stats struct {
	Total      int64              `json:"total"`
	Reported   int64              `json:"reported"`
	ByCategory map[Category]int64 `json:"byCategory"`
}

// GormStore keeps messages in Postgres.
type GormStore struct {
	DB      *gorm.DB
	Timeout time.Duration
}

func (s *GormStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

func (s *GormStore) Create(ctx context.Context, m *Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}

// ListForRecipient returns non-deleted messages, newest first.
func (s *GormStore) ListForRecipient(ctx context.Context, recipientID string, f InboxFilter) ([]Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := s.DB.WithContext(ctx).Model(&Message{}).
		Where("recipient_id = ? AND deleted = false", recipientID)

	if len(f.Categories) > 0 {
		cats := make([]string, 0, len(f.Categories))
		for _, c := range f.Categories {
			cats = append(cats, string(c))
		}
		q = q.Where("category = any(?)", pq.StringArray(cats))
	}
	if f.Reported != nil {
		q = q.Where("reported = ?", *f.Reported)
	}

	var rows []Message
	if err := q.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, apperr.Unavailable(err)
	}
	return rows, nil
}

// Get returns the message regardless of its deleted flag.
func (s *GormStore) Get(ctx context.Context, id string) (*Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var m Message
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, apperr.Unavailable(err)
	}
	return &m, nil
}

func (s *GormStore) UpdateFlags(ctx context.Context, id string, p FlagPatch, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	updates := map[string]any{"updated_at": at}
	if p.Deleted != nil {
		updates["deleted"] = *p.Deleted
	}
	if p.Reported != nil {
		updates["reported"] = *p.Reported
	}

	res := s.DB.WithContext(ctx).Model(&Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return apperr.Unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Stats(ctx context.Context, recipientID string) (Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		Category Category
		Count    int64
		Reported int64
	}
	err := s.DB.WithContext(ctx).Raw(`
		select category, count(*) as count, count(*) filter (where reported) as reported
		from messages
		where recipient_id = ? and deleted = false
		group by category
	`, recipientID).Scan(&rows).Error
	if err != nil {
		return Stats{}, apperr.Unavailable(err)
	}

	st := Stats{ByCategory: make(map[Category]int64, len(Categories))}
	for _, c := range Categories {
		st.ByCategory[c] = 0
	}
	for _, r := range rows {
		st.ByCategory[r.Category] = r.Count
		st.Total += r.Count
		st.Reported += r.Reported
	}
	return st, nil
}
