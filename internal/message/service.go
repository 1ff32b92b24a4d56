package message

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"anonuplift/internal/apperr"
	"anonuplift/internal/captcha"
	"anonuplift/internal/logging"
	"anonuplift/internal/ratelimit"

	"github.com/google/uuid"
)

const DefaultMaxLength = 280

type Store interface {
	Create(ctx context.Context, m *Message) error
	ListForRecipient(ctx context.Context, recipientID string, f InboxFilter) ([]Message, error)
	Get(ctx context.Context, id string) (*Message, error)
	UpdateFlags(ctx context.Context, id string, p FlagPatch, at time.Time) error
	Stats(ctx context.Context, recipientID string) (Stats, error)
}

// Recipients resolves a public username to an owner id.
type Recipients interface {
	Resolve(ctx context.Context, username string) (string, error)
}

type ContentGuard interface {
	Blocked(ctx context.Context, text string) bool
}

type Limiter interface {
	Allow(ctx context.Context, key string) ratelimit.Result
}

type Service struct {
	Store      Store
	Recipients Recipients
	Captcha    captcha.Verifier
	// CaptchaRequired rejects submissions without a token while Captcha is enabled.
	CaptchaRequired bool
	Guard           ContentGuard
	Limiter         Limiter
	Hasher          *Hasher
	MaxLength       int
	Log             logging.Logger

	now   func() time.Time
	newID func() string
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func (s *Service) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

type SubmitInput struct {
	Username     string
	Category     Category
	Body         string
	CaptchaToken string
	ClientIP     string
	UserAgent    string
}

// Submit stores an anonymous message for the owner of Username. Checks run
// in a fixed order and a rate limit unit is spent only once every earlier
// check passed.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (string, error) {
	body, err := s.validate(in)
	if err != nil {
		return "", err
	}

	if err := s.verifyCaptcha(ctx, in.CaptchaToken, in.ClientIP); err != nil {
		return "", err
	}

	recipientID, err := s.Recipients.Resolve(ctx, in.Username)
	if err != nil {
		return "", err
	}

	if s.Guard.Blocked(ctx, body) {
		return "", ErrProfanity
	}

	clientIP := in.ClientIP
	if clientIP == "" {
		clientIP = "unknown"
	}
	res := s.Limiter.Allow(ctx, ratelimit.Key(clientIP, in.Username))
	if !res.Allowed {
		return "", apperr.RateLimited(res.ResetAt)
	}

	now := s.clock()
	m := &Message{
		ID:          s.id(),
		RecipientID: recipientID,
		Category:    in.Category,
		Content:     body,
		CreatedAt:   now,
		UpdatedAt:   now,
		IPHash:      s.Hasher.Sum(clientIP),
		UAHash:      s.Hasher.Sum(in.UserAgent),
	}
	if err := s.Store.Create(ctx, m); err != nil {
		s.Log.Error(ctx, "message persist failed", "recipient", recipientID, "err", err)
		return "", err
	}
	return m.ID, nil
}

func (s *Service) validate(in SubmitInput) (string, error) {
	if !in.Category.Valid() {
		return "", ErrInvalidCategory
	}
	max := s.MaxLength
	if max <= 0 {
		max = DefaultMaxLength
	}
	if strings.TrimSpace(in.Body) == "" {
		return "", ErrEmptyBody
	}
	if utf8.RuneCountInString(in.Body) > max {
		return "", errTooLong(max)
	}
	if !printable(in.Body) {
		return "", ErrInvalidText
	}
	// content is stored exactly as submitted
	return in.Body, nil
}

// printable rejects invalid UTF-8 and control characters other than line
// breaks and tabs. Postgres text columns refuse NUL.
func printable(body string) bool {
	if !utf8.ValidString(body) {
		return false
	}
	for _, r := range body {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func (s *Service) verifyCaptcha(ctx context.Context, token, clientIP string) error {
	if s.Captcha == nil || !s.Captcha.Enabled() {
		return nil
	}
	if token == "" {
		if s.CaptchaRequired {
			return ErrCaptchaRequired
		}
		return nil
	}
	ok, err := s.Captcha.Verify(ctx, token, clientIP)
	if err != nil {
		s.Log.Warn(ctx, "captcha provider error", "err", err)
		return ErrCaptchaFailed.WithCause(err)
	}
	if !ok {
		return ErrCaptchaFailed
	}
	return nil
}

// Inbox lists the owner's non-deleted messages, newest first.
func (s *Service) Inbox(ctx context.Context, ownerID string, f InboxFilter) ([]Message, error) {
	for _, c := range f.Categories {
		if !c.Valid() {
			return nil, ErrInvalidCategory
		}
	}
	return s.Store.ListForRecipient(ctx, ownerID, f)
}

// Get returns one message. A soft-deleted message reads as missing.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Message, error) {
	m, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if m.Deleted {
		return nil, ErrNotFound
	}
	return m, nil
}

type UpdateInput struct {
	ID       string
	Deleted  *bool
	Reported *bool
}

// Update applies the provided flags. Soft-deleted messages can still be
// flagged, so a repeated delete is a no-op success.
func (s *Service) Update(ctx context.Context, ownerID string, in UpdateInput) error {
	if in.ID == "" {
		return apperr.Validation("invalid_input", "messageId is required")
	}
	if _, err := s.owned(ctx, ownerID, in.ID); err != nil {
		return err
	}
	return s.Store.UpdateFlags(ctx, in.ID, FlagPatch{Deleted: in.Deleted, Reported: in.Reported}, s.clock())
}

func (s *Service) Stats(ctx context.Context, ownerID string) (Stats, error) {
	return s.Store.Stats(ctx, ownerID)
}

func (s *Service) owned(ctx context.Context, ownerID, id string) (*Message, error) {
	m, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.RecipientID != ownerID {
		return nil, ErrForbidden
	}
	return m, nil
}
