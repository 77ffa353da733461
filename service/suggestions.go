package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"meal-order-api/linkpreview"
	"meal-order-api/metrics"
	"meal-order-api/models"
	"meal-order-api/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Previewer describes the links found in each text. The result has one
// entry per text, in order.
type Previewer interface {
	EnrichAll(ctx context.Context, texts []string, onError func(url string, err error)) [][]linkpreview.Preview
}

type Suggestions struct {
	db        *gorm.DB
	previewer Previewer // nil disables link previews
	maxLength int
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
}

func NewSuggestions(db *gorm.DB, previewer Previewer, maxLength int, m *metrics.Metrics, logger *zap.SugaredLogger) *Suggestions {
	return &Suggestions{
		db:        db,
		previewer: previewer,
		maxLength: maxLength,
		metrics:   m,
		logger:    logger,
	}
}

func (s *Suggestions) Create(ctx context.Context, userID uint, text string) (*models.Suggestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("suggestion text is required")
	}
	if n := utf8.RuneCountInString(text); n > s.maxLength {
		return nil, models.NewValidationError(fmt.Sprintf("suggestion is %d characters, the limit is %d", n, s.maxLength))
	}

	suggestion := models.Suggestion{UserID: userID, Text: text}
	if err := s.db.WithContext(ctx).Create(&suggestion).Error; err != nil {
		return nil, fmt.Errorf("failed to save suggestion: %w", err)
	}
	s.logger.Infow("suggestion received", "suggestion_id", suggestion.ID, "user_id", userID)
	return &suggestion, nil
}

func (s *Suggestions) ListMine(ctx context.Context, userID uint) ([]models.Suggestion, error) {
	var out []models.Suggestion
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc").
		Find(&out).Error
	return out, err
}

// AdminSuggestion is a suggestion with its author and link previews.
type AdminSuggestion struct {
	models.Suggestion
	AuthorName string                `json:"author_name"`
	Links      []linkpreview.Preview `json:"links"`
}

// ListAll returns every suggestion, newest first, with author names looked
// up in batches and previews for any links in the text.
func (s *Suggestions) ListAll(ctx context.Context) ([]AdminSuggestion, error) {
	var suggestions []models.Suggestion
	err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&suggestions).Error
	if err != nil {
		return nil, err
	}

	authorIDs := make([]uint, len(suggestions))
	for i, sg := range suggestions {
		authorIDs[i] = sg.UserID
	}
	users, err := store.ByIDs[models.User](ctx, s.db, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve authors: %w", err)
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	out := make([]AdminSuggestion, len(suggestions))
	texts := make([]string, len(suggestions))
	for i, sg := range suggestions {
		out[i] = AdminSuggestion{Suggestion: sg, AuthorName: names[sg.UserID], Links: []linkpreview.Preview{}}
		texts[i] = sg.Text
	}
	if s.previewer == nil {
		return out, nil
	}

	links := s.previewer.EnrichAll(ctx, texts, func(url string, err error) {
		s.metrics.LinkPreviewFailure.Inc()
		s.logger.Debugw("link preview failed", "url", url, "error", err)
	})
	for i := range out {
		if i < len(links) && links[i] != nil {
			out[i].Links = links[i]
		}
	}
	return out, nil
}
