package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// maxSlugAttempts bounds the -N suffix search for a free slug.
const maxSlugAttempts = 50

// ============================================================
// Knowledge base: /v1/admin/knowledge
// ============================================================

func (s *AdminService) ListArticles(ctx context.Context, visibility, status string) ([]domain.KnowledgeArticle, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.ListArticles")
	defer span.End()

	return s.knowledge.ListArticles(ctx, visibility, status)
}

func (s *AdminService) GetArticle(ctx context.Context, articleID string) (*domain.KnowledgeArticle, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.GetArticle")
	defer span.End()

	return s.knowledge.GetArticle(ctx, articleID)
}

func (s *AdminService) GetArticleBySlug(ctx context.Context, slug string) (*domain.KnowledgeArticle, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.GetArticleBySlug")
	defer span.End()

	return s.knowledge.GetArticleBySlug(ctx, slug)
}

// CreateArticle stores a draft. The slug comes from the request or the
// title and gets a -N suffix when taken.
func (s *AdminService) CreateArticle(ctx context.Context, req *domain.ArticleRequest) (*domain.KnowledgeArticle, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.CreateArticle")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}

	base := req.Slug
	if base == "" {
		base = req.Title
	}
	slug, err := s.freeSlug(ctx, Slugify(base), "")
	if err != nil {
		return nil, err
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.ArticlePublic
	}
	a, err := s.knowledge.CreateArticle(ctx, &domain.KnowledgeArticle{
		Title:      strings.TrimSpace(req.Title),
		Slug:       slug,
		Content:    req.Content,
		Category:   strings.TrimSpace(req.Category),
		Tags:       normalizeWords(req.Tags),
		Visibility: visibility,
		Status:     domain.ArticleDraft,
	})
	if err != nil {
		return nil, fmt.Errorf("create article: %w", err)
	}
	s.logger.Info("article created", zap.String("article_id", a.ID), zap.String("slug", a.Slug))
	return a, nil
}

func (s *AdminService) UpdateArticle(ctx context.Context, articleID string, req *domain.ArticleRequest) (*domain.KnowledgeArticle, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.UpdateArticle")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	current, err := s.knowledge.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	patch := map[string]any{
		"title":    strings.TrimSpace(req.Title),
		"content":  req.Content,
		"category": strings.TrimSpace(req.Category),
		"tags":     normalizeWords(req.Tags),
	}
	if req.Visibility != "" {
		patch["visibility"] = req.Visibility
	}
	if req.Slug != "" && Slugify(req.Slug) != current.Slug {
		slug, err := s.freeSlug(ctx, Slugify(req.Slug), articleID)
		if err != nil {
			return nil, err
		}
		patch["slug"] = slug
	}

	if err := s.knowledge.UpdateArticle(ctx, articleID, patch); err != nil {
		return nil, fmt.Errorf("update article: %w", err)
	}
	return s.knowledge.GetArticle(ctx, articleID)
}

// PublishArticle makes a draft visible.
func (s *AdminService) PublishArticle(ctx context.Context, articleID string) (*domain.KnowledgeArticle, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.PublishArticle")
	defer span.End()

	a, err := s.knowledge.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.ArticlePublished {
		return a, nil
	}
	if err := s.knowledge.UpdateArticle(ctx, articleID, map[string]any{"status": domain.ArticlePublished}); err != nil {
		return nil, fmt.Errorf("publish article: %w", err)
	}
	a.Status = domain.ArticlePublished
	return a, nil
}

func (s *AdminService) DeleteArticle(ctx context.Context, articleID string) error {
	ctx, span := adminTracer.Start(ctx, "AdminService.DeleteArticle")
	defer span.End()

	if _, err := s.knowledge.GetArticle(ctx, articleID); err != nil {
		return err
	}
	return s.knowledge.DeleteArticle(ctx, articleID)
}

// freeSlug returns base, or base-2, base-3... whichever no other article
// uses. ownID is the article being renamed, if any.
func (s *AdminService) freeSlug(ctx context.Context, base, ownID string) (string, error) {
	if base == "" {
		return "", &domain.ErrValidation{Field: "slug", Message: "Slug inválido"}
	}
	for i := 1; i <= maxSlugAttempts; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		a, err := s.knowledge.GetArticleBySlug(ctx, candidate)
		var nf *domain.ErrNotFound
		switch {
		case errors.As(err, &nf):
			return candidate, nil
		case err != nil:
			return "", fmt.Errorf("lookup slug: %w", err)
		case a.ID == ownID:
			return candidate, nil
		}
	}
	return "", &domain.ErrConflict{Message: "slug já está em uso"}
}
