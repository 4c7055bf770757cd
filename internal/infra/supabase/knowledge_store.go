package supabase

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/google/uuid"
)

// ============================================================
// Knowledge base articles (Admin Master)
// ============================================================

func (c *Client) ListArticles(ctx context.Context, visibility, status string) ([]domain.KnowledgeArticle, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListArticles")
	defer span.End()

	path := "knowledge_articles?order=created_at.desc"
	if visibility != "" {
		path += "&visibility=" + eq(visibility)
	}
	if status != "" {
		path += "&status=" + eq(status)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.KnowledgeArticle](body, "knowledge_articles")
}

func (c *Client) GetArticle(ctx context.Context, articleID string) (*domain.KnowledgeArticle, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetArticle")
	defer span.End()

	return c.getArticleBy(ctx, "id", articleID)
}

func (c *Client) GetArticleBySlug(ctx context.Context, slug string) (*domain.KnowledgeArticle, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetArticleBySlug")
	defer span.End()

	return c.getArticleBy(ctx, "slug", slug)
}

func (c *Client) getArticleBy(ctx context.Context, col, value string) (*domain.KnowledgeArticle, error) {
	body, err := c.get(ctx, "knowledge_articles?"+col+"="+eq(value)+"&limit=1")
	if err != nil {
		return nil, err
	}
	a, err := decodeFirst[domain.KnowledgeArticle](body, "knowledge_article")
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &domain.ErrNotFound{Resource: "knowledge_article", ID: value}
	}
	return a, nil
}

func (c *Client) CreateArticle(ctx context.Context, a *domain.KnowledgeArticle) (*domain.KnowledgeArticle, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateArticle")
	defer span.End()

	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return insertOne[domain.KnowledgeArticle](ctx, c, "knowledge_articles", map[string]any{
		"id":         uuid.NewString(),
		"title":      a.Title,
		"slug":       a.Slug,
		"content":    a.Content,
		"category":   a.Category,
		"tags":       tags,
		"visibility": a.Visibility,
		"status":     a.Status,
	})
}

func (c *Client) UpdateArticle(ctx context.Context, articleID string, patch map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateArticle")
	defer span.End()

	return c.doPatch(ctx, "knowledge_articles?id="+eq(articleID), withUpdatedAt(patch))
}

func (c *Client) DeleteArticle(ctx context.Context, articleID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteArticle")
	defer span.End()

	return c.doDelete(ctx, "knowledge_articles?id="+eq(articleID))
}

func (c *Client) CountArticles(ctx context.Context, status string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountArticles")
	defer span.End()

	path := "knowledge_articles?select=id"
	if status != "" {
		path += "&status=" + eq(status)
	}
	return c.doCount(ctx, path)
}
