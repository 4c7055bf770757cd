package domain

import "time"

// KnowledgeArticle maps the knowledge_articles table.
type KnowledgeArticle struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Slug       string     `json:"slug"`
	Content    string     `json:"content"`
	Category   string     `json:"category"`
	Tags       []string   `json:"tags"`
	Visibility string     `json:"visibility"` // public, internal
	Status     string     `json:"status"`     // draft, published
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

const (
	ArticlePublic    = "public"
	ArticleInternal  = "internal"
	ArticleDraft     = "draft"
	ArticlePublished = "published"
)

// ArticleRequest is the body for creating or updating an article.
type ArticleRequest struct {
	Title      string   `json:"title" validate:"required,min=3,max=200"`
	Slug       string   `json:"slug" validate:"omitempty,max=200"`
	Content    string   `json:"content" validate:"required"`
	Category   string   `json:"category" validate:"max=60"`
	Tags       []string `json:"tags" validate:"max=20,dive,min=1,max=40"`
	Visibility string   `json:"visibility" validate:"omitempty,oneof=public internal"`
}
