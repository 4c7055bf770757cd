package domain

import "time"

// ============================================================
// Groups, members and moderation settings
// ============================================================

// GroupStatus is the persisted status of a group row.
type GroupStatus string

const (
	GroupActive   GroupStatus = "active"
	GroupArchived GroupStatus = "archived"
)

// Group maps the groups table.
type Group struct {
	ID            string      `json:"id"`
	CompanyID     string      `json:"company_id"`
	ConnectionID  string      `json:"connection_id"`
	GroupJID      string      `json:"group_jid"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	MembersCount  int         `json:"members_count"`
	MessagesCount int         `json:"messages_count"`
	Status        GroupStatus `json:"status"`
	LastActivity  *time.Time  `json:"last_activity,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// CreateGroupRequest is the body for POST /v1/groups.
type CreateGroupRequest struct {
	ConnectionID string   `json:"connection_id" validate:"required"`
	Name         string   `json:"name" validate:"required,min=1,max=100"`
	Description  string   `json:"description" validate:"max=512"`
	Participants []string `json:"participants" validate:"required,min=1,dive,phone"`
}

// UpdateGroupRequest is the body for PATCH /v1/groups/{id}.
type UpdateGroupRequest struct {
	Name        *string      `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string      `json:"description" validate:"omitempty,max=512"`
	Status      *GroupStatus `json:"status" validate:"omitempty,oneof=active archived"`
}

// ImportGroupsRequest is the body for POST /v1/groups/import.
type ImportGroupsRequest struct {
	ConnectionID string `json:"connection_id" validate:"required"`
}

// ImportGroupsResult summarizes a group import from the gateway.
type ImportGroupsResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// MembersRequest is the body for member add/remove/promote/demote.
type MembersRequest struct {
	Participants []string `json:"participants" validate:"required,min=1,max=256,dive,phone"`
}

// Member is one participant of a group.
type Member struct {
	JID    string `json:"jid"`
	Number string `json:"number"`
	Role   string `json:"role"` // member, admin, superadmin
}

// ModerationSettings maps the moderation_settings table (AI moderation per group).
type ModerationSettings struct {
	GroupID        string     `json:"group_id"`
	CompanyID      string     `json:"company_id"`
	Enabled        bool       `json:"enabled"`
	BannedWords    []string   `json:"banned_words"`
	BlockLinks     bool       `json:"block_links"`
	AutoRemove     bool       `json:"auto_remove"`
	MaxWarnings    int        `json:"max_warnings"`
	WarningMessage string     `json:"warning_message"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// DefaultModerationSettings is what a group gets before anyone saves settings.
func DefaultModerationSettings(groupID, companyID string) *ModerationSettings {
	return &ModerationSettings{
		GroupID:        groupID,
		CompanyID:      companyID,
		Enabled:        false,
		BannedWords:    []string{},
		MaxWarnings:    3,
		WarningMessage: "Sua mensagem viola as regras do grupo.",
	}
}

// UpdateModerationRequest is the body for PUT /v1/groups/{id}/moderation.
type UpdateModerationRequest struct {
	Enabled        bool     `json:"enabled"`
	BannedWords    []string `json:"banned_words" validate:"max=500,dive,min=1,max=64"`
	BlockLinks     bool     `json:"block_links"`
	AutoRemove     bool     `json:"auto_remove"`
	MaxWarnings    int      `json:"max_warnings" validate:"min=0,max=20"`
	WarningMessage string   `json:"warning_message" validate:"max=500"`
}
