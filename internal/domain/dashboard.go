package domain

// TenantDashboard is returned by GET /v1/dashboard.
type TenantDashboard struct {
	ConnectionsTotal        int `json:"connectionsTotal"`
	ConnectionsActive       int `json:"connectionsActive"`
	ConnectionsAwaitingQR   int `json:"connectionsAwaitingQr"`
	ConnectionsDisconnected int `json:"connectionsDisconnected"`
	Groups                  int `json:"groups"`
	MessagesSentThisMonth   int `json:"messagesSentThisMonth"`
	MessagesScheduled       int `json:"messagesScheduled"`
	UnreadNotifications     int `json:"unreadNotifications"`
}

// AdminDashboard is returned by GET /v1/admin/dashboard.
type AdminDashboard struct {
	CompaniesTotal     int `json:"companiesTotal"`
	CompaniesActive    int `json:"companiesActive"`
	CompaniesSuspended int `json:"companiesSuspended"`
	PlansActive        int `json:"plansActive"`
	ArticlesPublished  int `json:"articlesPublished"`
}
