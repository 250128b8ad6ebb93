// internal/model/stats.go
package model

type CampaignStats struct {
	CampaignID  string  `json:"campaign_id"`
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	Bounced     int     `json:"bounced"`
	SuccessRate float64 `json:"success_rate"`
}

type DashboardStats struct {
	TotalContacts   int        `json:"total_contacts"`
	TotalTemplates  int        `json:"total_templates"`
	TotalCampaigns  int        `json:"total_campaigns"`
	ActiveCampaigns int        `json:"active_campaigns"`
	TotalEmailsSent int        `json:"total_emails_sent"`
	EmailsSentToday int        `json:"emails_sent_today"`
	RecentCampaigns []Campaign `json:"recent_campaigns"`
	RecentEmails    []EmailLog `json:"recent_emails"`
}
