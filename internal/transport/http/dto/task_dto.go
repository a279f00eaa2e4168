package dto

import "github.com/leadbridge/backend/internal/domain"

type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// PanelResponse is the snapshot the dashboard renders: the ordered task list
// plus the counters the panel header shows.
type PanelResponse struct {
	Tasks       []*domain.Task `json:"tasks"`
	ActiveCount int            `json:"active_count"`
	Minimized   bool           `json:"minimized"`
}

type IntentResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

type CancelAllResponse struct {
	Requested int `json:"requested"`
}

type MinimizeResponse struct {
	Minimized bool `json:"minimized"`
}

type UploadRequest struct {
	ProcessID    string                   `json:"process_id"`
	Title        string                   `json:"title"`
	Description  string                   `json:"description"`
	Leads        []map[string]interface{} `json:"leads"`
	ListID       string                   `json:"list_id"`
	ListName     string                   `json:"list_name"`
	CampaignID   string                   `json:"campaign_id"`
	CampaignName string                   `json:"campaign_name"`
}

func (r *UploadRequest) Validate() []string {
	var errs []string
	if len(r.Leads) == 0 {
		errs = append(errs, "leads must not be empty")
	}
	if r.ListID == "" {
		errs = append(errs, "list_id is required")
	}
	if r.CampaignID == "" {
		errs = append(errs, "campaign_id is required")
	}
	return errs
}
