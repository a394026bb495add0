package deliverylog

import (
	"encoding/json"
	"time"

	"engage-notify/internal/domain/entity"
)

// DTO is a delivery log row as served by the API.
type DTO struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	PhoneNumber  string          `json:"phone_number"`
	TemplateName string          `json:"template_name"`
	Status       string          `json:"status"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	APIResponse  json.RawMessage `json:"api_response,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ListResponse is the paginated /logs body.
type ListResponse struct {
	Items  []DTO `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// StatsResponse is the /logs/stats body.
type StatsResponse struct {
	Days int `json:"days"`
	entity.LogStats
}

func toDTO(a *entity.DeliveryAttempt) DTO {
	return DTO{
		ID:           a.ID,
		OrderID:      a.OrderID,
		PhoneNumber:  a.PhoneNumber,
		TemplateName: a.TemplateName,
		Status:       a.Status,
		ResponseData: a.ResponseData,
		APIResponse:  a.APIResponse,
		ErrorMessage: a.ErrorMessage,
		RetryCount:   a.RetryCount,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toDTOs(in []*entity.DeliveryAttempt) []DTO {
	out := make([]DTO, 0, len(in))
	for _, a := range in {
		out = append(out, toDTO(a))
	}
	return out
}
