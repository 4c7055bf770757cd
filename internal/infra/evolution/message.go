package evolution

import (
	"context"
	"net/http"
	"net/url"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// SendText sends a text message. to is a phone number or a group JID.
func (c *Client) SendText(ctx context.Context, instanceName, to, text string) (*domain.SendResult, error) {
	ctx, span := tracer.Start(ctx, "Evolution.SendText")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName))

	body := map[string]any{
		"number": to,
		"text":   text,
	}

	var resp sendTextResponse
	if err := c.do(ctx, "send_text", http.MethodPost, "/message/sendText/"+url.PathEscape(instanceName), body, &resp); err != nil {
		return nil, err
	}
	return &domain.SendResult{MessageID: resp.Key.ID, Status: resp.Status}, nil
}
