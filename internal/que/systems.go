package que

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// ACSystem is one air-conditioning system registered to the account.
type ACSystem struct {
	Serial      string `json:"serial"`
	Description string `json:"description"`
	ID          int64  `json:"id"`
	Type        string `json:"type"`
}

// Source supplies systems and their status documents.
type Source interface {
	ListSystems(ctx context.Context) ([]ACSystem, error)
	LatestStatus(ctx context.Context, serial string) (any, error)
}

// Sender delivers command payloads.
type Sender interface {
	SendCommand(ctx context.Context, serial string, payload map[string]any) error
}

// Ensure Client implements Source and Sender.
var (
	_ Source = (*Client)(nil)
	_ Sender = (*Client)(nil)
)

// ListSystems returns the systems registered to the account.
func (c *Client) ListSystems(ctx context.Context) ([]ACSystem, error) {
	var resp struct {
		Embedded struct {
			ACSystems []struct {
				Serial      string      `json:"serial"`
				Description string      `json:"description"`
				ID          json.Number `json:"id"`
				Type        string      `json:"type"`
			} `json:"ac-system"`
		} `json:"_embedded"`
	}
	if err := c.getJSON(ctx, acSystemsPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing systems: %w", err)
	}

	systems := make([]ACSystem, 0, len(resp.Embedded.ACSystems))
	for _, s := range resp.Embedded.ACSystems {
		if s.Serial == "" {
			c.logger.Warn("skipping system without serial", "description", s.Description)
			continue
		}
		id, err := s.ID.Int64()
		if err != nil && s.ID != "" {
			c.logger.Debug("non-numeric system id", "serial", s.Serial, "id", s.ID.String())
		}
		systems = append(systems, ACSystem{
			Serial:      s.Serial,
			Description: s.Description,
			ID:          id,
			Type:        s.Type,
		})
	}
	return systems, nil
}

// LatestStatus returns the most recent status document for serial, decoded
// into maps, slices and json.Number scalars.
func (c *Client) LatestStatus(ctx context.Context, serial string) (any, error) {
	var doc any
	if err := c.getJSON(ctx, statusLatestPath, url.Values{"serial": {serial}}, &doc); err != nil {
		return nil, fmt.Errorf("fetching status for %s: %w", serial, err)
	}
	return doc, nil
}

// SendCommand posts a command payload for serial.
func (c *Client) SendCommand(ctx context.Context, serial string, payload map[string]any) error {
	if err := c.postJSON(ctx, commandSendPath, url.Values{"serial": {serial}}, payload); err != nil {
		return fmt.Errorf("sending command to %s: %w", serial, err)
	}
	return nil
}

// Account returns the account document.
func (c *Client) Account(ctx context.Context) (map[string]any, error) {
	var doc map[string]any
	if err := c.getJSON(ctx, accountPath, nil, &doc); err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return doc, nil
}
