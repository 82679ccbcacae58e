package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/debulol/dota2-inhouse/internal/engine"
)

// HTTPSource fetches snapshots from GET /api/v1/rooms/{roomID}.
type HTTPSource struct {
	BaseURL       string
	ParticipantID string
	Client        *http.Client
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h HTTPSource) Snapshot(ctx context.Context, roomID string) (engine.State, error) {
	endpoint := strings.TrimRight(h.BaseURL, "/") + "/api/v1/rooms/" + url.PathEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return engine.State{}, err
	}
	if h.ParticipantID != "" {
		req.Header.Set("X-Participant-ID", h.ParticipantID)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return engine.State{}, fmt.Errorf("get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return engine.State{}, engine.ErrRoomNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var body apiError
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return engine.State{}, fmt.Errorf("get snapshot: status %d: %s", resp.StatusCode, body.Error)
	}

	var st engine.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return engine.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return st, nil
}
