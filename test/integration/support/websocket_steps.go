package support

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

type wsResponse struct {
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type"`
	RequestID string          `json:"request_id"`
}

// wsRoundTrip sends one request and collects messages until a final one.
func (tc *TestContext) wsRoundTrip(req map[string]any) ([]wsResponse, error) {
	url := "ws" + strings.TrimPrefix(tc.Server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(req); err != nil {
		return nil, err
	}
	var msgs []wsResponse
	for {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var m wsResponse
		if err := conn.ReadJSON(&m); err != nil {
			return msgs, fmt.Errorf("websocket read failed: %w", err)
		}
		msgs = append(msgs, m)
		if m.Status != "processing" {
			return msgs, nil
		}
	}
}

func (tc *TestContext) iDetectOverWebSocket() error {
	data, err := tc.scenePNG()
	if err != nil {
		return err
	}
	msgs, err := tc.wsRoundTrip(map[string]any{"type": "detect", "request_id": "ws-detect", "image": data})
	if err != nil {
		return err
	}
	last := msgs[len(msgs)-1]
	if last.Status != "completed" {
		return fmt.Errorf("detect over websocket failed: %s (%s)", last.Error, last.ErrorType)
	}
	var res struct {
		Summary   string `json:"summary"`
		MaskTable string `json:"mask_table"`
	}
	if err := json.Unmarshal(last.Result, &res); err != nil {
		return err
	}
	tc.Summary, tc.MaskTable = res.Summary, res.MaskTable
	return nil
}

func (tc *TestContext) iInpaintRegionOverWebSocket(index int, prompt string) error {
	data, err := tc.scenePNG()
	if err != nil {
		return err
	}
	msgs, err := tc.wsRoundTrip(map[string]any{
		"type":       "inpaint",
		"image":      data,
		"mask_table": tc.MaskTable,
		"index":      index,
		"prompt":     prompt,
		"seed":       1,
	})
	if err != nil {
		return err
	}
	last := msgs[len(msgs)-1]
	tc.LastImage = nil
	tc.LastBody, _ = json.Marshal(map[string]any{"success": last.Status == "completed", "error_type": last.ErrorType})
	if last.Status != "completed" {
		return nil
	}
	var res struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(last.Result, &res); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(res.Image)
	if err != nil {
		return err
	}
	tc.LastImage, err = utils.DecodeImage(bytes.NewReader(raw))
	return err
}

// RegisterWebSocketSteps registers the /ws steps.
func (tc *TestContext) RegisterWebSocketSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run detection over the WebSocket$`, tc.iDetectOverWebSocket)
	sc.Step(`^I inpaint region (\d+) with prompt "([^"]*)" over the WebSocket$`, tc.iInpaintRegionOverWebSocket)
}
