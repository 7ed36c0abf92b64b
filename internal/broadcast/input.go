package broadcast

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"footprint-chart/internal/chart"
)

// ErrBadInput marks client messages that cannot be applied.
var ErrBadInput = errors.New("bad input")

// clientMessage is one input event from the renderer.
//
//	{"type":"wheel","x":400,"y":300,"deltaY":-120}
//	{"type":"pointerdown","x":400,"y":300}
//	{"type":"timeframe","timeframe":"5m"}
//	{"type":"options","options":{"footprintStyle":"delta"}}
type clientMessage struct {
	Type      string              `json:"type"`
	X         float64             `json:"x"`
	Y         float64             `json:"y"`
	DeltaY    float64             `json:"deltaY"`
	Enabled   bool                `json:"enabled"`
	Width     float64             `json:"width"`
	Height    float64             `json:"height"`
	Timeframe string              `json:"timeframe"`
	Options   *chart.OptionsPatch `json:"options"`
}

type cursorReply struct {
	Type   string `json:"type"`
	Cursor string `json:"cursor"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleInput decodes data and applies it on the chart owner. Pointer events
// answer with the cursor for the pointer position; others answer nothing.
func handleInput(ctx context.Context, ctrl Controller, data []byte) ([]byte, error) {
	var m clientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(ErrBadInput, "decode: %v", err)
	}

	var (
		applyErr error
		cursor   string
		pointer  bool
	)
	apply := func(c *chart.Chart) {
		switch m.Type {
		case "wheel":
			c.Wheel(m.X, m.Y, m.DeltaY)
		case "pointerdown":
			c.PointerDown(m.X, m.Y)
			pointer = true
		case "pointermove":
			c.PointerMove(m.X, m.Y)
			pointer = true
		case "pointerup":
			c.PointerUp(m.X, m.Y)
			pointer = true
		case "pointercancel":
			c.PointerCancel()
		case "pointerleave":
			c.PointerLeave()
		case "measure":
			c.SetMeasureTool(m.Enabled)
		case "resize":
			c.UpdateOptions(chart.OptionsPatch{Width: &m.Width, Height: &m.Height})
		case "options":
			if m.Options == nil {
				applyErr = errors.Wrap(ErrBadInput, "options message without options")
				return
			}
			c.UpdateOptions(*m.Options)
		case "timeframe":
			applyErr = c.SetTimeframe(m.Timeframe)
		case "reset":
			c.ResetView()
		default:
			applyErr = errors.Wrapf(ErrBadInput, "unknown message type %q", m.Type)
		}
		if pointer {
			cursor = c.Cursor(m.X, m.Y)
		}
	}

	if err := ctrl.Do(ctx, apply); err != nil {
		return nil, err
	}
	if applyErr != nil {
		return nil, applyErr
	}
	if pointer {
		return json.Marshal(cursorReply{Type: "cursor", Cursor: cursor})
	}
	return nil, nil
}

func errorReply(err error) []byte {
	b, _ := json.Marshal(errorMessage{Type: "error", Error: err.Error()})
	return b
}
