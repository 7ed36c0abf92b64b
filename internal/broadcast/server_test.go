package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint-chart/internal/chart"
	"footprint-chart/internal/model"
)

const t0 = int64(1_714_557_600_000)

// lockedChart is a Controller that serializes access with a mutex.
type lockedChart struct {
	mu  sync.Mutex
	c   *chart.Chart
	err error
}

func (l *lockedChart) Do(_ context.Context, fn func(*chart.Chart)) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.c)
	return nil
}

func newTestChart() *lockedChart {
	o := chart.DefaultOptions()
	o.Width, o.Height = 1000, 600
	c := chart.New(o)
	bars := make([]model.Bar, 30)
	for i := range bars {
		bars[i] = model.Bar{
			Time: t0 + int64(i)*60_000, Open: 100, High: 101, Low: 99.5, Close: 100.5,
			Footprint: []model.FootprintLevel{
				{Price: 101, Buy: 1, Sell: 2},
				{Price: 100.5, Buy: 3, Sell: 1},
				{Price: 100, Buy: 2, Sell: 2},
				{Price: 99.5, Buy: 1},
			},
		}
	}
	c.SetData(bars)
	return &lockedChart{c: c}
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_REST(t *testing.T) {
	ctrl := newTestChart()
	h := NewServer(ctrl, nil, nil).Handler()

	t.Run("healthz", func(t *testing.T) {
		rec := request(t, h, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("frame", func(t *testing.T) {
		rec := request(t, h, http.MethodGet, "/api/frame", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var f struct {
			Timeframe string            `json:"timeframe"`
			TickSize  float64           `json:"tickSize"`
			Bars      []json.RawMessage `json:"bars"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
		assert.Equal(t, "1m", f.Timeframe)
		assert.Equal(t, 0.5, f.TickSize)
		assert.NotEmpty(t, f.Bars)
	})

	t.Run("patch options", func(t *testing.T) {
		rec := request(t, h, http.MethodPatch, "/api/options", `{"footprintStyle":"delta","showDom":false}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var o chart.Options
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
		assert.Equal(t, chart.StyleDelta, o.FootprintStyle)
		assert.False(t, o.ShowDOM)
		assert.Equal(t, 1000.0, o.Width)

		assert.Equal(t, chart.StyleDelta, ctrl.c.Options().FootprintStyle)

		rec = request(t, h, http.MethodGet, "/api/options", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"footprintStyle":"delta"`)

		rec = request(t, h, http.MethodPatch, "/api/options", `{"width":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("timeframe", func(t *testing.T) {
		rec := request(t, h, http.MethodPut, "/api/timeframe", `{"timeframe":"5m"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5m", ctrl.c.Timeframe().Name)
		assert.Len(t, ctrl.c.Bars(), 6)

		rec = request(t, h, http.MethodPut, "/api/timeframe", `{"timeframe":"7m"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "5m", ctrl.c.Timeframe().Name)
	})

	t.Run("reset", func(t *testing.T) {
		ctrl.c.Pan(200, 0)
		moved := ctrl.c.View()
		rec := request(t, h, http.MethodPost, "/api/reset", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotEqual(t, moved.OffsetX, ctrl.c.View().OffsetX)
	})
}

func TestServer_ControllerStopped(t *testing.T) {
	ctrl := newTestChart()
	ctrl.err = errors.New("stopped")
	h := NewServer(ctrl, nil, nil).Handler()

	rec := request(t, h, http.MethodGet, "/api/frame", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "stopped")
}

func TestHandleInput(t *testing.T) {
	ctrl := newTestChart()
	ctx := context.Background()

	before := ctrl.c.View()
	reply, err := handleInput(ctx, ctrl, []byte(`{"type":"wheel","x":400,"y":300,"deltaY":-120}`))
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.NotEqual(t, before, ctrl.c.View())

	reply, err = handleInput(ctx, ctrl, []byte(`{"type":"pointerdown","x":400,"y":300}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"cursor","cursor":"grabbing"}`, string(reply))

	reply, err = handleInput(ctx, ctrl, []byte(`{"type":"pointerup","x":400,"y":300}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"cursor","cursor":"default"}`, string(reply))

	_, err = handleInput(ctx, ctrl, []byte(`{"type":"measure","enabled":true}`))
	require.NoError(t, err)
	reply, err = handleInput(ctx, ctrl, []byte(`{"type":"pointermove","x":400,"y":300}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"cursor","cursor":"crosshair"}`, string(reply))

	_, err = handleInput(ctx, ctrl, []byte(`{"type":"resize","width":800,"height":500}`))
	require.NoError(t, err)
	assert.Equal(t, 800.0, ctrl.c.Options().Width)

	_, err = handleInput(ctx, ctrl, []byte(`{"type":"options","options":{"showVolumeFootprint":false}}`))
	require.NoError(t, err)
	assert.False(t, ctrl.c.Options().ShowVolumeFootprint)

	_, err = handleInput(ctx, ctrl, []byte(`{"type":"timeframe","timeframe":"15m"}`))
	require.NoError(t, err)
	assert.Equal(t, "15m", ctrl.c.Timeframe().Name)

	for _, bad := range []string{`{`, `{"type":"fly"}`, `{"type":"options"}`} {
		_, err = handleInput(ctx, ctrl, []byte(bad))
		assert.ErrorIs(t, err, ErrBadInput, bad)
	}
	_, err = handleInput(ctx, ctrl, []byte(`{"type":"timeframe","timeframe":"2m"}`))
	assert.Error(t, err)
}

func TestServer_WebsocketPushesFrames(t *testing.T) {
	ctrl := newTestChart()
	frames := make(chan chart.Frame, 1)
	s := NewServer(ctrl, frames, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	frames <- ctrl.c.Frame()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	require.Greater(t, len(data), 7)
	assert.Equal(t, []byte{0xdc, 0x00, 18, 1, 0xa2, '1', 'm'}, data[:7])

	// input is applied and answered with the cursor
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pointermove","x":400,"y":300}`)))
	kind, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"type":"cursor","cursor":"default"}`, string(data))

	// a late client gets the latest frame straight away
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	_ = late.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err = late.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, byte(0xdc), data[0])

	require.NoError(t, late.Close())
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestServer_DisconnectEndsGesture(t *testing.T) {
	ctrl := newTestChart()
	s := NewServer(ctrl, make(chan chart.Frame), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pointerdown","x":400,"y":300}`)))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"cursor","cursor":"grabbing"}`, string(data))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return s.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)

	// a later hover must not pan
	var cursor string
	before := ctrl.c.View()
	require.NoError(t, ctrl.Do(context.Background(), func(c *chart.Chart) {
		c.PointerMove(450, 300)
		cursor = c.Cursor(450, 300)
	}))
	assert.Equal(t, "default", cursor)
	assert.Equal(t, before.OffsetX, ctrl.c.View().OffsetX)
}
