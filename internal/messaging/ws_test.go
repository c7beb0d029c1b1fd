package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/model"
)

func TestOrderStatusStream(t *testing.T) {
	hub := NewHub()
	e := echo.New()
	e.GET("/orders/:orderID/statuses/stream", hub.OrderStatusStream(func(_ context.Context, id string) error {
		if id != "o1" {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return nil
	}))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/orders/o1/statuses/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("o1") == 1 }, time.Second, 10*time.Millisecond)

	hub.PublishOrderStatus("o2", model.OrderStatus{StatusCode: model.OrderRejected})
	hub.PublishOrderStatus("o1", model.OrderStatus{StatusCode: model.OrderAccepted, ReasonText: "go"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt struct {
		Type string            `json:"type"`
		Data model.OrderStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, EventOrderStatus, evt.Type)
	assert.Equal(t, model.OrderAccepted, evt.Data.StatusCode)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("o1") == 0 }, time.Second, 10*time.Millisecond)
}

func streamServer(t *testing.T, hub *Hub) string {
	t.Helper()
	e := echo.New()
	e.GET("/orders/:orderID/statuses/stream", hub.OrderStatusStream(func(context.Context, string) error { return nil }))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/orders/"
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	hub.sendBuffer = 2
	hub.writeWait = 200 * time.Millisecond
	base := streamServer(t, hub)

	// Connected but never reads.
	stalled, _, err := websocket.DefaultDialer.Dial(base+"o1/statuses/stream", nil)
	require.NoError(t, err)
	defer stalled.Close()

	healthy, _, err := websocket.DefaultDialer.Dial(base+"o2/statuses/stream", nil)
	require.NoError(t, err)
	defer healthy.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers("o1") == 1 && hub.Subscribers("o2") == 1
	}, time.Second, 10*time.Millisecond)

	big := model.OrderStatus{StatusCode: model.OrderAccepted, ReasonText: strings.Repeat("x", 1<<20)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 50 {
			hub.PublishOrderStatus("o1", big)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a subscriber that does not read")
	}

	assert.Eventually(t, func() bool { return hub.Subscribers("o1") == 0 }, 3*time.Second, 10*time.Millisecond,
		"stalled subscriber is disconnected")

	hub.PublishOrderStatus("o2", model.OrderStatus{StatusCode: model.OrderCompleted})
	require.NoError(t, healthy.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := healthy.ReadMessage()
	require.NoError(t, err)
	var evt struct {
		Data model.OrderStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, model.OrderCompleted, evt.Data.StatusCode)
	assert.Equal(t, 1, hub.Subscribers("o2"))
}

func TestOrderStatusStreamDeliversInOrder(t *testing.T) {
	hub := NewHub()
	base := streamServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"o1/statuses/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers("o1") == 1 }, time.Second, 10*time.Millisecond)

	codes := []model.OrderStatusCode{model.OrderAccepted, model.OrderCompleted, model.OrderCanceled}
	for _, c := range codes {
		hub.PublishOrderStatus("o1", model.OrderStatus{StatusCode: c})
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range codes {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var evt struct {
			Data model.OrderStatus `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &evt))
		assert.Equal(t, want, evt.Data.StatusCode)
	}
}

func TestOrderStatusStreamUnknownOrder(t *testing.T) {
	hub := NewHub()
	e := echo.New()
	e.GET("/orders/:orderID/statuses/stream", hub.OrderStatusStream(func(context.Context, string) error {
		return echo.NewHTTPError(http.StatusNotFound)
	}))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/orders/nope/statuses/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
