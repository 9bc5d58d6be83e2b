package monitoring

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubDeliversSubscribedTopics(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?topic=car"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(PredictionEvent, "wheat", map[string]int{"label": 2})
	hub.Publish(PredictionEvent, "car", map[string]float64{"price": 16.5})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, PredictionEvent, msg.Type)
	assert.Equal(t, "car", msg.Topic)
	assert.JSONEq(t, `{"price":16.5}`, string(msg.Data))
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction("car", true)
	m.ObserveLoad("wheat", false, false)
	m.ObserveLoad("car", false, true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `predictions_total{fallback="true",model="car"} 1`)
	assert.Contains(t, body, `model_loaded{model="wheat"} 0`)
	assert.Contains(t, body, `model_loaded{model="car"} 1`)
	assert.Contains(t, body, `model_loads_total{model="car",result="failed"} 1`)
}
