package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patrikvak/singq/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() *models.ReorderAppliedEvent {
	return &models.ReorderAppliedEvent{
		EventID: 100,
		Version: "v2",
		Mode:    "fairness",
		Metrics: models.PlanSummary{MoveCount: 2},
		Order: []models.Assignment{
			{QueueID: "a", Position: 0},
			{QueueID: "b", Position: 1},
		},
		MovedQueueIDs: []string{"b"},
	}
}

func TestWebhookBroadcaster_Delivers(t *testing.T) {
	received := make(chan webhookEnvelope, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var env webhookEnvelope
		require.NoError(t, json.Unmarshal(body, &env))
		received <- env
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wb := NewWebhookBroadcaster([]string{srv.URL}, nil)
	wb.ReorderApplied(context.Background(), testEvent())

	select {
	case env := <-received:
		assert.Equal(t, models.BroadcastTopic, env.Topic)
		require.NotNil(t, env.Payload)
		assert.Equal(t, int64(100), env.Payload.EventID)
		assert.Equal(t, []string{"b"}, env.Payload.MovedQueueIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWebhookBroadcaster_FansOutToAllURLs(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	wb := NewWebhookBroadcaster([]string{srv1.URL, srv2.URL}, nil)
	wb.ReorderApplied(context.Background(), testEvent())

	assert.Eventually(t, func() bool { return hits.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestWebhookBroadcaster_FailureDoesNotPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wb := NewWebhookBroadcaster([]string{srv.URL}, nil)
	// Must not panic or block the caller.
	wb.ReorderApplied(context.Background(), testEvent())
}

func TestNewWebhookBroadcaster_NoURLs(t *testing.T) {
	wb := NewWebhookBroadcaster(nil, nil)
	assert.Nil(t, wb)
	// A nil broadcaster is still safe to call.
	wb.ReorderApplied(context.Background(), testEvent())
}

func TestMultiAndNop(t *testing.T) {
	count := 0
	m := Multi{Nop{}, broadcastFunc(func() { count++ })}
	m.ReorderApplied(context.Background(), testEvent())
	assert.Equal(t, 1, count)
}

type broadcastFunc func()

func (f broadcastFunc) ReorderApplied(context.Context, *models.ReorderAppliedEvent) { f() }
