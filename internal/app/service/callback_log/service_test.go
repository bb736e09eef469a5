package callback_log

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
)

type memStore struct {
	mu       sync.Mutex
	created  []*models.PaymentCallbackLog
	finished map[string]map[string]any
	err      error
}

func (m *memStore) Create(_ context.Context, l *models.PaymentCallbackLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, l)
	return nil
}

func (m *memStore) Finish(_ context.Context, id string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = map[string]map[string]any{}
	}
	m.finished[id] = values
	return nil
}

func (m *memStore) ListByCheckoutID(_ context.Context, checkoutID string) ([]models.PaymentCallbackLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentCallbackLog
	for _, l := range m.created {
		if l.CheckoutRequestID == checkoutID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) finishedValues(id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[id]
}

func TestReceivedAndFinish(t *testing.T) {
	store := &memStore{}
	s := New(store, zap.NewNop().Sugar())
	ctx := context.Background()

	raw := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"c","ResultCode":1032,"ResultDesc":"cancelled"}}}`)
	cb, err := mpesa.ParseCallback(raw)
	require.NoError(t, err)

	id := s.Received(ctx, raw, cb)
	require.NotEmpty(t, id)
	require.Len(t, store.created, 1)
	require.Equal(t, "c", store.created[0].CheckoutRequestID)
	require.Equal(t, 1032, *store.created[0].ResultCode)
	require.Equal(t, models.PaymentCallbackLogStatusReceived, store.created[0].Status)

	s.Finish(ctx, id, "p-1", "failed", errors.New("boom"))
	require.Eventually(t, func() bool { return store.finishedValues(id) != nil }, time.Second, 5*time.Millisecond)
	v := store.finishedValues(id)
	require.Equal(t, models.PaymentCallbackLogStatusHandleFailed, v["status"])
	require.Equal(t, "p-1", v["payment_id"])
}

func TestReceived_NonJSONAndStoreFailure(t *testing.T) {
	store := &memStore{}
	s := New(store, zap.NewNop().Sugar())

	id := s.Received(context.Background(), []byte("not json"), nil)
	require.NotEmpty(t, id)
	require.JSONEq(t, `"not json"`, string(store.created[0].Data))

	store.err = errors.New("db down")
	require.Empty(t, s.Received(context.Background(), []byte(`{}`), nil))
	s.Finish(context.Background(), "", "", "ignored", nil)
}
