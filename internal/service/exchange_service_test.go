package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/models"
)

type stubBinance struct {
	configured bool
	orders     map[int][]adapter.BinanceFiatOrder
	begins     []time.Time
	err        error
}

func (s *stubBinance) Configured() bool { return s.configured }

func (s *stubBinance) FiatOrders(ctx context.Context, txType int, begin time.Time) ([]adapter.BinanceFiatOrder, error) {
	s.begins = append(s.begins, begin)
	return s.orders[txType], s.err
}

type memExchange struct {
	rows map[string]models.ExchangeTransaction
}

func (m *memExchange) Upsert(ctx context.Context, tx models.ExchangeTransaction) error {
	if m.rows == nil {
		m.rows = make(map[string]models.ExchangeTransaction)
	}
	m.rows[tx.OrderNo] = tx
	return nil
}

func (m *memExchange) List(ctx context.Context, limit int) ([]models.ExchangeTransaction, error) {
	var out []models.ExchangeTransaction
	for _, tx := range m.rows {
		out = append(out, tx)
	}
	return out, nil
}

func (m *memExchange) LatestCreatedAt(ctx context.Context, exchange string) (time.Time, error) {
	var latest time.Time
	for _, tx := range m.rows {
		if tx.Exchange == exchange && tx.CreatedAt.After(latest) {
			latest = tx.CreatedAt
		}
	}
	return latest, nil
}

func TestExchangeService_NotConfigured(t *testing.T) {
	api := &stubBinance{}
	svc := NewExchangeService(&memExchange{}, api)

	n, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, api.begins)
}

func TestExchangeService_Sync(t *testing.T) {
	created := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	api := &stubBinance{
		configured: true,
		orders: map[int][]adapter.BinanceFiatOrder{
			adapter.BinanceFiatDeposit: {
				{OrderNo: "d1", FiatCurrency: "EUR", Amount: d("100"), TotalFee: d("1"), Status: "Successful", CreateTime: created.UnixMilli()},
			},
			adapter.BinanceFiatWithdraw: {
				{OrderNo: "w1", FiatCurrency: "EUR", IndicatedAmount: d("50"), Status: "Processing", CreateTime: created.Add(time.Hour).UnixMilli()},
			},
		},
	}
	store := &memExchange{}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := NewExchangeService(store, api)
	svc.now = func() time.Time { return now }

	n, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-initialLookback), api.begins[0])

	assert.Equal(t, "deposit", store.rows["d1"].Direction)
	assert.Equal(t, "withdraw", store.rows["w1"].Direction)
	assert.True(t, d("50").Equal(store.rows["w1"].Amount), "indicated amount used when amount is empty")
	assert.True(t, created.Equal(store.rows["d1"].CreatedAt))

	// the next sync resumes from the newest stored order and overwrites by order number
	_, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, created.Add(time.Hour).Equal(api.begins[2]))
	assert.Len(t, store.rows, 2)
}

func TestExchangeService_UpstreamError(t *testing.T) {
	api := &stubBinance{configured: true, err: errors.New("418")}
	svc := NewExchangeService(&memExchange{}, api)
	_, err := svc.Sync(context.Background())
	assert.Error(t, err)
}
