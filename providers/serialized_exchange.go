package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/interfaces"
	"gitlab.com/aoterocom/autotrader/models"
	"golang.org/x/sync/semaphore"
)

// SerializedExchange lets one venue call run at a time. Callers wait for
// their turn within their own context. When a call reports
// models.ErrNotConnected the session is considered lost and the next call
// reconnects with the last credentials first.
type SerializedExchange struct {
	inner interfaces.ExchangeService
	sem   *semaphore.Weighted

	mu          sync.Mutex
	credentials *models.Credentials
	lost        bool
}

func NewSerializedExchange(inner interfaces.ExchangeService) *SerializedExchange {
	return &SerializedExchange{inner: inner, sem: semaphore.NewWeighted(1)}
}

func (s *SerializedExchange) Connect(ctx context.Context, credentials models.Credentials) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	err := s.inner.Connect(ctx, credentials)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = &credentials
	s.lost = err != nil
	return err
}

func (s *SerializedExchange) Disconnect() error {
	_ = s.sem.Acquire(context.Background(), 1)
	defer s.sem.Release(1)

	s.mu.Lock()
	s.credentials = nil
	s.lost = false
	s.mu.Unlock()
	return s.inner.Disconnect()
}

func (s *SerializedExchange) GetSnapshot(ctx context.Context, symbol string) (snapshot models.Snapshot, err error) {
	err = s.call(ctx, func() error {
		snapshot, err = s.inner.GetSnapshot(ctx, symbol)
		return err
	})
	return snapshot, err
}

func (s *SerializedExchange) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) (bars []models.Bar, err error) {
	err = s.call(ctx, func() error {
		bars, err = s.inner.GetBars(ctx, symbol, timeframe, from, to)
		return err
	})
	return bars, err
}

func (s *SerializedExchange) SendOrder(ctx context.Context, request models.OrderRequest) (fill models.Fill, err error) {
	err = s.call(ctx, func() error {
		fill, err = s.inner.SendOrder(ctx, request)
		return err
	})
	return fill, err
}

func (s *SerializedExchange) GetOpenPositions(ctx context.Context) (positions []models.Position, err error) {
	err = s.call(ctx, func() error {
		positions, err = s.inner.GetOpenPositions(ctx)
		return err
	})
	return positions, err
}

func (s *SerializedExchange) GetHistoryDeals(ctx context.Context, from, to time.Time) (deals []models.Deal, err error) {
	err = s.call(ctx, func() error {
		deals, err = s.inner.GetHistoryDeals(ctx, from, to)
		return err
	})
	return deals, err
}

func (s *SerializedExchange) GetBalance(ctx context.Context, asset string) (balance float64, err error) {
	err = s.call(ctx, func() error {
		balance, err = s.inner.GetBalance(ctx, asset)
		return err
	})
	return balance, err
}

func (s *SerializedExchange) call(ctx context.Context, fn func() error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if err := s.reconnectIfLost(ctx); err != nil {
		return err
	}
	err := fn()
	if errors.Is(err, models.ErrNotConnected) {
		s.mu.Lock()
		s.lost = s.credentials != nil
		s.mu.Unlock()
	}
	return err
}

func (s *SerializedExchange) reconnectIfLost(ctx context.Context) error {
	s.mu.Lock()
	lost, credentials := s.lost, s.credentials
	s.mu.Unlock()
	if !lost || credentials == nil {
		return nil
	}

	helpers.Logger.Warnln("Venue session lost, reconnecting")
	if err := s.inner.Connect(ctx, *credentials); err != nil {
		return fmt.Errorf("%w: reconnect failed: %s", models.ErrNotConnected, err.Error())
	}
	s.mu.Lock()
	s.lost = false
	s.mu.Unlock()
	helpers.Logger.Infoln("Venue session restored")
	return nil
}
