package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type Service interface {
	ListOrders(ctx context.Context) ([]Order, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	// CreateOrder stamps the order date and saves the order with its details.
	CreateOrder(ctx context.Context, orderInput *Order) (*Order, error)
	// UpdateOrder saves the table number and inserts the details of
	// orderInput that have not been saved yet. It returns how many details
	// were inserted.
	UpdateOrder(ctx context.Context, orderInput *Order) (int, error)
	DeleteOrder(ctx context.Context, id int64) error
}

type Option func(*service)

// WithClock overrides the time source used to stamp new orders.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	orderRepo Repository
	now       func() time.Time
}

func NewService(orderRepo Repository, opts ...Option) Service {
	s := &service{
		orderRepo: orderRepo,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.orderRepo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders in repository")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	return orders, nil
}

func (s *service) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Int64("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Int64("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

func (s *service) CreateOrder(ctx context.Context, orderInput *Order) (*Order, error) {
	orderInput.ID = 0
	orderInput.OrderDate = s.now().UTC()

	for i := range orderInput.Details {
		orderInput.Details[i].ID = 0
		orderInput.Details[i].OrderID = 0
	}

	if _, err := s.orderRepo.Create(ctx, orderInput); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Int64("order_id", orderInput.ID).
		Int("table_number", orderInput.TableNumber).
		Int("details", len(orderInput.Details)).
		Msg("service: order created successfully")

	return orderInput, nil
}

func (s *service) UpdateOrder(ctx context.Context, orderInput *Order) (int, error) {
	added := make([]Detail, 0)
	positions := make([]int, 0)
	for i, d := range orderInput.Details {
		if !d.IsNew() {
			continue
		}
		d.OrderID = orderInput.ID
		added = append(added, d)
		positions = append(positions, i)
	}

	err := s.orderRepo.Update(ctx, orderInput, added)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Int64("order_id", orderInput.ID).Msg("service: order not found, cannot update")
			return 0, ErrOrderNotFound
		}

		log.Error().Err(err).Int64("order_id", orderInput.ID).Msg("service: failed to update order in repository")
		return 0, fmt.Errorf("service: failed to update order: %w", err)
	}

	for j, i := range positions {
		orderInput.Details[i] = added[j]
	}

	log.Info().
		Int64("order_id", orderInput.ID).
		Int("details_added", len(added)).
		Msg("service: order updated successfully")

	return len(added), nil
}

// DeleteOrder removes the order and its details. A missing order is reported
// as an error wrapping ErrOrderNotFound.
func (s *service) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.orderRepo.Delete(ctx, id); err != nil {
		log.Error().Err(err).Int64("order_id", id).Msg("service: failed to delete order in repository")
		return fmt.Errorf("service: failed to delete order %d: %w", id, err)
	}

	log.Info().Int64("order_id", id).Msg("service: order deleted")

	return nil
}
