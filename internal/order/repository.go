package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

var ErrOrderNotFound = errors.New("order not found")

type Repository interface {
	List(ctx context.Context) ([]Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	// Create inserts the order and all of its details, filling in the
	// generated IDs.
	Create(ctx context.Context, o *Order) (int64, error)
	// Update inserts added as new details of o and rewrites the table number.
	// Existing detail rows are not touched.
	Update(ctx context.Context, o *Order, added []Detail) error
	// Delete removes the order and all of its details.
	Delete(ctx context.Context, id int64) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
	db   *sqlx.DB
}

// NewRepository returns a Repository that writes through pool and reads
// through db. Both must point at the same database.
func NewRepository(pool *pgxpool.Pool, db *sqlx.DB) Repository {
	return &postgresRepository{pool: pool, db: db}
}

func (r *postgresRepository) List(ctx context.Context) ([]Order, error) {
	orders := make([]Order, 0)
	err := r.db.SelectContext(ctx, &orders, `
		SELECT id, order_date, table_number
		FROM orders
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select orders: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	byID := make(map[int64]*Order, len(orders))
	for i := range orders {
		orders[i].Details = make([]Detail, 0)
		byID[orders[i].ID] = &orders[i]
	}

	// Every order is listed, so details are read whole instead of bound per id.
	var details []Detail
	err = r.db.SelectContext(ctx, &details, `
		SELECT id, menu_name, price, order_id
		FROM details
		ORDER BY order_id, id
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select details: %w", err)
	}

	for _, d := range details {
		if o, ok := byID[d.OrderID]; ok {
			o.Details = append(o.Details, d)
		}
	}

	return orders, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := r.db.GetContext(ctx, &o, `
		SELECT id, order_date, table_number
		FROM orders
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %d: %w", id, err)
	}

	o.Details = make([]Detail, 0)
	err = r.db.SelectContext(ctx, &o.Details, `
		SELECT id, menu_name, price, order_id
		FROM details
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select details for order id %d: %w", id, err)
	}

	return &o, nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) (int64, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (order_date, table_number)
			VALUES ($1, $2)
			RETURNING id
		`, o.OrderDate, o.TableNumber).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order: %w", err)
		}

		for i := range o.Details {
			o.Details[i].OrderID = o.ID
		}

		return insertDetails(ctx, tx, o.Details)
	})
	if err != nil {
		log.Warn().Err(err).Int("table_number", o.TableNumber).Msg("repository: create order rolled back")
		o.ID = 0
		for i := range o.Details {
			o.Details[i].ID = 0
			o.Details[i].OrderID = 0
		}
		return 0, err
	}

	return o.ID, nil
}

func (r *postgresRepository) Update(ctx context.Context, o *Order, added []Detail) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET table_number = $1
			WHERE id = $2
		`, o.TableNumber, o.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to update order %d: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}

		return insertDetails(ctx, tx, added)
	})
	if err != nil {
		log.Warn().Err(err).Int64("order_id", o.ID).Msg("repository: update order rolled back")
		return err
	}

	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM details WHERE order_id = $1`, id); err != nil {
			return fmt.Errorf("repository: failed to delete details of order %d: %w", id, err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("repository: failed to delete order %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}

		return nil
	})
}

func insertDetails(ctx context.Context, tx pgx.Tx, details []Detail) error {
	for i := range details {
		d := &details[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO details (menu_name, price, order_id)
			VALUES ($1, $2, $3)
			RETURNING id
		`, d.MenuName, d.Price, d.OrderID).Scan(&d.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return ErrOrderNotFound
			}
			return fmt.Errorf("repository: failed to insert detail for order %d: %w", d.OrderID, err)
		}
	}

	return nil
}
