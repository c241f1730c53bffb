package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerai-id/backend-gerai/internal/common"
	"github.com/gerai-id/backend-gerai/internal/money"
	"github.com/gerai-id/backend-gerai/internal/promo"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = common.ErrNotFound

// PromotionRepo persists promotions and their price entries.
type PromotionRepo struct {
	Pool *pgxpool.Pool
}

// ListActive loads every promotion whose window contains now, with entries.
func (r PromotionRepo) ListActive(ctx context.Context, now time.Time) ([]promo.Promotion, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, name, kind, start_at, end_at
		FROM promotions
		WHERE start_at <= $1 AND end_at > $1
		ORDER BY start_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list active promotions: %w", err)
	}
	promotions, err := scanPromotions(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachEntries(ctx, promotions); err != nil {
		return nil, err
	}
	return promotions, nil
}

// List returns a page of promotions (without entries) plus the total count.
func (r PromotionRepo) List(ctx context.Context, limit, offset int32) ([]promo.Promotion, int64, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, name, kind, start_at, end_at
		FROM promotions
		ORDER BY start_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	promotions, err := scanPromotions(rows)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM promotions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count promotions: %w", err)
	}
	return promotions, total, nil
}

// Get loads one promotion with its entries.
func (r PromotionRepo) Get(ctx context.Context, id uuid.UUID) (promo.Promotion, error) {
	var p promo.Promotion
	var pid pgtype.UUID
	err := r.Pool.QueryRow(ctx, `
		SELECT id, name, kind, start_at, end_at
		FROM promotions WHERE id = $1`, toPgUUID(id)).
		Scan(&pid, &p.Name, &p.Kind, &p.StartAt, &p.EndAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promo.Promotion{}, ErrNotFound
		}
		return promo.Promotion{}, fmt.Errorf("get promotion: %w", err)
	}
	p.ID = fromPgUUID(pid)
	list := []promo.Promotion{p}
	if err := r.attachEntries(ctx, list); err != nil {
		return promo.Promotion{}, err
	}
	return list[0], nil
}

// Create inserts the promotion and its entries in one transaction.
func (r PromotionRepo) Create(ctx context.Context, in promo.Input) (promo.Promotion, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return promo.Promotion{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var pid pgtype.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO promotions (name, kind, start_at, end_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, in.Name, string(in.Kind), in.StartAt, in.EndAt).Scan(&pid)
	if err != nil {
		return promo.Promotion{}, fmt.Errorf("insert promotion: %w", err)
	}
	if err := insertEntries(ctx, tx, pid, in.Entries); err != nil {
		return promo.Promotion{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return promo.Promotion{}, err
	}
	return promo.Promotion{
		ID:      fromPgUUID(pid),
		Name:    in.Name,
		Kind:    in.Kind,
		StartAt: in.StartAt,
		EndAt:   in.EndAt,
		Entries: in.Entries,
	}, nil
}

// Update replaces the promotion row and its entire entry set.
func (r PromotionRepo) Update(ctx context.Context, id uuid.UUID, in promo.Input) (promo.Promotion, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return promo.Promotion{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE promotions SET name = $2, kind = $3, start_at = $4, end_at = $5, updated_at = now()
		WHERE id = $1`, toPgUUID(id), in.Name, string(in.Kind), in.StartAt, in.EndAt)
	if err != nil {
		return promo.Promotion{}, fmt.Errorf("update promotion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return promo.Promotion{}, ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM promotion_entries WHERE promotion_id = $1`, toPgUUID(id)); err != nil {
		return promo.Promotion{}, fmt.Errorf("clear promotion entries: %w", err)
	}
	if err := insertEntries(ctx, tx, toPgUUID(id), in.Entries); err != nil {
		return promo.Promotion{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return promo.Promotion{}, err
	}
	return promo.Promotion{ID: id, Name: in.Name, Kind: in.Kind, StartAt: in.StartAt, EndAt: in.EndAt, Entries: in.Entries}, nil
}

// Delete removes a promotion; entries cascade.
func (r PromotionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, toPgUUID(id))
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertEntries(ctx context.Context, tx pgx.Tx, promotionID pgtype.UUID, entries []promo.Entry) error {
	for _, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO promotion_entries (promotion_id, product_id, variant_id, combination_id, adjusted_price)
			VALUES ($1, $2, $3, $4, $5)`,
			promotionID,
			toPgUUID(e.Unit.ProductID),
			toPgUUIDPtr(e.Unit.VariantID),
			toPgUUIDPtr(e.Unit.CombinationID),
			e.Price.Int64(),
		)
		if err != nil {
			return fmt.Errorf("insert promotion entry: %w", err)
		}
	}
	return nil
}

func scanPromotions(rows pgx.Rows) ([]promo.Promotion, error) {
	defer rows.Close()
	var out []promo.Promotion
	for rows.Next() {
		var p promo.Promotion
		var id pgtype.UUID
		if err := rows.Scan(&id, &p.Name, &p.Kind, &p.StartAt, &p.EndAt); err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		p.ID = fromPgUUID(id)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r PromotionRepo) attachEntries(ctx context.Context, promotions []promo.Promotion) error {
	if len(promotions) == 0 {
		return nil
	}
	ids := make([]pgtype.UUID, 0, len(promotions))
	byID := make(map[uuid.UUID]int, len(promotions))
	for i, p := range promotions {
		ids = append(ids, toPgUUID(p.ID))
		byID[p.ID] = i
	}
	rows, err := r.Pool.Query(ctx, `
		SELECT promotion_id, product_id, variant_id, combination_id, adjusted_price
		FROM promotion_entries
		WHERE promotion_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("list promotion entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var promoID, productID, variantID, comboID pgtype.UUID
		var price int64
		if err := rows.Scan(&promoID, &productID, &variantID, &comboID, &price); err != nil {
			return fmt.Errorf("scan promotion entry: %w", err)
		}
		idx, ok := byID[fromPgUUID(promoID)]
		if !ok {
			continue
		}
		promotions[idx].Entries = append(promotions[idx].Entries, promo.Entry{
			Unit: promo.Unit{
				ProductID:     fromPgUUID(productID),
				VariantID:     fromPgUUID(variantID),
				CombinationID: fromPgUUID(comboID),
			},
			Price: money.Amount(price),
		})
	}
	return rows.Err()
}
