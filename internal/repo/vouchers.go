package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerai-id/backend-gerai/internal/money"
	"github.com/gerai-id/backend-gerai/internal/voucher"
)

var (
	// ErrDuplicateCode is returned when a voucher code already exists.
	ErrDuplicateCode = voucher.ErrDuplicateCode
	// ErrRedemptionDenied is returned when the atomic redemption update found
	// the usage cap exhausted or the user already in the redemption history.
	ErrRedemptionDenied = voucher.ErrRedemptionDenied
)

// VoucherRepo persists voucher rules and their redemption history.
type VoucherRepo struct {
	Pool *pgxpool.Pool
}

const voucherColumns = `
	v.id, v.code, v.kind, v.value, v.min_order, v.start_at, v.end_at,
	v.usage_limit, v.used_count, v.active,
	v.groups_all, v.groups_new_users, v.groups_levels, v.groups_user_ids,
	v.scope_product_ids, v.scope_category_ids, v.scope_brand_ids,
	v.scope_event_ids, v.scope_campaign_ids,
	coalesce(array_agg(rd.user_id) FILTER (WHERE rd.user_id IS NOT NULL), '{}') AS used_by`

const voucherFromClause = `
	FROM vouchers v
	LEFT JOIN voucher_redemptions rd ON rd.voucher_id = v.id`

const voucherGroupBy = ` GROUP BY v.id`

// GetByCode loads one voucher with its redemption history.
func (r VoucherRepo) GetByCode(ctx context.Context, code string) (voucher.Voucher, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT`+voucherColumns+voucherFromClause+` WHERE v.code = $1`+voucherGroupBy,
		strings.TrimSpace(code))
	v, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return voucher.Voucher{}, ErrNotFound
		}
		return voucher.Voucher{}, fmt.Errorf("get voucher: %w", err)
	}
	return v, nil
}

// ListActive loads vouchers whose inclusive window contains now and that are
// not disabled. Exhausted or out-of-scope vouchers are still returned; the
// evaluator owns those verdicts.
func (r VoucherRepo) ListActive(ctx context.Context, now time.Time) ([]voucher.Voucher, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT`+voucherColumns+voucherFromClause+
			` WHERE v.active AND v.start_at <= $1 AND v.end_at >= $1`+voucherGroupBy+
			` ORDER BY v.code`, now)
	if err != nil {
		return nil, fmt.Errorf("list active vouchers: %w", err)
	}
	defer rows.Close()
	var out []voucher.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// List returns a page of vouchers plus the total count.
func (r VoucherRepo) List(ctx context.Context, limit, offset int32) ([]voucher.Voucher, int64, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT`+voucherColumns+voucherFromClause+voucherGroupBy+
			` ORDER BY v.code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()
	var out []voucher.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan voucher: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM vouchers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vouchers: %w", err)
	}
	return out, total, nil
}

// Create inserts a new voucher rule.
func (r VoucherRepo) Create(ctx context.Context, in voucher.Input) (voucher.Voucher, error) {
	var id pgtype.UUID
	err := r.Pool.QueryRow(ctx, `
		INSERT INTO vouchers (
			code, kind, value, min_order, start_at, end_at, usage_limit, active,
			groups_all, groups_new_users, groups_levels, groups_user_ids,
			scope_product_ids, scope_category_ids, scope_brand_ids,
			scope_event_ids, scope_campaign_ids
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`,
		strings.TrimSpace(in.Code), string(in.Kind), in.Value, in.MinOrder.Int64(),
		in.StartAt, in.EndAt, in.UsageLimit, in.Active,
		in.Groups.All, in.Groups.NewUsersOnly, in.Groups.Levels, toPgUUIDArray(in.Groups.UserIDs),
		toPgUUIDArray(in.Scope.ProductIDs), toPgUUIDArray(in.Scope.CategoryIDs),
		toPgUUIDArray(in.Scope.BrandIDs), toPgUUIDArray(in.Scope.EventIDs),
		toPgUUIDArray(in.Scope.CampaignIDs),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return voucher.Voucher{}, ErrDuplicateCode
		}
		return voucher.Voucher{}, fmt.Errorf("insert voucher: %w", err)
	}
	return r.GetByCode(ctx, in.Code)
}

// Update replaces a voucher rule identified by code. Usage counters are never
// written through this path.
func (r VoucherRepo) Update(ctx context.Context, code string, in voucher.Input) (voucher.Voucher, error) {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE vouchers SET
			kind = $2, value = $3, min_order = $4, start_at = $5, end_at = $6,
			usage_limit = $7, active = $8,
			groups_all = $9, groups_new_users = $10, groups_levels = $11, groups_user_ids = $12,
			scope_product_ids = $13, scope_category_ids = $14, scope_brand_ids = $15,
			scope_event_ids = $16, scope_campaign_ids = $17,
			updated_at = now()
		WHERE code = $1`,
		strings.TrimSpace(code), string(in.Kind), in.Value, in.MinOrder.Int64(),
		in.StartAt, in.EndAt, in.UsageLimit, in.Active,
		in.Groups.All, in.Groups.NewUsersOnly, in.Groups.Levels, toPgUUIDArray(in.Groups.UserIDs),
		toPgUUIDArray(in.Scope.ProductIDs), toPgUUIDArray(in.Scope.CategoryIDs),
		toPgUUIDArray(in.Scope.BrandIDs), toPgUUIDArray(in.Scope.EventIDs),
		toPgUUIDArray(in.Scope.CampaignIDs),
	)
	if err != nil {
		return voucher.Voucher{}, fmt.Errorf("update voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return voucher.Voucher{}, ErrNotFound
	}
	return r.GetByCode(ctx, code)
}

// Delete removes a voucher and its redemption rows.
func (r VoucherRepo) Delete(ctx context.Context, code string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM vouchers WHERE code = $1`, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Redeem performs the authoritative usage write: a single conditional
// increment guarded by the usage cap, plus the redemption row whose unique
// (voucher_id, user_id) constraint enforces one redemption per user, ever.
// Two racing checkouts cannot both pass a usage limit of one; the loser gets
// ErrRedemptionDenied and the caller re-evaluates for the user-facing reason.
func (r VoucherRepo) Redeem(ctx context.Context, voucherID, userID uuid.UUID, amount money.Amount) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO voucher_redemptions (voucher_id, user_id, amount)
		VALUES ($1, $2, $3)`, toPgUUID(voucherID), toPgUUID(userID), amount.Int64())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrRedemptionDenied
		}
		return fmt.Errorf("insert redemption: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE vouchers
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)`, toPgUUID(voucherID))
	if err != nil {
		return fmt.Errorf("increment used count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRedemptionDenied
	}
	return tx.Commit(ctx)
}

func scanVoucher(row pgx.Row) (voucher.Voucher, error) {
	var v voucher.Voucher
	var id pgtype.UUID
	var minOrder int64
	var groupUserIDs, scopeProducts, scopeCategories, scopeBrands, scopeEvents, scopeCampaigns, usedBy []pgtype.UUID
	err := row.Scan(
		&id, &v.Code, &v.Kind, &v.Value, &minOrder, &v.StartAt, &v.EndAt,
		&v.UsageLimit, &v.UsedCount, &v.Active,
		&v.Groups.All, &v.Groups.NewUsersOnly, &v.Groups.Levels, &groupUserIDs,
		&scopeProducts, &scopeCategories, &scopeBrands, &scopeEvents, &scopeCampaigns,
		&usedBy,
	)
	if err != nil {
		return voucher.Voucher{}, err
	}
	v.ID = fromPgUUID(id)
	v.MinOrder = money.Amount(minOrder)
	v.Groups.UserIDs = fromPgUUIDArray(groupUserIDs)
	v.Scope = voucher.Scope{
		ProductIDs:  fromPgUUIDArray(scopeProducts),
		CategoryIDs: fromPgUUIDArray(scopeCategories),
		BrandIDs:    fromPgUUIDArray(scopeBrands),
		EventIDs:    fromPgUUIDArray(scopeEvents),
		CampaignIDs: fromPgUUIDArray(scopeCampaigns),
	}
	v.UsedBy = fromPgUUIDArray(usedBy)
	return v, nil
}
