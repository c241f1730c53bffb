package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerai-id/backend-gerai/internal/money"
	"github.com/gerai-id/backend-gerai/internal/promo"
)

// ProductRepo reads the base-price tree the pricing engine resolves against.
// Catalog CRUD itself lives with the admin collaborator; this service only
// ever reads prices.
type ProductRepo struct {
	Pool *pgxpool.Pool
}

// ProductInfo is a product tree plus the classification ids the voucher scope
// matcher needs when carts are assembled from this product.
type ProductInfo struct {
	Tree       promo.ProductTree
	Title      string
	BrandID    uuid.UUID
	CategoryID uuid.UUID
}

// GetTree loads the product, its variants, and their combinations with the
// declared base price at every level.
func (r ProductRepo) GetTree(ctx context.Context, productID uuid.UUID) (ProductInfo, error) {
	var info ProductInfo
	var id, brandID, categoryID pgtype.UUID
	var base int64
	err := r.Pool.QueryRow(ctx, `
		SELECT id, title, base_price, brand_id, category_id
		FROM products WHERE id = $1`, toPgUUID(productID)).
		Scan(&id, &info.Title, &base, &brandID, &categoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductInfo{}, ErrNotFound
		}
		return ProductInfo{}, fmt.Errorf("get product: %w", err)
	}
	info.Tree = promo.ProductTree{ProductID: fromPgUUID(id), BasePrice: money.Amount(base)}
	info.BrandID = fromPgUUID(brandID)
	info.CategoryID = fromPgUUID(categoryID)

	variants, err := r.listVariants(ctx, productID)
	if err != nil {
		return ProductInfo{}, err
	}
	info.Tree.Variants = variants
	return info, nil
}

// Tree loads just the base-price tree, which is all the price resolver needs.
func (r ProductRepo) Tree(ctx context.Context, productID uuid.UUID) (promo.ProductTree, error) {
	info, err := r.GetTree(ctx, productID)
	if err != nil {
		return promo.ProductTree{}, err
	}
	return info.Tree, nil
}

func (r ProductRepo) listVariants(ctx context.Context, productID uuid.UUID) ([]promo.VariantNode, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, base_price FROM product_variants
		WHERE product_id = $1 ORDER BY position, id`, toPgUUID(productID))
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []promo.VariantNode
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var id pgtype.UUID
		var base int64
		if err := rows.Scan(&id, &base); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		vid := fromPgUUID(id)
		index[vid] = len(variants)
		variants = append(variants, promo.VariantNode{VariantID: vid, BasePrice: money.Amount(base)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, nil
	}

	comboRows, err := r.Pool.Query(ctx, `
		SELECT c.variant_id, c.id, c.base_price
		FROM variant_combinations c
		JOIN product_variants v ON v.id = c.variant_id
		WHERE v.product_id = $1
		ORDER BY c.position, c.id`, toPgUUID(productID))
	if err != nil {
		return nil, fmt.Errorf("list combinations: %w", err)
	}
	defer comboRows.Close()
	for comboRows.Next() {
		var variantID, comboID pgtype.UUID
		var base int64
		if err := comboRows.Scan(&variantID, &comboID, &base); err != nil {
			return nil, fmt.Errorf("scan combination: %w", err)
		}
		i, ok := index[fromPgUUID(variantID)]
		if !ok {
			continue
		}
		variants[i].Combos = append(variants[i].Combos, promo.CombinationNode{
			CombinationID: fromPgUUID(comboID),
			BasePrice:     money.Amount(base),
		})
	}
	return variants, comboRows.Err()
}
