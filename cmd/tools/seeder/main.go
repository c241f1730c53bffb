package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

// Seeds a small demo catalog with one running promotion and a handful of
// vouchers so a fresh environment has something to resolve against.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	productID := seedCatalog(db)
	seedPromotions(db, productID)
	seedVouchers(db, productID)

	log.Println("seeding completed")
}

func seedCatalog(db *sql.DB) string {
	var productID string
	err := db.QueryRow(`
		INSERT INTO products (title, base_price)
		VALUES ('Kopi Gayo 250g', 100000)
		RETURNING id;
	`).Scan(&productID)
	if err != nil {
		log.Fatalf("seed product: %v", err)
	}

	var variantID string
	err = db.QueryRow(`
		INSERT INTO product_variants (product_id, base_price, position)
		VALUES ($1, 110000, 0)
		RETURNING id;
	`, productID).Scan(&variantID)
	if err != nil {
		log.Fatalf("seed variant: %v", err)
	}

	if _, err := db.Exec(`
		INSERT INTO variant_combinations (variant_id, base_price, position)
		VALUES ($1, 120000, 0), ($1, 125000, 1);
	`, variantID); err != nil {
		log.Fatalf("seed combinations: %v", err)
	}

	log.Printf("seeded product %s", productID)
	return productID
}

func seedPromotions(db *sql.DB, productID string) {
	var promotionID string
	err := db.QueryRow(`
		INSERT INTO promotions (name, kind, start_at, end_at)
		VALUES ('Promo Gajian', 'campaign', now() - interval '1 day', now() + interval '13 days')
		RETURNING id;
	`).Scan(&promotionID)
	if err != nil {
		log.Fatalf("seed promotion: %v", err)
	}

	if _, err := db.Exec(`
		INSERT INTO promotion_entries (promotion_id, product_id, adjusted_price)
		VALUES ($1, $2, 85000);
	`, promotionID, productID); err != nil {
		log.Fatalf("seed promotion entry: %v", err)
	}

	log.Printf("seeded promotion %s", promotionID)
}

func seedVouchers(db *sql.DB, productID string) {
	vouchers := []struct {
		code     string
		kind     string
		value    int64
		minOrder int64
		allUsers bool
		newUsers bool
		products []string
	}{
		{code: "HEMAT10", kind: "percent", value: 10, minOrder: 50000, allUsers: true},
		{code: "POTONGAN25K", kind: "fixed_amount", value: 25000, minOrder: 150000, allUsers: true},
		{code: "PENGGUNABARU", kind: "percent", value: 15, newUsers: true},
		{code: "KOPIHEMAT", kind: "fixed_amount", value: 10000, allUsers: true, products: []string{productID}},
	}

	for _, v := range vouchers {
		scoped := pq.StringArray{}
		if len(v.products) > 0 {
			scoped = pq.StringArray(v.products)
		}
		if _, err := db.Exec(`
			INSERT INTO vouchers (code, kind, value, min_order, start_at, end_at,
				usage_limit, groups_all, groups_new_users, scope_product_ids)
			VALUES ($1, $2, $3, $4, now() - interval '1 day', now() + interval '30 days',
				0, $5, $6, $7::uuid[])
			ON CONFLICT (code) DO NOTHING;
		`, v.code, v.kind, v.value, v.minOrder, v.allUsers, v.newUsers, scoped); err != nil {
			log.Fatalf("seed voucher %s: %v", v.code, err)
		}
	}

	log.Printf("seeded %d vouchers", len(vouchers))
}
