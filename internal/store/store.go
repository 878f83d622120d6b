package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"themeseller/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetApprovedProducts retrieves the purchasable catalog
func (s *Store) GetApprovedProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE status = $1 ORDER BY id", models.ProductStatusApproved)
	return products, err
}

// IncrementProductSales bumps the product's sale counter
func (s *Store) IncrementProductSales(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET sales_count = sales_count + 1 WHERE id = $1", productID)
	return err
}

// IncrementProductDownloads bumps the product's global download counter
func (s *Store) IncrementProductDownloads(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET downloads = downloads + 1 WHERE id = $1", productID)
	return err
}

// GetVendorProfile retrieves a vendor profile by ID
func (s *Store) GetVendorProfile(ctx context.Context, id int64) (*models.VendorProfile, error) {
	var vendor models.VendorProfile
	err := s.db.GetContext(ctx, &vendor, "SELECT * FROM vendor_profiles WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vendor not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// AddVendorSale applies one sale's aggregates to the vendor profile
func (s *Store) AddVendorSale(ctx context.Context, vendorID int64, revenue int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE vendor_profiles SET total_sales = total_sales + 1, total_revenue = total_revenue + $1 WHERE id = $2",
		revenue, vendorID)
	return err
}

// GetUserByToken maps an opaque API token to a user
func (s *Store) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE api_token = $1", token)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
