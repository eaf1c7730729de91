package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fondapos/backend/internal/domain"
	"fondapos/backend/internal/store"
	"fondapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(role, '')
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Role); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

const productColumns = `
	id, name, category_id, price_cents, discount_price_cents, COALESCE(image_ref, ''),
	active, purchasable, requires_add_ons, min_add_ons, max_add_ons, add_ons
`

func scanProduct(scan func(dest ...any) error) (domain.Product, error) {
	var p domain.Product
	var addOns []byte
	err := scan(&p.ID, &p.Name, &p.CategoryID, &p.PriceCents, &p.DiscountPriceCents, &p.ImageRef,
		&p.Active, &p.Purchasable, &p.RequiresAddOns, &p.MinAddOns, &p.MaxAddOns, &addOns)
	if err != nil {
		return domain.Product{}, err
	}
	if len(addOns) > 0 {
		if err := json.Unmarshal(addOns, &p.AddOns); err != nil {
			return domain.Product{}, err
		}
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND purchasable = true
		ORDER BY category_id, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.CategoryID == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true
	product.Purchasable = true

	addOns, err := json.Marshal(product.AddOns)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, category_id, price_cents, discount_price_cents, image_ref,
			active, purchasable, requires_add_ons, min_add_ons, max_add_ons, add_ons,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
	`, product.ID, product.Name, product.CategoryID, product.PriceCents, product.DiscountPriceCents,
		nullIfEmpty(product.ImageRef), product.Active, product.Purchasable, product.RequiresAddOns,
		product.MinAddOns, product.MaxAddOns, addOns)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.CategoryID == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	addOns, err := json.Marshal(product.AddOns)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category_id = $3, price_cents = $4, discount_price_cents = $5,
			image_ref = $6, active = $7, purchasable = $8, requires_add_ons = $9,
			min_add_ons = $10, max_add_ons = $11, add_ons = $12, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.CategoryID, product.PriceCents, product.DiscountPriceCents,
		nullIfEmpty(product.ImageRef), product.Active, product.Purchasable, product.RequiresAddOns,
		product.MinAddOns, product.MaxAddOns, addOns)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" || customer.CreditLimitCents < 0 {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, credit_limit_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		nullIfEmpty(customer.Address), customer.CreditLimitCents, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''),
			credit_limit_cents, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreditLimitCents, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''),
			credit_limit_cents, created_at
		FROM customers
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreditLimitCents, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

// GetCreditBalance computes the remaining available credit from the limit
// and the movement ledger in one query.
func (s *Store) GetCreditBalance(ctx context.Context, customerID string) (int64, error) {
	var available int64
	err := s.db.QueryRowContext(ctx, `
		SELECT c.credit_limit_cents
			- COALESCE(SUM(CASE WHEN m.kind = 'charge' THEN m.amount_cents ELSE 0 END), 0)
			+ COALESCE(SUM(CASE WHEN m.kind = 'payment' THEN m.amount_cents ELSE 0 END), 0)
		FROM customers c
		LEFT JOIN credit_movements m ON m.customer_id = c.id
		WHERE c.id = $1
		GROUP BY c.credit_limit_cents
	`, customerID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (s *Store) AppendCreditMovement(ctx context.Context, movement domain.CreditMovement) (*domain.CreditMovement, error) {
	if movement.Kind != domain.CreditMovementCharge && movement.Kind != domain.CreditMovementPayment {
		return nil, store.ErrValidation
	}
	if movement.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if movement.ID == "" {
		movement.ID = xid.New("cm")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_movements (id, customer_id, kind, amount_cents, memo, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, movement.ID, movement.CustomerID, movement.Kind, movement.AmountCents,
		nullIfEmpty(movement.Memo), movement.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := movement
	return &created, nil
}

func (s *Store) ListCreditMovements(ctx context.Context, customerID string, limit int) ([]domain.CreditMovement, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, kind, amount_cents, COALESCE(memo, ''), created_at
		FROM credit_movements
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CreditMovement, 0, limit)
	for rows.Next() {
		var m domain.CreditMovement
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Kind, &m.AmountCents, &m.Memo, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrValidation
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, branch_id, status, customer_id, customer_name,
			subtotal_cents, discount_cents, discount_value, discount_kind,
			shipping_cents, total_cents, delivery_method_id, delivery_zone_id,
			delivery_street, delivery_city, delivery_reference, delivery_notes,
			notes, promised_minutes, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$21)
	`, order.ID, order.BranchID, order.Status, nullIfEmpty(order.CustomerID), nullIfEmpty(order.CustomerName),
		order.SubtotalCents, order.DiscountCents, order.DiscountValue, nullIfEmpty(string(order.DiscountKind)),
		order.ShippingCents, order.TotalCents, nullIfEmpty(order.DeliveryMethodID), nullIfEmpty(order.DeliveryZoneID),
		nullIfEmpty(order.DeliveryAddress.Street), nullIfEmpty(order.DeliveryAddress.City),
		nullIfEmpty(order.DeliveryAddress.Reference), nullIfEmpty(order.DeliveryNotes),
		nullIfEmpty(order.Notes), order.PromisedMinutes, nullIfEmpty(order.CreatedBy), order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	if err := insertOrderItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, err
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" || len(order.Items) == 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = COALESCE(NULLIF($2, ''), status),
			customer_id = $3, customer_name = $4,
			subtotal_cents = $5, discount_cents = $6, discount_value = $7, discount_kind = $8,
			shipping_cents = $9, total_cents = $10, delivery_method_id = $11, delivery_zone_id = $12,
			delivery_street = $13, delivery_city = $14, delivery_reference = $15, delivery_notes = $16,
			notes = $17, promised_minutes = $18, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, order.ID, order.Status, nullIfEmpty(order.CustomerID), nullIfEmpty(order.CustomerName),
		order.SubtotalCents, order.DiscountCents, order.DiscountValue, nullIfEmpty(string(order.DiscountKind)),
		order.ShippingCents, order.TotalCents, nullIfEmpty(order.DeliveryMethodID), nullIfEmpty(order.DeliveryZoneID),
		nullIfEmpty(order.DeliveryAddress.Street), nullIfEmpty(order.DeliveryAddress.City),
		nullIfEmpty(order.DeliveryAddress.Reference), nullIfEmpty(order.DeliveryNotes),
		nullIfEmpty(order.Notes), order.PromisedMinutes)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return nil, err
	}
	if err := insertOrderItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, err
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetOrderByID(ctx, order.ID)
}

func insertOrderItems(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderItem) error {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = xid.New("oi")
		}
		addOns, err := json.Marshal(items[i].AddOns)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, base_name, unit_price_cents, quantity, subtotal_cents, add_ons)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, items[i].ID, orderID, items[i].ProductID, items[i].Name, items[i].BaseName,
			items[i].UnitPriceCents, items[i].Quantity, items[i].SubtotalCents, addOns)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	var discountKind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, status, COALESCE(customer_id, ''), COALESCE(customer_name, ''),
			subtotal_cents, discount_cents, discount_value, COALESCE(discount_kind, ''),
			shipping_cents, total_cents, COALESCE(delivery_method_id, ''), COALESCE(delivery_zone_id, ''),
			COALESCE(delivery_street, ''), COALESCE(delivery_city, ''), COALESCE(delivery_reference, ''),
			COALESCE(delivery_notes, ''), COALESCE(notes, ''), promised_minutes, COALESCE(created_by, ''),
			created_at, updated_at
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&o.ID, &o.BranchID, &o.Status, &o.CustomerID, &o.CustomerName,
		&o.SubtotalCents, &o.DiscountCents, &o.DiscountValue, &discountKind,
		&o.ShippingCents, &o.TotalCents, &o.DeliveryMethodID, &o.DeliveryZoneID,
		&o.DeliveryAddress.Street, &o.DeliveryAddress.City, &o.DeliveryAddress.Reference,
		&o.DeliveryNotes, &o.Notes, &o.PromisedMinutes, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o.DiscountKind = domain.DiscountKind(discountKind)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	items, err := s.listOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	payments, err := s.listPayments(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Payments = payments

	if o.CustomerID != "" {
		customer, err := s.GetCustomerByID(ctx, o.CustomerID)
		if err == nil {
			o.Customer = customer
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return &o, nil
}

func (s *Store) listOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, base_name, unit_price_cents, quantity, subtotal_cents, add_ons
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 16)
	for rows.Next() {
		var item domain.OrderItem
		var addOns []byte
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.BaseName,
			&item.UnitPriceCents, &item.Quantity, &item.SubtotalCents, &addOns); err != nil {
			return nil, err
		}
		if len(addOns) > 0 {
			if err := json.Unmarshal(addOns, &item.AddOns); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) listPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, method, amount_cents, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.AmountCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) SoftDeleteOrder(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, branchID string, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, status, COALESCE(customer_id, ''), COALESCE(customer_name, ''),
			subtotal_cents, discount_cents, shipping_cents, total_cents,
			COALESCE(delivery_method_id, ''), promised_minutes, created_at
		FROM orders
		WHERE deleted_at IS NULL
			AND ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, branchID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.BranchID, &o.Status, &o.CustomerID, &o.CustomerName,
			&o.SubtotalCents, &o.DiscountCents, &o.ShippingCents, &o.TotalCents,
			&o.DeliveryMethodID, &o.PromisedMinutes, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.CreatedAt = o.CreatedAt.UTC()
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id string, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.AmountCents < 1 || !payment.Method.Valid() {
		return nil, store.ErrValidation
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, method, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, payment.ID, payment.OrderID, payment.Method, payment.AmountCents, payment.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := payment
	return &created, nil
}

func (s *Store) IsOrderFullyPaid(ctx context.Context, orderID string) (bool, error) {
	var paid sql.NullInt64
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE order_id = o.id), o.total_cents
		FROM orders o
		WHERE o.id = $1
	`, orderID).Scan(&paid, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, err
	}
	return paid.Int64 >= total, nil
}

func (s *Store) ListDeliveryMethods(ctx context.Context) ([]domain.DeliveryMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, requires_address, has_cost, home_delivery
		FROM delivery_methods
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.DeliveryMethod, 0, 8)
	for rows.Next() {
		var m domain.DeliveryMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.RequiresAddress, &m.HasCost, &m.HomeDelivery); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return methods, nil
}

func (s *Store) ListDeliveryZones(ctx context.Context) ([]domain.DeliveryZone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cost_cents, COALESCE(free_shipping_min_cents, 0)
		FROM delivery_zones
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := make([]domain.DeliveryZone, 0, 8)
	for rows.Next() {
		var z domain.DeliveryZone
		if err := rows.Scan(&z.ID, &z.Name, &z.CostCents, &z.FreeShippingMinCents); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return zones, nil
}

func (s *Store) CreateUpsellMetric(ctx context.Context, metric domain.UpsellMetric) error {
	if metric.ID == "" {
		metric.ID = xid.New("upsell")
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upsell_metrics (
			id, order_id, offered_side_dish, accepted_side_dish,
			offered_dessert, accepted_dessert, promised_minutes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, metric.ID, metric.OrderID, metric.OfferedSideDish, metric.AcceptedSideDish,
		metric.OfferedDessert, metric.AcceptedDessert, metric.PromisedMinutes, metric.CreatedAt)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.BranchID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_username, actor_role, action, entity_type,
			COALESCE(entity_id, ''), COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
