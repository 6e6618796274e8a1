package postgres

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS stock_transactions (
	seq                    BIGSERIAL PRIMARY KEY,
	id                     UUID        NOT NULL UNIQUE,
	product_id             TEXT        NOT NULL,
	batch_id               TEXT        NOT NULL DEFAULT '',
	quantity_change        BIGINT      NOT NULL,
	type                   TEXT        NOT NULL,
	reason                 TEXT        NOT NULL DEFAULT '',
	order_id               TEXT        NOT NULL DEFAULT '',
	return_id              TEXT        NOT NULL DEFAULT '',
	purchase_order_item_id TEXT        NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL,
	user_id                TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_stock_transactions_product
	ON stock_transactions (product_id, created_at, seq);

-- El libro es append-only: UPDATE y DELETE se rechazan en la base.
CREATE OR REPLACE FUNCTION stock_transactions_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'stock_transactions es append-only';
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS trg_stock_transactions_append_only ON stock_transactions;
CREATE TRIGGER trg_stock_transactions_append_only
	BEFORE UPDATE OR DELETE ON stock_transactions
	FOR EACH ROW EXECUTE FUNCTION stock_transactions_append_only();
`

// EnsureSchema crea la tabla del libro y su trigger append-only si no existen.
func EnsureSchema(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
