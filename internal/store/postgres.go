package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC(78,18) so every 18-decimal
// fixed-point value round-trips exactly.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables the store needs if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS pools (
			id                       TEXT PRIMARY KEY,
			synthetic_symbol         TEXT NOT NULL,
			collateral_symbol        TEXT NOT NULL,
			collateralization_ratio  NUMERIC(78,18) NOT NULL,
			liquidation_ratio        NUMERIC(78,18) NOT NULL,
			collateral_requirement   NUMERIC(78,18) NOT NULL,
			fee_percentage           NUMERIC(78,18) NOT NULL,
			cap_deposit_ratio        NUMERIC(78,18) NOT NULL,
			cap_mint_amount          NUMERIC(78,18) NOT NULL,
			total_tokens_outstanding NUMERIC(78,18) NOT NULL,
			min_sponsor_tokens       NUMERIC(78,18) NOT NULL,
			collateral_decimals      SMALLINT NOT NULL,
			synthetic_decimals       SMALLINT NOT NULL,
			collateral_price         NUMERIC(78,18),
			synthetic_price          NUMERIC(78,18),
			price_updated_at         TIMESTAMPTZ,
			updated_at               TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sponsor_positions (
			pool_id                      TEXT NOT NULL REFERENCES pools(id),
			sponsor                      TEXT NOT NULL,
			collateral                   NUMERIC(78,18) NOT NULL,
			tokens                       NUMERIC(78,18) NOT NULL,
			pending_withdrawal_amount    NUMERIC(78,18) NOT NULL,
			pending_withdrawal_timestamp TIMESTAMPTZ,
			updated_at                   TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (pool_id, sponsor)
		)`,
		`CREATE TABLE IF NOT EXISTS quotes (
			id                TEXT PRIMARY KEY,
			pool_id           TEXT NOT NULL,
			sponsor           TEXT NOT NULL,
			operation         TEXT NOT NULL,
			collateral        TEXT NOT NULL,
			synthetic         TEXT NOT NULL,
			valid             BOOLEAN NOT NULL,
			error_kind        TEXT NOT NULL,
			new_ratio         NUMERIC(78,18) NOT NULL,
			liquidation_price NUMERIC(78,18) NOT NULL,
			fee               NUMERIC(78,18) NOT NULL,
			timestamp         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS quotes_sponsor_idx ON quotes (pool_id, sponsor, timestamp)`,
	}
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const poolColumns = `id, synthetic_symbol, collateral_symbol,
	collateralization_ratio::TEXT, liquidation_ratio::TEXT, collateral_requirement::TEXT,
	fee_percentage::TEXT, cap_deposit_ratio::TEXT, cap_mint_amount::TEXT,
	total_tokens_outstanding::TEXT, min_sponsor_tokens::TEXT,
	collateral_decimals, synthetic_decimals,
	collateral_price::TEXT, synthetic_price::TEXT, price_updated_at, updated_at`

func (s *PostgresStore) UpsertPool(ctx context.Context, p *model.Pool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pools (id, synthetic_symbol, collateral_symbol,
		        collateralization_ratio, liquidation_ratio, collateral_requirement,
		        fee_percentage, cap_deposit_ratio, cap_mint_amount,
		        total_tokens_outstanding, min_sponsor_tokens,
		        collateral_decimals, synthetic_decimals, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
		         $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		        synthetic_symbol = EXCLUDED.synthetic_symbol,
		        collateral_symbol = EXCLUDED.collateral_symbol,
		        collateralization_ratio = EXCLUDED.collateralization_ratio,
		        liquidation_ratio = EXCLUDED.liquidation_ratio,
		        collateral_requirement = EXCLUDED.collateral_requirement,
		        fee_percentage = EXCLUDED.fee_percentage,
		        cap_deposit_ratio = EXCLUDED.cap_deposit_ratio,
		        cap_mint_amount = EXCLUDED.cap_mint_amount,
		        total_tokens_outstanding = EXCLUDED.total_tokens_outstanding,
		        min_sponsor_tokens = EXCLUDED.min_sponsor_tokens,
		        collateral_decimals = EXCLUDED.collateral_decimals,
		        synthetic_decimals = EXCLUDED.synthetic_decimals,
		        updated_at = EXCLUDED.updated_at`,
		p.ID, p.SyntheticSymbol, p.CollateralSymbol,
		p.CollateralizationRatio.String(), p.LiquidationRatio.String(), p.CollateralRequirement.String(),
		p.FeePercentage.String(), p.CapDepositRatio.String(), p.CapMintAmount.String(),
		p.TotalTokensOutstanding.String(), p.MinSponsorTokens.String(),
		int16(p.CollateralDecimals), int16(p.SyntheticDecimals), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pool %s: %w", p.ID, err)
	}
	if p.Price != nil {
		return s.UpdatePrice(ctx, p.ID, *p.Price)
	}
	return nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	p, err := scanPool(s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, poolID string, price model.Price) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools
		 SET collateral_price = $2::NUMERIC, synthetic_price = $3::NUMERIC, price_updated_at = $4
		 WHERE id = $1`,
		poolID, price.CollateralPrice.String(), price.SyntheticPrice.String(), price.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update price %s: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, sp *model.SponsorPosition) error {
	var pendingAt *time.Time
	if !sp.PendingWithdrawalTimestamp.IsZero() {
		pendingAt = &sp.PendingWithdrawalTimestamp
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sponsor_positions (pool_id, sponsor, collateral, tokens,
		        pending_withdrawal_amount, pending_withdrawal_timestamp, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7)
		 ON CONFLICT (pool_id, sponsor) DO UPDATE SET
		        collateral = EXCLUDED.collateral,
		        tokens = EXCLUDED.tokens,
		        pending_withdrawal_amount = EXCLUDED.pending_withdrawal_amount,
		        pending_withdrawal_timestamp = EXCLUDED.pending_withdrawal_timestamp,
		        updated_at = EXCLUDED.updated_at`,
		sp.PoolID, sp.Sponsor, sp.Collateral.String(), sp.Tokens.String(),
		sp.PendingWithdrawalAmount.String(), pendingAt, sp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert position %s/%s: %w", sp.PoolID, sp.Sponsor, err)
	}
	return nil
}

const positionColumns = `pool_id, sponsor, collateral::TEXT, tokens::TEXT,
	pending_withdrawal_amount::TEXT, pending_withdrawal_timestamp, updated_at`

func (s *PostgresStore) GetPosition(ctx context.Context, poolID, sponsor string) (*model.SponsorPosition, error) {
	sp, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM sponsor_positions WHERE pool_id = $1 AND sponsor = $2`,
		poolID, sponsor))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("position %s/%s: %w", poolID, sponsor, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", poolID, sponsor, err)
	}
	return sp, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, poolID string) ([]model.SponsorPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM sponsor_positions WHERE pool_id = $1 ORDER BY sponsor`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.SponsorPosition
	for rows.Next() {
		sp, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *sp)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) InsertQuote(ctx context.Context, q *model.QuoteRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quotes (id, pool_id, sponsor, operation, collateral, synthetic,
		        valid, error_kind, new_ratio, liquidation_price, fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12)`,
		q.ID, q.PoolID, q.Sponsor, string(q.Operation), q.Collateral, q.Synthetic,
		q.Valid, q.ErrorKind, q.NewRatio.String(), q.LiquidationPrice.String(), q.Fee.String(),
		q.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetQuotesBySponsor(ctx context.Context, poolID, sponsor string) ([]model.QuoteRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, sponsor, operation, collateral, synthetic, valid, error_kind,
		        new_ratio::TEXT, liquidation_price::TEXT, fee::TEXT, timestamp
		 FROM quotes WHERE pool_id = $1 AND sponsor = $2 ORDER BY timestamp`, poolID, sponsor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []model.QuoteRecord
	for rows.Next() {
		var q model.QuoteRecord
		var op, ratioS, liqS, feeS string
		if err := rows.Scan(&q.ID, &q.PoolID, &q.Sponsor, &op, &q.Collateral, &q.Synthetic,
			&q.Valid, &q.ErrorKind, &ratioS, &liqS, &feeS, &q.Timestamp); err != nil {
			return nil, err
		}
		q.Operation = model.Operation(op)
		if err := parseNumerics(
			numeric{ratioS, &q.NewRatio},
			numeric{liqS, &q.LiquidationPrice},
			numeric{feeS, &q.Fee},
		); err != nil {
			return nil, fmt.Errorf("quote %s: %w", q.ID, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func scanPool(row pgx.Row) (*model.Pool, error) {
	var p model.Pool
	var gcr, liq, req, feePct, capRatio, capMint, outstanding, minSponsor string
	var collDec, synthDec int16
	var collPrice, synthPrice *string
	var priceAt *time.Time

	if err := row.Scan(&p.ID, &p.SyntheticSymbol, &p.CollateralSymbol,
		&gcr, &liq, &req, &feePct, &capRatio, &capMint, &outstanding, &minSponsor,
		&collDec, &synthDec, &collPrice, &synthPrice, &priceAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CollateralDecimals = uint8(collDec)
	p.SyntheticDecimals = uint8(synthDec)

	if err := parseNumerics(
		numeric{gcr, &p.CollateralizationRatio},
		numeric{liq, &p.LiquidationRatio},
		numeric{req, &p.CollateralRequirement},
		numeric{feePct, &p.FeePercentage},
		numeric{capRatio, &p.CapDepositRatio},
		numeric{capMint, &p.CapMintAmount},
		numeric{outstanding, &p.TotalTokensOutstanding},
		numeric{minSponsor, &p.MinSponsorTokens},
	); err != nil {
		return nil, fmt.Errorf("pool %s: %w", p.ID, err)
	}

	if collPrice != nil && synthPrice != nil {
		price := model.Price{}
		if err := parseNumerics(
			numeric{*collPrice, &price.CollateralPrice},
			numeric{*synthPrice, &price.SyntheticPrice},
		); err != nil {
			return nil, fmt.Errorf("pool %s price: %w", p.ID, err)
		}
		if priceAt != nil {
			price.UpdatedAt = *priceAt
		}
		p.Price = &price
	}
	return &p, nil
}

func scanPosition(row pgx.Row) (*model.SponsorPosition, error) {
	var sp model.SponsorPosition
	var coll, tokens, pending string
	var pendingAt *time.Time

	if err := row.Scan(&sp.PoolID, &sp.Sponsor, &coll, &tokens, &pending, &pendingAt, &sp.UpdatedAt); err != nil {
		return nil, err
	}
	if err := parseNumerics(
		numeric{coll, &sp.Collateral},
		numeric{tokens, &sp.Tokens},
		numeric{pending, &sp.PendingWithdrawalAmount},
	); err != nil {
		return nil, fmt.Errorf("position %s/%s: %w", sp.PoolID, sp.Sponsor, err)
	}
	if pendingAt != nil {
		sp.PendingWithdrawalTimestamp = *pendingAt
	}
	return &sp, nil
}

// numeric pairs a NUMERIC column read as text with its destination.
type numeric struct {
	text string
	dst  *fp.Value
}

func parseNumerics(cols ...numeric) error {
	for _, c := range cols {
		v, err := fp.Parse(c.text)
		if err != nil {
			return err
		}
		*c.dst = v
	}
	return nil
}
