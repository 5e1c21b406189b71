package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/model"
	"github.com/alphafinance/sim-engine/internal/portfolio"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the simulator tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO sim_sessions (user_id, session_id, level, initial_balance, cash, realized_pnl,
			                           limit_orders, trade_count, created_at, updated_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10)
			 ON CONFLICT (user_id) DO NOTHING`,
			sess.UserID, sess.ID, sess.Level,
			sess.InitialBalance.String(), sess.Portfolio.Cash.String(), sess.Portfolio.RealizedPnL.String(),
			sess.LimitOrders, sess.TradeCount, sess.CreatedAt, sess.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: user %s", ErrSessionExists, sess.UserID)
		}
		return insertSessionChildren(ctx, tx, sess)
	})
}

func (s *PostgresStore) ReplaceSession(ctx context.Context, sess *model.Session) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Cascades to symbols and positions; sim_trades is untouched.
		if _, err := tx.Exec(ctx, `DELETE FROM sim_sessions WHERE user_id = $1`, sess.UserID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO sim_sessions (user_id, session_id, level, initial_balance, cash, realized_pnl,
			                           limit_orders, trade_count, created_at, updated_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10)`,
			sess.UserID, sess.ID, sess.Level,
			sess.InitialBalance.String(), sess.Portfolio.Cash.String(), sess.Portfolio.RealizedPnL.String(),
			sess.LimitOrders, sess.TradeCount, sess.CreatedAt, sess.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return insertSessionChildren(ctx, tx, sess)
	})
}

func insertSessionChildren(ctx context.Context, tx pgx.Tx, sess *model.Session) error {
	batch := &pgx.Batch{}
	for i, sym := range sess.Universe {
		batch.Queue(
			`INSERT INTO sim_symbols (user_id, ordinal, symbol, price, volatility)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
			sess.UserID, i, sym.Ticker, sym.Price.String(), sym.Volatility,
		)
	}
	for _, pos := range sess.Portfolio.Positions {
		batch.Queue(
			`INSERT INTO sim_positions (user_id, symbol, shares, avg_cost)
			 VALUES ($1, $2, $3, $4::NUMERIC)`,
			sess.UserID, pos.Symbol, pos.Shares, pos.AvgCost.String(),
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) GetSession(ctx context.Context, userID string) (*model.Session, error) {
	var sess model.Session
	var initialS, cashS, realizedS string

	err := s.pool.QueryRow(ctx,
		`SELECT session_id::TEXT, user_id, level,
		        initial_balance::TEXT, cash::TEXT, realized_pnl::TEXT,
		        limit_orders, trade_count, created_at, updated_at
		 FROM sim_sessions WHERE user_id = $1`, userID).
		Scan(&sess.ID, &sess.UserID, &sess.Level,
			&initialS, &cashS, &realizedS,
			&sess.LimitOrders, &sess.TradeCount, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrSessionNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", userID, err)
	}

	sess.InitialBalance, _ = decimal.NewFromString(initialS)
	cash, _ := decimal.NewFromString(cashS)
	sess.Portfolio = portfolio.New(cash)
	sess.Portfolio.RealizedPnL, _ = decimal.NewFromString(realizedS)

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, price::TEXT, volatility
		 FROM sim_symbols WHERE user_id = $1 ORDER BY ordinal`, userID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sym model.Symbol
		var priceS string
		if err := rows.Scan(&sym.Ticker, &priceS, &sym.Volatility); err != nil {
			rows.Close()
			return nil, err
		}
		sym.Price, _ = decimal.NewFromString(priceS)
		sess.Universe = append(sess.Universe, sym)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx,
		`SELECT symbol, shares, avg_cost::TEXT
		 FROM sim_positions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pos portfolio.Position
		var avgS string
		if err := rows.Scan(&pos.Symbol, &pos.Shares, &avgS); err != nil {
			return nil, err
		}
		pos.AvgCost, _ = decimal.NewFromString(avgS)
		sess.Portfolio.Positions[pos.Symbol] = pos
	}
	return &sess, rows.Err()
}

func (s *PostgresStore) SavePrices(ctx context.Context, userID string, universe []model.Symbol, at time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE sim_sessions SET updated_at = $2 WHERE user_id = $1`, userID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: user %s", ErrSessionNotFound, userID)
		}

		batch := &pgx.Batch{}
		for _, sym := range universe {
			batch.Queue(
				`UPDATE sim_symbols SET price = $3::NUMERIC
				 WHERE user_id = $1 AND symbol = $2`,
				userID, sym.Ticker, sym.Price.String(),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PostgresStore) CommitTrade(ctx context.Context, sess *model.Session, t *model.Trade) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE sim_sessions
			 SET cash = $3::NUMERIC, realized_pnl = $4::NUMERIC,
			     trade_count = $5, updated_at = $6
			 WHERE user_id = $1 AND session_id = $2`,
			sess.UserID, sess.ID,
			sess.Portfolio.Cash.String(), sess.Portfolio.RealizedPnL.String(),
			sess.TradeCount, sess.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: session %s", ErrSessionNotFound, sess.ID)
		}

		if pos, ok := sess.Portfolio.Position(t.Symbol); ok {
			_, err = tx.Exec(ctx,
				`INSERT INTO sim_positions (user_id, symbol, shares, avg_cost)
				 VALUES ($1, $2, $3, $4::NUMERIC)
				 ON CONFLICT (user_id, symbol)
				 DO UPDATE SET shares = EXCLUDED.shares, avg_cost = EXCLUDED.avg_cost`,
				sess.UserID, pos.Symbol, pos.Shares, pos.AvgCost.String(),
			)
		} else {
			_, err = tx.Exec(ctx,
				`DELETE FROM sim_positions WHERE user_id = $1 AND symbol = $2`,
				sess.UserID, t.Symbol,
			)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO sim_trades (id, user_id, session_id, seq, symbol, side, order_type, quantity,
			                         price, cash_delta, realized_pnl, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12)`,
			t.ID, t.UserID, t.SessionID, t.Seq, t.Symbol, string(t.Side), string(t.OrderType), t.Quantity,
			t.Price.String(), t.CashDelta.String(), t.RealizedPnL.String(), t.Timestamp,
		)
		return err
	})
}

func (s *PostgresStore) ListTrades(ctx context.Context, sessionID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		return []model.Trade{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, user_id, session_id::TEXT, seq, symbol, side, order_type, quantity,
		        price::TEXT, cash_delta::TEXT, realized_pnl::TEXT, timestamp
		 FROM sim_trades WHERE session_id = $1
		 ORDER BY seq DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) Overview(ctx context.Context) (*model.Overview, error) {
	ov := &model.Overview{LevelDistribution: make(map[string]int64)}

	rows, err := s.pool.Query(ctx, `SELECT level, COUNT(*) FROM sim_sessions GROUP BY level`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			rows.Close()
			return nil, err
		}
		ov.LevelDistribution[level] = n
		ov.ActiveSimulators += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sim_trades`).Scan(&ov.TotalTrades); err != nil {
		return nil, err
	}
	return ov, nil
}

// scanTrades reads pgx rows into Trade slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.Trade, error) {
	trades := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var side, orderType, priceS, cashS, pnlS string

		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.Seq, &t.Symbol, &side, &orderType, &t.Quantity,
			&priceS, &cashS, &pnlS, &t.Timestamp); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		t.OrderType = model.OrderType(orderType)
		t.Price, _ = decimal.NewFromString(priceS)
		t.CashDelta, _ = decimal.NewFromString(cashS)
		t.RealizedPnL, _ = decimal.NewFromString(pnlS)

		trades = append(trades, t)
	}
	return trades, rows.Err()
}
