// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/wusle-presale/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrStageNotFound возвращается, если этап пресейла не найден.
	ErrStageNotFound = errors.New("stage not found")
	// ErrDuplicateTransaction возвращается при повторной квитанции с той же подписью транзакции.
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	// ErrRedeemCodeCollision возвращается при совпадении сгенерированного кода погашения с существующим.
	ErrRedeemCodeCollision = errors.New("redeem code collision")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи имеют смысл для serialization failure и deadlock,
		// переподключением pgxpool занимается сам.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetStages возвращает все этапы пресейла в порядке номеров.
func (r *PostgresRepository) GetStages(ctx context.Context) ([]model.Stage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, stage_number, target, raised, start_time, end_time, rate, listing_price
		 FROM stages
		 ORDER BY stage_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("select stages: %w", err)
	}
	defer rows.Close()

	var stages []model.Stage
	for rows.Next() {
		var st model.Stage
		if err := rows.Scan(
			&st.ID, &st.StageNumber, &st.Target, &st.Raised,
			&st.StartTime, &st.EndTime, &st.Rate, &st.ListingPrice,
		); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stages = append(stages, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stages, nil
}

// CreateSlip создаёт квитанцию о покупке и в той же транзакции увеличивает
// сумму сбора этапа. Строка этапа блокируется, поэтому параллельные покупки
// не теряют обновления raised. usdValue — долларовый эквивалент платежа,
// на него увеличивается raised.
func (r *PostgresRepository) CreateSlip(ctx context.Context, slip *model.Slip, stageID int64, usdValue float64) (*model.Slip, error) {
	created := *slip

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокировка сериализует покупки внутри одного этапа.
		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM stages WHERE id = $1 FOR UPDATE`, stageID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStageNotFound
			}
			return fmt.Errorf("lock stage for update: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO slips (user_id, wallet_address, currency, amount_paid, wusle_purchased, redeem_code, tx_signature)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			slip.UserID, slip.WalletAddress, string(slip.Currency),
			slip.AmountPaid, slip.WuslePurchased, slip.RedeemCode, slip.TxSignature,
		).Scan(&created.ID, &created.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				switch pgErr.ConstraintName {
				case "slips_tx_signature_key":
					return fmt.Errorf("%w: %s", ErrDuplicateTransaction, slip.TxSignature)
				case "slips_redeem_code_key":
					return ErrRedeemCodeCollision
				}
			}
			return fmt.Errorf("insert slip: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE stages SET raised = raised + $2 WHERE id = $1`,
			stageID, usdValue,
		)
		if err != nil {
			return fmt.Errorf("update stage raised: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// GetSlipsByUser возвращает квитанции пользователя, новые первыми.
func (r *PostgresRepository) GetSlipsByUser(ctx context.Context, userID int64) ([]model.Slip, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, wallet_address, currency, amount_paid, wusle_purchased, redeem_code, tx_signature, created_at
		 FROM slips
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select slips: %w", err)
	}
	defer rows.Close()

	var slips []model.Slip
	for rows.Next() {
		var (
			s        model.Slip
			currency string
		)
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.WalletAddress, &currency,
			&s.AmountPaid, &s.WuslePurchased, &s.RedeemCode, &s.TxSignature, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan slip: %w", err)
		}
		s.Currency = model.Currency(currency)
		slips = append(slips, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return slips, nil
}

// GetUserTotals возвращает накопленные итоги пользователя, вычисленные по квитанциям.
// Итоги нигде не хранятся отдельно, источник истины один — таблица slips.
func (r *PostgresRepository) GetUserTotals(ctx context.Context, userID int64) (model.UserTotals, error) {
	var totals model.UserTotals
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(wusle_purchased), 0), COALESCE(SUM(amount_paid), 0)
		 FROM slips
		 WHERE user_id = $1`,
		userID,
	).Scan(&totals.WuslePurchased, &totals.Spent)
	if err != nil {
		return model.UserTotals{}, fmt.Errorf("sum slips: %w", err)
	}

	return totals, nil
}
