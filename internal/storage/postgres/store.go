// Package postgres implements storage.Repository on PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"davi/internal/core"
	"davi/internal/storage"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// Open applies migrations and connects a pool, retrying with backoff while
// the database comes up.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := storage.RunPostgresMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	var pool *pgxpool.Pool
	retries := 5
	backoff := time.Second

	for i := 0; i < retries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			cancel()

			if err == nil {
				slog.Info("PostgreSQL store ready", "component", "storage")
				return &Store{db: pool}, nil
			}
		}

		if pool != nil {
			pool.Close()
		}

		slog.Warn("Database connection attempt failed",
			"component", "storage",
			"attempt", i+1,
			"max_attempts", retries,
			"retry_in", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", retries, err)
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return core.Persistence("begin "+op, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Persistence("commit "+op, err)
	}
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, name, passwordHash string) (core.User, error) {
	u := core.User{Name: name, PasswordHash: passwordHash}
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (name, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		name, passwordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return core.User{}, core.ErrUsernameTaken
		}
		return core.User{}, core.Persistence("create user", err)
	}
	return u, nil
}

func (s *Store) UserByName(ctx context.Context, name string) (core.User, error) {
	var u core.User
	err := s.db.QueryRow(ctx,
		`SELECT id, name, password_hash, created_at FROM users WHERE name = $1`, name,
	).Scan(&u.ID, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	return u, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, core.Persistence("count users", err)
	}
	return n, nil
}

func (s *Store) Profile(ctx context.Context, userID int64) (core.Profile, error) {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO user_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return core.Profile{}, core.Persistence("create profile", err)
	}

	p := core.Profile{UserID: userID}
	var last *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT monthly_income_cents, monthly_expense_cents, last_allocation
		 FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.MonthlyIncome.Cents, &p.MonthlyExpense.Cents, &last)
	if err != nil {
		return core.Profile{}, core.Persistence("get profile", err)
	}
	if last != nil {
		p.LastAllocation = core.DateOf(*last)
	}
	return p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_profiles (user_id, monthly_income_cents, monthly_expense_cents, last_allocation)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET
		   monthly_income_cents = EXCLUDED.monthly_income_cents,
		   monthly_expense_cents = EXCLUDED.monthly_expense_cents,
		   last_allocation = EXCLUDED.last_allocation`,
		p.UserID, p.MonthlyIncome.Cents, p.MonthlyExpense.Cents, nullDate(p.LastAllocation))
	if err != nil {
		return core.Persistence("save profile", err)
	}
	return nil
}

// Ledger

const movementColumns = `id, user_id, bucket_id, parent_id, kind, amount_cents, description, date, created_at`

func insertMovement(ctx context.Context, q querier, m core.Movement) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO movements (user_id, bucket_id, parent_id, kind, amount_cents, description, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		m.UserID, m.BucketID, m.ParentID, string(m.Kind), m.Amount.Cents, m.Description, m.Date.Time,
	).Scan(&id)
	if err != nil {
		return 0, core.Persistence("insert movement", err)
	}
	return id, nil
}

func (s *Store) InsertMovement(ctx context.Context, m core.Movement) (int64, error) {
	id, err := insertMovement(ctx, s.db, m)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Movement saved to PostgreSQL",
		"id", id,
		"user_id", m.UserID,
		"kind", m.Kind,
		"amount_cents", m.Amount.Cents)
	return id, nil
}

func (s *Store) Distribute(ctx context.Context, req core.DistributionRequest, alloc storage.Allocator) (core.Distribution, error) {
	var out core.Distribution
	err := s.inTx(ctx, "distribution", func(tx pgx.Tx) error {
		// Row locks keep a concurrent distribution from reading the same
		// balances until this one commits.
		buckets, err := listBuckets(ctx, tx, req.UserID, true)
		if err != nil {
			return err
		}
		plan, err := alloc.Allocate(req, buckets)
		if err != nil {
			return err
		}

		var parentID *int64
		if req.Record {
			id, err := insertMovement(ctx, tx, req.Parent())
			if err != nil {
				return err
			}
			out.ParentID = id
			parentID = &id
		}

		for i, e := range plan.Entries {
			e.ParentID = parentID
			id, err := insertMovement(ctx, tx, e)
			if err != nil {
				return err
			}
			e.ID = id
			out.MovementIDs = append(out.MovementIDs, id)
			out.Entries = append(out.Entries, e)

			d := plan.Deltas[i]
			tag, err := tx.Exec(ctx,
				`UPDATE buckets SET balance_cents = balance_cents + $1 WHERE id = $2 AND user_id = $3`,
				d.Delta.Cents, d.BucketID, req.UserID)
			if err != nil {
				return core.Persistence("update bucket balance", err)
			}
			if tag.RowsAffected() != 1 {
				return core.Persistence("update bucket balance",
					fmt.Errorf("%d rows affected", tag.RowsAffected()))
			}
		}
		return nil
	})
	if err != nil {
		return core.Distribution{}, err
	}
	return out, nil
}

func (s *Store) ListMovements(ctx context.Context, userID int64, limit int) ([]core.Movement, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE user_id = $1
		 ORDER BY date DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, core.Persistence("list movements", err)
	}
	return scanMovements(rows)
}

// Mirror

func (s *Store) PendingMirror(ctx context.Context, ids []int64, limit int) ([]core.Movement, error) {
	if len(ids) == 0 {
		ids = nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE mirrored_at IS NULL AND ($1::BIGINT[] IS NULL OR id = ANY($1))
		 ORDER BY id
		 LIMIT $2`, ids, limit)
	if err != nil {
		return nil, core.Persistence("list pending mirror", err)
	}
	return scanMovements(rows)
}

func (s *Store) MarkMirrored(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE movements SET mirrored_at = now() WHERE id = ANY($1)`, ids); err != nil {
		return core.Persistence("mark mirrored", err)
	}
	return nil
}

func scanMovements(rows pgx.Rows) ([]core.Movement, error) {
	defer rows.Close()

	var out []core.Movement
	for rows.Next() {
		var m core.Movement
		var kind string
		var date time.Time
		if err := rows.Scan(&m.ID, &m.UserID, &m.BucketID, &m.ParentID, &kind,
			&m.Amount.Cents, &m.Description, &date, &m.CreatedAt); err != nil {
			return nil, core.Persistence("scan movement", err)
		}
		m.Kind = core.Kind(kind)
		m.Date = core.DateOf(date)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("iterate movements", err)
	}
	return out, nil
}

// Buckets

func (s *Store) CreateBucket(ctx context.Context, b core.Bucket) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO buckets (user_id, name, description, percent, balance_cents, type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		b.UserID, b.Name, b.Description, b.Percent, b.Balance.Cents, b.Type,
	).Scan(&id)
	if err != nil {
		return 0, core.Persistence("create bucket", err)
	}
	return id, nil
}

func (s *Store) UpdateBucket(ctx context.Context, b core.Bucket) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE buckets SET name = $1, description = $2, percent = $3, type = $4
		 WHERE id = $5 AND user_id = $6`,
		b.Name, b.Description, b.Percent, b.Type, b.ID, b.UserID)
	if err != nil {
		return core.Persistence("update bucket", err)
	}
	return notFoundIfNone(tag)
}

func (s *Store) SetBucketBalance(ctx context.Context, userID, bucketID int64, balance core.Money) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE buckets SET balance_cents = $1 WHERE id = $2 AND user_id = $3`,
		balance.Cents, bucketID, userID)
	if err != nil {
		return core.Persistence("set bucket balance", err)
	}
	return notFoundIfNone(tag)
}

func (s *Store) DeleteBucket(ctx context.Context, userID, bucketID int64) error {
	return s.inTx(ctx, "delete bucket", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE movements SET bucket_id = NULL WHERE bucket_id = $1 AND user_id = $2`,
			bucketID, userID); err != nil {
			return core.Persistence("detach bucket movements", err)
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM buckets WHERE id = $1 AND user_id = $2`, bucketID, userID)
		if err != nil {
			return core.Persistence("delete bucket", err)
		}
		return notFoundIfNone(tag)
	})
}

func (s *Store) ListBuckets(ctx context.Context, userID int64) ([]core.Bucket, error) {
	return listBuckets(ctx, s.db, userID, false)
}

func listBuckets(ctx context.Context, q querier, userID int64, forUpdate bool) ([]core.Bucket, error) {
	query := `SELECT id, user_id, name, description, percent, balance_cents, type
		 FROM buckets WHERE user_id = $1 ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, core.Persistence("list buckets", err)
	}
	defer rows.Close()

	var out []core.Bucket
	for rows.Next() {
		var b core.Bucket
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Description, &b.Percent,
			&b.Balance.Cents, &b.Type); err != nil {
			return nil, core.Persistence("scan bucket", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("iterate buckets", err)
	}
	return out, nil
}

// Giants

const giantColumns = `id, user_id, name, total_cents, weekly_cents, interest_rate, status, priority, created_at`

func scanGiant(r pgx.Row) (core.Giant, error) {
	var g core.Giant
	var status string
	err := r.Scan(&g.ID, &g.UserID, &g.Name, &g.TotalToPay.Cents, &g.WeeklyGoal.Cents,
		&g.InterestRate, &status, &g.Priority, &g.CreatedAt)
	if err != nil {
		return core.Giant{}, err
	}
	g.Status = core.GiantStatus(status)
	return g, nil
}

func (s *Store) CreateGiant(ctx context.Context, g core.Giant) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO giants (user_id, name, total_cents, weekly_cents, interest_rate, status, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		g.UserID, g.Name, g.TotalToPay.Cents, g.WeeklyGoal.Cents, g.InterestRate, string(g.Status), g.Priority,
	).Scan(&id)
	if err != nil {
		return 0, core.Persistence("create giant", err)
	}
	return id, nil
}

func (s *Store) ListGiants(ctx context.Context, userID int64) ([]core.Giant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+giantColumns+` FROM giants
		 WHERE user_id = $1 ORDER BY priority DESC, id`, userID)
	if err != nil {
		return nil, core.Persistence("list giants", err)
	}
	defer rows.Close()

	var out []core.Giant
	for rows.Next() {
		g, err := scanGiant(rows)
		if err != nil {
			return nil, core.Persistence("scan giant", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("iterate giants", err)
	}
	return out, nil
}

func getGiant(ctx context.Context, q querier, userID, giantID int64, forUpdate bool) (core.Giant, error) {
	query := `SELECT ` + giantColumns + ` FROM giants WHERE id = $1 AND user_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	g, err := scanGiant(q.QueryRow(ctx, query, giantID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Giant{}, core.ErrNotFound
	}
	if err != nil {
		return core.Giant{}, core.Persistence("get giant", err)
	}
	return g, nil
}

func sumPayments(ctx context.Context, q querier, giantID int64) (core.Money, error) {
	var paid int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::BIGINT FROM giant_payments WHERE giant_id = $1`, giantID,
	).Scan(&paid)
	if err != nil {
		return core.Money{}, core.Persistence("sum giant payments", err)
	}
	return core.Money{Cents: paid}, nil
}

func (s *Store) GiantWithPaid(ctx context.Context, userID, giantID int64) (core.Giant, core.Money, error) {
	g, err := getGiant(ctx, s.db, userID, giantID, false)
	if err != nil {
		return core.Giant{}, core.Money{}, err
	}
	paid, err := sumPayments(ctx, s.db, giantID)
	if err != nil {
		return core.Giant{}, core.Money{}, err
	}
	return g, paid, nil
}

func (s *Store) PaidByGiant(ctx context.Context, userID int64) (map[int64]core.Money, error) {
	rows, err := s.db.Query(ctx,
		`SELECT giant_id, SUM(amount_cents)::BIGINT FROM giant_payments
		 WHERE user_id = $1 GROUP BY giant_id`, userID)
	if err != nil {
		return nil, core.Persistence("sum giant payments", err)
	}
	defer rows.Close()

	out := make(map[int64]core.Money)
	for rows.Next() {
		var id, cents int64
		if err := rows.Scan(&id, &cents); err != nil {
			return nil, core.Persistence("scan giant payments", err)
		}
		out[id] = core.Money{Cents: cents}
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("iterate giant payments", err)
	}
	return out, nil
}

func (s *Store) RecordGiantPayment(ctx context.Context, p core.GiantPayment) (int64, core.Money, error) {
	var id int64
	var paid core.Money
	err := s.inTx(ctx, "giant payment", func(tx pgx.Tx) error {
		g, err := getGiant(ctx, tx, p.UserID, p.GiantID, true)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO giant_payments (user_id, giant_id, amount_cents, date, note)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			p.UserID, p.GiantID, p.Amount.Cents, p.Date.Time, p.Note,
		).Scan(&id)
		if err != nil {
			return core.Persistence("insert giant payment", err)
		}
		if paid, err = sumPayments(ctx, tx, p.GiantID); err != nil {
			return err
		}
		if core.ForecastPayoff(g, paid).IsPaidOff() && g.Status == core.GiantActive {
			if _, err := tx.Exec(ctx,
				`UPDATE giants SET status = $1 WHERE id = $2`, string(core.GiantPaid), g.ID); err != nil {
				return core.Persistence("mark giant paid", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, core.Money{}, err
	}
	return id, paid, nil
}

func (s *Store) DeleteGiant(ctx context.Context, userID, giantID int64) (bool, error) {
	var removed bool
	err := s.inTx(ctx, "delete giant", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM giant_payments
			 WHERE giant_id IN (SELECT id FROM giants WHERE id = $1 AND user_id = $2)`,
			giantID, userID); err != nil {
			return core.Persistence("delete giant payments", err)
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM giants WHERE id = $1 AND user_id = $2`, giantID, userID)
		if err != nil {
			return core.Persistence("delete giant", err)
		}
		removed = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Bills

func (s *Store) CreateBill(ctx context.Context, b core.Bill) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO bills (user_id, title, amount_cents, due_date, critical, paid)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		b.UserID, b.Title, b.Amount.Cents, b.DueDate.Time, b.Critical, b.Paid,
	).Scan(&id)
	if err != nil {
		return 0, core.Persistence("create bill", err)
	}
	return id, nil
}

func (s *Store) ListBills(ctx context.Context, userID int64) ([]core.Bill, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, title, amount_cents, due_date, critical, paid
		 FROM bills WHERE user_id = $1 ORDER BY due_date, id`, userID)
	if err != nil {
		return nil, core.Persistence("list bills", err)
	}
	defer rows.Close()

	var out []core.Bill
	for rows.Next() {
		var b core.Bill
		var due time.Time
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.Amount.Cents, &due,
			&b.Critical, &b.Paid); err != nil {
			return nil, core.Persistence("scan bill", err)
		}
		b.DueDate = core.DateOf(due)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("iterate bills", err)
	}
	return out, nil
}

func (s *Store) SetBillPaid(ctx context.Context, userID, billID int64, paid bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE bills SET paid = $1 WHERE id = $2 AND user_id = $3`, paid, billID, userID)
	if err != nil {
		return core.Persistence("set bill paid", err)
	}
	return notFoundIfNone(tag)
}

func (s *Store) DeleteBill(ctx context.Context, userID, billID int64) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM bills WHERE id = $1 AND user_id = $2`, billID, userID)
	if err != nil {
		return core.Persistence("delete bill", err)
	}
	return notFoundIfNone(tag)
}

func notFoundIfNone(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullDate(d core.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	return &d.Time
}
