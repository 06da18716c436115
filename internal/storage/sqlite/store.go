// Package sqlite implements storage.Repository on a local SQLite file
// using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"davi/internal/core"
	"davi/internal/storage"

	_ "modernc.org/sqlite"
)

// Write transactions take the writer lock at BEGIN so two distributions
// can never interleave their read-modify-write of bucket balances.
const pragmas = "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_txlock=immediate"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var _ storage.Repository = (*Store)(nil)

// DSN returns the connection string used for dbPath.
func DSN(dbPath string) string {
	return dbPath + pragmas
}

// Open creates the database directory, applies migrations and returns a
// ready store.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	if err := storage.RunSQLiteMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite store ready", "component", "storage", "path", dbPath)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction and commits when fn succeeds.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Persistence("begin "+op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.Persistence("commit "+op, err)
	}
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, name, passwordHash string) (core.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, password_hash, created_at) VALUES (?, ?, ?)`,
		name, passwordHash, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrUsernameTaken
		}
		return core.User{}, core.Persistence("create user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, core.Persistence("create user", err)
	}
	return core.User{ID: id, Name: name, PasswordHash: passwordHash, CreatedAt: now}, nil
}

func (s *Store) UserByName(ctx context.Context, name string) (core.User, error) {
	var u core.User
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, created_at FROM users WHERE name = ?`, name,
	).Scan(&u.ID, &u.Name, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, core.Persistence("count users", err)
	}
	return n, nil
}

func (s *Store) Profile(ctx context.Context, userID int64) (core.Profile, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_profiles (user_id) VALUES (?)`, userID); err != nil {
		return core.Profile{}, core.Persistence("create profile", err)
	}

	p := core.Profile{UserID: userID}
	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT monthly_income_cents, monthly_expense_cents, last_allocation
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.MonthlyIncome.Cents, &p.MonthlyExpense.Cents, &last)
	if err != nil {
		return core.Profile{}, core.Persistence("get profile", err)
	}
	if last.Valid {
		p.LastAllocation, _ = core.ParseDate(last.String)
	}
	return p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, monthly_income_cents, monthly_expense_cents, last_allocation)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   monthly_income_cents = excluded.monthly_income_cents,
		   monthly_expense_cents = excluded.monthly_expense_cents,
		   last_allocation = excluded.last_allocation`,
		p.UserID, p.MonthlyIncome.Cents, p.MonthlyExpense.Cents, nullDate(p.LastAllocation))
	if err != nil {
		return core.Persistence("save profile", err)
	}
	return nil
}

// Ledger

const movementColumns = `id, user_id, bucket_id, parent_id, kind, amount_cents, description, date, created_at`

func insertMovement(ctx context.Context, q querier, m core.Movement) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO movements (user_id, bucket_id, parent_id, kind, amount_cents, description, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.BucketID, m.ParentID, string(m.Kind), m.Amount.Cents, m.Description,
		m.Date.String(), formatTime(time.Now().UTC()))
	if err != nil {
		return 0, core.Persistence("insert movement", err)
	}
	id, err := res.LastInsertId()
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
	slog.InfoContext(ctx, "Movement saved to SQLite",
		"id", id,
		"user_id", m.UserID,
		"kind", m.Kind,
		"amount_cents", m.Amount.Cents)
	return id, nil
}

func (s *Store) Distribute(ctx context.Context, req core.DistributionRequest, alloc storage.Allocator) (core.Distribution, error) {
	var out core.Distribution
	err := s.inTx(ctx, "distribution", func(tx *sql.Tx) error {
		buckets, err := listBuckets(ctx, tx, req.UserID)
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
			res, err := tx.ExecContext(ctx,
				`UPDATE buckets SET balance_cents = balance_cents + ? WHERE id = ? AND user_id = ?`,
				d.Delta.Cents, d.BucketID, req.UserID)
			if err != nil {
				return core.Persistence("update bucket balance", err)
			}
			if err := expectOne(res, "update bucket balance"); err != nil {
				return err
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE user_id = ?
		 ORDER BY date DESC, id DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, core.Persistence("list movements", err)
	}
	return scanMovements(rows)
}

// Mirror

func (s *Store) PendingMirror(ctx context.Context, ids []int64, limit int) ([]core.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE mirrored_at IS NULL`
	args := make([]any, 0, len(ids)+1)
	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Persistence("list pending mirror", err)
	}
	return scanMovements(rows)
}

func (s *Store) MarkMirrored(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(time.Now().UTC()))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE movements SET mirrored_at = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return core.Persistence("mark mirrored", err)
	}
	return nil
}

func scanMovements(rows *sql.Rows) ([]core.Movement, error) {
	defer rows.Close()

	var out []core.Movement
	for rows.Next() {
		var m core.Movement
		var kind, date, created string
		if err := rows.Scan(&m.ID, &m.UserID, &m.BucketID, &m.ParentID, &kind,
			&m.Amount.Cents, &m.Description, &date, &created); err != nil {
			return nil, core.Persistence("scan movement", err)
		}
		m.Kind = core.Kind(kind)
		m.Date, _ = core.ParseDate(date)
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("iterate movements", err)
	}
	return out, nil
}

// Buckets

func (s *Store) CreateBucket(ctx context.Context, b core.Bucket) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (user_id, name, description, percent, balance_cents, type)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Name, b.Description, b.Percent, b.Balance.Cents, b.Type)
	if err != nil {
		return 0, core.Persistence("create bucket", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.Persistence("create bucket", err)
	}
	return id, nil
}

func (s *Store) UpdateBucket(ctx context.Context, b core.Bucket) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buckets SET name = ?, description = ?, percent = ?, type = ?
		 WHERE id = ? AND user_id = ?`,
		b.Name, b.Description, b.Percent, b.Type, b.ID, b.UserID)
	if err != nil {
		return core.Persistence("update bucket", err)
	}
	return notFoundIfNone(res, "update bucket")
}

func (s *Store) SetBucketBalance(ctx context.Context, userID, bucketID int64, balance core.Money) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buckets SET balance_cents = ? WHERE id = ? AND user_id = ?`,
		balance.Cents, bucketID, userID)
	if err != nil {
		return core.Persistence("set bucket balance", err)
	}
	return notFoundIfNone(res, "set bucket balance")
}

func (s *Store) DeleteBucket(ctx context.Context, userID, bucketID int64) error {
	return s.inTx(ctx, "delete bucket", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE movements SET bucket_id = NULL WHERE bucket_id = ? AND user_id = ?`,
			bucketID, userID); err != nil {
			return core.Persistence("detach bucket movements", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM buckets WHERE id = ? AND user_id = ?`, bucketID, userID)
		if err != nil {
			return core.Persistence("delete bucket", err)
		}
		return notFoundIfNone(res, "delete bucket")
	})
}

func (s *Store) ListBuckets(ctx context.Context, userID int64) ([]core.Bucket, error) {
	return listBuckets(ctx, s.db, userID)
}

func listBuckets(ctx context.Context, q querier, userID int64) ([]core.Bucket, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, name, description, percent, balance_cents, type
		 FROM buckets WHERE user_id = ? ORDER BY id`, userID)
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

func (s *Store) CreateGiant(ctx context.Context, g core.Giant) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO giants (user_id, name, total_cents, weekly_cents, interest_rate, status, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, g.Name, g.TotalToPay.Cents, g.WeeklyGoal.Cents, g.InterestRate,
		string(g.Status), g.Priority, formatTime(time.Now().UTC()))
	if err != nil {
		return 0, core.Persistence("create giant", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.Persistence("create giant", err)
	}
	return id, nil
}

const giantColumns = `id, user_id, name, total_cents, weekly_cents, interest_rate, status, priority, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGiant(r rowScanner) (core.Giant, error) {
	var g core.Giant
	var status, created string
	err := r.Scan(&g.ID, &g.UserID, &g.Name, &g.TotalToPay.Cents, &g.WeeklyGoal.Cents,
		&g.InterestRate, &status, &g.Priority, &created)
	if err != nil {
		return core.Giant{}, err
	}
	g.Status = core.GiantStatus(status)
	g.CreatedAt = parseTime(created)
	return g, nil
}

func (s *Store) ListGiants(ctx context.Context, userID int64) ([]core.Giant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+giantColumns+` FROM giants
		 WHERE user_id = ? ORDER BY priority DESC, id`, userID)
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

func getGiant(ctx context.Context, q querier, userID, giantID int64) (core.Giant, error) {
	g, err := scanGiant(q.QueryRowContext(ctx,
		`SELECT `+giantColumns+` FROM giants WHERE id = ? AND user_id = ?`, giantID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Giant{}, core.ErrNotFound
	}
	if err != nil {
		return core.Giant{}, core.Persistence("get giant", err)
	}
	return g, nil
}

func sumPayments(ctx context.Context, q querier, giantID int64) (core.Money, error) {
	var paid int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM giant_payments WHERE giant_id = ?`, giantID,
	).Scan(&paid)
	if err != nil {
		return core.Money{}, core.Persistence("sum giant payments", err)
	}
	return core.Money{Cents: paid}, nil
}

func (s *Store) GiantWithPaid(ctx context.Context, userID, giantID int64) (core.Giant, core.Money, error) {
	g, err := getGiant(ctx, s.db, userID, giantID)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT giant_id, SUM(amount_cents) FROM giant_payments
		 WHERE user_id = ? GROUP BY giant_id`, userID)
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
	err := s.inTx(ctx, "giant payment", func(tx *sql.Tx) error {
		g, err := getGiant(ctx, tx, p.UserID, p.GiantID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO giant_payments (user_id, giant_id, amount_cents, date, note)
			 VALUES (?, ?, ?, ?, ?)`,
			p.UserID, p.GiantID, p.Amount.Cents, p.Date.String(), p.Note)
		if err != nil {
			return core.Persistence("insert giant payment", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return core.Persistence("insert giant payment", err)
		}
		if paid, err = sumPayments(ctx, tx, p.GiantID); err != nil {
			return err
		}
		if core.ForecastPayoff(g, paid).IsPaidOff() && g.Status == core.GiantActive {
			if _, err := tx.ExecContext(ctx,
				`UPDATE giants SET status = ? WHERE id = ?`, string(core.GiantPaid), g.ID); err != nil {
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
	err := s.inTx(ctx, "delete giant", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM giant_payments
			 WHERE giant_id IN (SELECT id FROM giants WHERE id = ? AND user_id = ?)`,
			giantID, userID); err != nil {
			return core.Persistence("delete giant payments", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM giants WHERE id = ? AND user_id = ?`, giantID, userID)
		if err != nil {
			return core.Persistence("delete giant", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return core.Persistence("delete giant", err)
		}
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Bills

func (s *Store) CreateBill(ctx context.Context, b core.Bill) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bills (user_id, title, amount_cents, due_date, critical, paid)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Title, b.Amount.Cents, b.DueDate.String(), b.Critical, b.Paid)
	if err != nil {
		return 0, core.Persistence("create bill", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.Persistence("create bill", err)
	}
	return id, nil
}

func (s *Store) ListBills(ctx context.Context, userID int64) ([]core.Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, amount_cents, due_date, critical, paid
		 FROM bills WHERE user_id = ? ORDER BY due_date, id`, userID)
	if err != nil {
		return nil, core.Persistence("list bills", err)
	}
	defer rows.Close()

	var out []core.Bill
	for rows.Next() {
		var b core.Bill
		var due string
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.Amount.Cents, &due,
			&b.Critical, &b.Paid); err != nil {
			return nil, core.Persistence("scan bill", err)
		}
		b.DueDate, _ = core.ParseDate(due)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("iterate bills", err)
	}
	return out, nil
}

func (s *Store) SetBillPaid(ctx context.Context, userID, billID int64, paid bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bills SET paid = ? WHERE id = ? AND user_id = ?`, paid, billID, userID)
	if err != nil {
		return core.Persistence("set bill paid", err)
	}
	return notFoundIfNone(res, "set bill paid")
}

func (s *Store) DeleteBill(ctx context.Context, userID, billID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bills WHERE id = ? AND user_id = ?`, billID, userID)
	if err != nil {
		return core.Persistence("delete bill", err)
	}
	return notFoundIfNone(res, "delete bill")
}

// helpers

func notFoundIfNone(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence(op, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence(op, err)
	}
	if n != 1 {
		return core.Persistence(op, fmt.Errorf("%d rows affected", n))
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}
