package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"homebudget/internal/core"
	"homebudget/internal/rules"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as second-precision RFC3339 UTC strings so that
// lexicographic comparison in SQL matches chronological order.
const timeLayout = time.RFC3339

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrStorage, op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// --- households and membership ---

func (r *SQLiteRepository) CreateHousehold(ctx context.Context, h core.Household) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO households (id, name, base_currency) VALUES (?, ?, ?)`,
		h.ID.String(), h.Name, h.BaseCurrency)
	if err != nil {
		return storageErr("create household", err)
	}
	return nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, householdID, userID uuid.UUID, role core.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT (household_id, user_id) DO UPDATE SET role = excluded.role`,
		householdID.String(), userID.String(), string(role))
	if err != nil {
		return storageErr("add member", err)
	}
	return nil
}

// RoleOf returns the user's role in the household, or the empty role
// when the user is not a member.
func (r *SQLiteRepository) RoleOf(ctx context.Context, householdID, userID uuid.UUID) (core.Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID.String(), userID.String()).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("get member role", err)
	}
	return core.Role(role), nil
}

// --- accounts ---

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, household_id, name, type, initial_balance_cents, currency, archived)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.HouseholdID.String(), a.Name, string(a.Type),
		a.InitialBalance.Cents, a.Currency, a.Archived)
	if err != nil {
		return storageErr("create account", err)
	}
	return nil
}

// AccountHousehold returns the household owning the account.
func (r *SQLiteRepository) AccountHousehold(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT household_id FROM accounts WHERE id = ?`, accountID.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: account %s", core.ErrNotFound, accountID)
	}
	if err != nil {
		return uuid.Nil, storageErr("get account household", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, storageErr("parse account household id", err)
	}
	return id, nil
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, household_id, kind, name, icon, color, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.HouseholdID.String(), string(c.Kind), c.Name, c.Icon, c.Color, c.Position)
	if err != nil {
		return storageErr("create category", err)
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, householdID uuid.UUID) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, household_id, kind, name, icon, color, position
		 FROM categories WHERE household_id = ?
		 ORDER BY position, name`, householdID.String())
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var id, hh, kind string
		if err := rows.Scan(&id, &hh, &kind, &c.Name, &c.Icon, &c.Color, &c.Position); err != nil {
			return nil, storageErr("scan category", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, storageErr("parse category id", err)
		}
		if c.HouseholdID, err = uuid.Parse(hh); err != nil {
			return nil, storageErr("parse category household id", err)
		}
		c.Kind = core.Kind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate categories", err)
	}
	return out, nil
}

// --- transactions ---

// CreateTransaction inserts the transaction and its category split in a
// single database transaction.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction, weights []core.CategoryWeight) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, household_id, account_id, occurred_at, description, merchant, amount_cents, direction, currency)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.HouseholdID.String(), t.AccountID.String(),
		formatTime(t.OccurredAt), t.Description, t.Merchant,
		t.Amount.Cents, string(t.Direction), t.Currency)
	if err != nil {
		return storageErr("insert transaction", err)
	}

	for _, w := range weights {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transaction_categories (transaction_id, category_id, weight) VALUES (?, ?, ?)`,
			t.ID.String(), w.CategoryID.String(), w.Weight)
		if err != nil {
			return storageErr("insert category weight", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"household_id", t.HouseholdID,
		"amount_cents", t.Amount.Cents,
		"direction", t.Direction,
		"splits", len(weights))
	return nil
}

// ListTransactions returns the household's transactions whose occurred_at
// falls in [start, end), together with all their category weights.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, householdID uuid.UUID, start, end time.Time) ([]core.Transaction, []core.CategoryWeight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, household_id, account_id, occurred_at, description, merchant, amount_cents, direction, currency
		 FROM transactions
		 WHERE household_id = ? AND occurred_at >= ? AND occurred_at < ?
		 ORDER BY occurred_at`,
		householdID.String(), formatTime(start), formatTime(end))
	if err != nil {
		return nil, nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var id, hh, acct, occurred, direction string
		if err := rows.Scan(&id, &hh, &acct, &occurred, &t.Description, &t.Merchant,
			&t.Amount.Cents, &direction, &t.Currency); err != nil {
			return nil, nil, storageErr("scan transaction", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, nil, storageErr("parse transaction id", err)
		}
		if t.HouseholdID, err = uuid.Parse(hh); err != nil {
			return nil, nil, storageErr("parse transaction household id", err)
		}
		if t.AccountID, err = uuid.Parse(acct); err != nil {
			return nil, nil, storageErr("parse transaction account id", err)
		}
		if t.OccurredAt, err = parseTime(occurred); err != nil {
			return nil, nil, storageErr("parse occurred_at", err)
		}
		t.Direction = core.Direction(direction)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storageErr("iterate transactions", err)
	}

	wrows, err := r.db.QueryContext(ctx,
		`SELECT tc.transaction_id, tc.category_id, tc.weight
		 FROM transaction_categories tc
		 JOIN transactions t ON t.id = tc.transaction_id
		 WHERE t.household_id = ? AND t.occurred_at >= ? AND t.occurred_at < ?`,
		householdID.String(), formatTime(start), formatTime(end))
	if err != nil {
		return nil, nil, storageErr("list category weights", err)
	}
	defer wrows.Close()

	var weights []core.CategoryWeight
	for wrows.Next() {
		var w core.CategoryWeight
		var txID, catID string
		if err := wrows.Scan(&txID, &catID, &w.Weight); err != nil {
			return nil, nil, storageErr("scan category weight", err)
		}
		if w.TransactionID, err = uuid.Parse(txID); err != nil {
			return nil, nil, storageErr("parse weight transaction id", err)
		}
		if w.CategoryID, err = uuid.Parse(catID); err != nil {
			return nil, nil, storageErr("parse weight category id", err)
		}
		weights = append(weights, w)
	}
	if err := wrows.Err(); err != nil {
		return nil, nil, storageErr("iterate category weights", err)
	}

	return txs, weights, nil
}

// --- budget periods and budgets ---

// GetOrCreatePeriod returns the period id for the household and month,
// creating the row if it does not exist. Safe under concurrent callers:
// the unique (household_id, month) index makes the insert a no-op when
// another caller won the race.
func (r *SQLiteRepository) GetOrCreatePeriod(ctx context.Context, householdID uuid.UUID, month core.Month) (uuid.UUID, error) {
	lookup := func() (uuid.UUID, error) {
		var raw string
		err := r.db.QueryRowContext(ctx,
			`SELECT id FROM budget_periods WHERE household_id = ? AND month = ?`,
			householdID.String(), month.String()).Scan(&raw)
		if err != nil {
			return uuid.Nil, err
		}
		return uuid.Parse(raw)
	}

	id, err := lookup()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, storageErr("get budget period", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO budget_periods (id, household_id, month) VALUES (?, ?, ?)
		 ON CONFLICT (household_id, month) DO NOTHING`,
		uuid.New().String(), householdID.String(), month.String())
	if err != nil {
		return uuid.Nil, storageErr("create budget period", err)
	}

	id, err = lookup()
	if err != nil {
		return uuid.Nil, storageErr("reread budget period", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, periodID uuid.UUID) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT period_id, category_id, amount_cents, rollover_enabled
		 FROM budgets WHERE period_id = ?`, periodID.String())
	if err != nil {
		return nil, storageErr("list budgets", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var pid, cid string
		if err := rows.Scan(&pid, &cid, &b.Amount.Cents, &b.RolloverEnabled); err != nil {
			return nil, storageErr("scan budget", err)
		}
		if b.PeriodID, err = uuid.Parse(pid); err != nil {
			return nil, storageErr("parse budget period id", err)
		}
		if b.CategoryID, err = uuid.Parse(cid); err != nil {
			return nil, storageErr("parse budget category id", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate budgets", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (period_id, category_id, amount_cents, rollover_enabled)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (period_id, category_id) DO UPDATE SET
		   amount_cents = excluded.amount_cents,
		   rollover_enabled = excluded.rollover_enabled`,
		b.PeriodID.String(), b.CategoryID.String(), b.Amount.Cents, b.RolloverEnabled)
	if err != nil {
		return storageErr("upsert budget", err)
	}
	return nil
}

// --- categorization rules ---

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule rules.Rule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categorization_rules (id, household_id, category_id, match_type, match_value, priority)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rule.ID.String(), rule.HouseholdID.String(), rule.CategoryID.String(),
		string(rule.MatchType), rule.MatchValue, rule.Priority)
	if err != nil {
		return storageErr("create rule", err)
	}
	return nil
}

func (r *SQLiteRepository) ListRules(ctx context.Context, householdID uuid.UUID) ([]rules.Rule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, household_id, category_id, match_type, match_value, priority
		 FROM categorization_rules WHERE household_id = ?
		 ORDER BY priority`, householdID.String())
	if err != nil {
		return nil, storageErr("list rules", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var rl rules.Rule
		var id, hh, cat, matchType string
		if err := rows.Scan(&id, &hh, &cat, &matchType, &rl.MatchValue, &rl.Priority); err != nil {
			return nil, storageErr("scan rule", err)
		}
		if rl.ID, err = uuid.Parse(id); err != nil {
			return nil, storageErr("parse rule id", err)
		}
		if rl.HouseholdID, err = uuid.Parse(hh); err != nil {
			return nil, storageErr("parse rule household id", err)
		}
		if rl.CategoryID, err = uuid.Parse(cat); err != nil {
			return nil, storageErr("parse rule category id", err)
		}
		rl.MatchType = rules.MatchType(matchType)
		out = append(out, rl)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate rules", err)
	}
	return out, nil
}

// --- rollover markers ---

// MarkRolloverApplied records that a rollover ran for the month pair.
// Returns core.ErrRolloverApplied when a marker already exists, which is
// how double application is detected.
func (r *SQLiteRepository) MarkRolloverApplied(ctx context.Context, householdID uuid.UUID, from, to core.Month) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO rollover_markers (household_id, from_month, to_month)
		 VALUES (?, ?, ?)
		 ON CONFLICT (household_id, from_month, to_month) DO NOTHING`,
		householdID.String(), from.String(), to.String())
	if err != nil {
		return storageErr("mark rollover applied", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("mark rollover applied", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s -> %s", core.ErrRolloverApplied, from, to)
	}
	return nil
}

func (r *SQLiteRepository) RolloverApplied(ctx context.Context, householdID uuid.UUID, from, to core.Month) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM rollover_markers WHERE household_id = ? AND from_month = ? AND to_month = ?`,
		householdID.String(), from.String(), to.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("check rollover marker", err)
	}
	return true, nil
}
