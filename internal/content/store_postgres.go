package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultStoreTimeout = 10 * time.Second

type tableInfo struct {
	name         string
	parentColumn string
}

var tables = map[Kind]tableInfo{
	KindYear:     {name: "years"},
	KindModule:   {name: "modules", parentColumn: "year_id"},
	KindSubject:  {name: "subjects", parentColumn: "module_id"},
	KindLecture:  {name: "lectures", parentColumn: "subject_id"},
	KindQuestion: {name: "questions", parentColumn: "lecture_id"},
}

func table(kind Kind) (tableInfo, error) {
	t, ok := tables[kind]
	if !ok {
		return tableInfo{}, fmt.Errorf("unknown kind: %q", kind)
	}
	return t, nil
}

// PostgresStore is a PostgreSQL-backed Store. Foreign keys in the schema are
// DEFERRABLE INITIALLY DEFERRED so a rename can touch the parent before its
// children; any orphan left at commit fails the transaction.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore creates a store over pool. A zero timeout uses the default.
func NewPostgresStore(pool *pgxpool.Pool, timeout time.Duration) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &PostgresStore{pool: pool, timeout: timeout}, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in a SERIALIZABLE transaction. The transaction is detached
// from the caller's cancellation and bounded by the store timeout instead, so
// a dropped request cannot interrupt it between statements.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return translatePgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// translatePgError turns constraint failures into typed content errors and
// leaves everything else (serialization failures, lost connections) for the
// caller to report as an aborted transaction.
func translatePgError(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		kind := kindForTable(pgErr.TableName)
		return &Error{
			Code:       CodeDuplicateIdentifier,
			Kind:       kind,
			Identifier: detailKey(pgErr.Detail),
			Violation:  "identifier.unique",
			Message:    fmt.Sprintf("%s identifier already in use (%s)", kind, pgErr.Detail),
			Err:        err,
		}
	case "23503":
		kind := kindForTable(pgErr.TableName)
		return &Error{
			Code:       CodeReferenceViolation,
			Kind:       kind.Parent(),
			Identifier: detailKey(pgErr.Detail),
			Violation:  fmt.Sprintf("%s.parent", kind),
			Message:    fmt.Sprintf("%s must reference an existing %s (%s)", kind, kind.Parent(), pgErr.Detail),
			Err:        err,
		}
	}
	return err
}

// detailPattern matches the key in constraint details such as
// `Key (external_id)=(y1) already exists.` and
// `Key (year_id)=(y9) is not present in table "years".`
var detailPattern = regexp.MustCompile(`^Key \([^)]*\)=\((.*)\) (?:already exists|is not present)`)

// detailKey returns the offending value named in a constraint detail, or ""
// when the detail has another shape.
func detailKey(detail string) string {
	m := detailPattern.FindStringSubmatch(detail)
	if m == nil {
		return ""
	}
	return m[1]
}

func kindForTable(name string) Kind {
	for k, t := range tables {
		if t.name == name {
			return k
		}
	}
	return ""
}

func (s *PostgresStore) ListYears(ctx context.Context) ([]Year, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT external_id, name, icon, legacy_key, created_at, updated_at FROM years`)
	if err != nil {
		return nil, fmt.Errorf("query years: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Year, error) {
		var y Year
		var legacy *string
		err := row.Scan(&y.ID, &y.Name, &y.Icon, &legacy, &y.CreatedAt, &y.UpdatedAt)
		y.LegacyKey = deref(legacy)
		return y, err
	})
}

func (s *PostgresStore) ListModules(ctx context.Context) ([]Module, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT external_id, name, year_id, legacy_key, created_at, updated_at FROM modules`)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Module, error) {
		var m Module
		var legacy *string
		err := row.Scan(&m.ID, &m.Name, &m.YearID, &legacy, &m.CreatedAt, &m.UpdatedAt)
		m.LegacyKey = deref(legacy)
		return m, err
	})
}

func (s *PostgresStore) ListSubjects(ctx context.Context) ([]Subject, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT external_id, name, module_id, legacy_key, created_at, updated_at FROM subjects`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Subject, error) {
		var sub Subject
		var legacy *string
		err := row.Scan(&sub.ID, &sub.Name, &sub.ModuleID, &legacy, &sub.CreatedAt, &sub.UpdatedAt)
		sub.LegacyKey = deref(legacy)
		return sub, err
	})
}

const lectureColumns = `external_id, name, subject_id, sort_order, legacy_key, created_at, updated_at`

func scanLecture(row pgx.CollectableRow) (Lecture, error) {
	var l Lecture
	var legacy *string
	err := row.Scan(&l.ID, &l.Name, &l.SubjectID, &l.Order, &legacy, &l.CreatedAt, &l.UpdatedAt)
	l.LegacyKey = deref(legacy)
	return l, err
}

func (s *PostgresStore) ListLectures(ctx context.Context) ([]Lecture, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+lectureColumns+` FROM lectures`)
	if err != nil {
		return nil, fmt.Errorf("query lectures: %w", err)
	}
	return pgx.CollectRows(rows, scanLecture)
}

func (s *PostgresStore) GetLectures(ctx context.Context, ids []string) ([]Lecture, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+lectureColumns+` FROM lectures WHERE external_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query lectures by id: %w", err)
	}
	return pgx.CollectRows(rows, scanLecture)
}

func (s *PostgresStore) ListQuestions(ctx context.Context, lectureIDs []string) ([]Question, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT external_id, lecture_id, text, options, correct_index, explanation,
		difficulty, sort_order, legacy_key, created_at, updated_at
		FROM questions`
	var args []any
	if lectureIDs != nil {
		query += ` WHERE lecture_id = ANY($1)`
		args = append(args, lectureIDs)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Question, error) {
		var q Question
		var legacy *string
		err := row.Scan(&q.ID, &q.LectureID, &q.Text, &q.Options, &q.CorrectIndex, &q.Explanation,
			&q.Difficulty, &q.Order, &legacy, &q.CreatedAt, &q.UpdatedAt)
		q.LegacyKey = deref(legacy)
		return q, err
	})
}

type pgTx struct {
	tx pgx.Tx
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func exists(ctx context.Context, q querier, kind Kind, id string) (bool, error) {
	ti, err := table(kind)
	if err != nil {
		return false, err
	}
	var ok bool
	err = q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+ti.name+` WHERE external_id = $1)`, id,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check %s exists: %w", kind, err)
	}
	return ok, nil
}

func lookupLegacy(ctx context.Context, q querier, kind Kind, legacyKey string) (string, bool, error) {
	ti, err := table(kind)
	if err != nil {
		return "", false, err
	}
	var id string
	err = q.QueryRow(ctx,
		`SELECT external_id FROM `+ti.name+` WHERE legacy_key = $1`, legacyKey,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s legacy key: %w", kind, err)
	}
	return id, true, nil
}

func (s *PostgresStore) Exists(ctx context.Context, kind Kind, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return exists(ctx, s.pool, kind, id)
}

func (s *PostgresStore) LookupLegacy(ctx context.Context, kind Kind, legacyKey string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return lookupLegacy(ctx, s.pool, kind, legacyKey)
}

func (t *pgTx) Exists(ctx context.Context, kind Kind, id string) (bool, error) {
	return exists(ctx, t.tx, kind, id)
}

func (t *pgTx) LookupLegacy(ctx context.Context, kind Kind, legacyKey string) (string, bool, error) {
	return lookupLegacy(ctx, t.tx, kind, legacyKey)
}

func (t *pgTx) InsertYear(ctx context.Context, y Year) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO years (external_id, name, icon, legacy_key) VALUES ($1, $2, $3, $4)`,
		y.ID, y.Name, y.Icon, nullIfEmpty(y.LegacyKey))
	if err != nil {
		return fmt.Errorf("insert year: %w", err)
	}
	return nil
}

func (t *pgTx) InsertModule(ctx context.Context, m Module) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO modules (external_id, name, year_id, legacy_key) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Name, m.YearID, nullIfEmpty(m.LegacyKey))
	if err != nil {
		return fmt.Errorf("insert module: %w", err)
	}
	return nil
}

func (t *pgTx) InsertSubject(ctx context.Context, s Subject) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO subjects (external_id, name, module_id, legacy_key) VALUES ($1, $2, $3, $4)`,
		s.ID, s.Name, s.ModuleID, nullIfEmpty(s.LegacyKey))
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (t *pgTx) InsertLecture(ctx context.Context, l Lecture) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO lectures (external_id, name, subject_id, sort_order, legacy_key) VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.Name, l.SubjectID, l.Order, nullIfEmpty(l.LegacyKey))
	if err != nil {
		return fmt.Errorf("insert lecture: %w", err)
	}
	return nil
}

func (t *pgTx) InsertQuestion(ctx context.Context, q Question) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO questions (external_id, lecture_id, text, options, correct_index, explanation, difficulty, sort_order, legacy_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		q.ID, q.LectureID, q.Text, q.Options, q.CorrectIndex, q.Explanation, q.Difficulty, q.Order, nullIfEmpty(q.LegacyKey))
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (t *pgTx) execOne(ctx context.Context, what string, sql string, args ...any) error {
	cmd, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoRecord
	}
	return nil
}

func (t *pgTx) UpdateYear(ctx context.Context, y Year) error {
	return t.execOne(ctx, "update year",
		`UPDATE years SET name = $2, icon = $3, updated_at = NOW() WHERE external_id = $1`,
		y.ID, y.Name, y.Icon)
}

func (t *pgTx) UpdateModule(ctx context.Context, m Module) error {
	return t.execOne(ctx, "update module",
		`UPDATE modules SET name = $2, year_id = $3, updated_at = NOW() WHERE external_id = $1`,
		m.ID, m.Name, m.YearID)
}

func (t *pgTx) UpdateSubject(ctx context.Context, s Subject) error {
	return t.execOne(ctx, "update subject",
		`UPDATE subjects SET name = $2, module_id = $3, updated_at = NOW() WHERE external_id = $1`,
		s.ID, s.Name, s.ModuleID)
}

func (t *pgTx) UpdateLecture(ctx context.Context, l Lecture) error {
	return t.execOne(ctx, "update lecture",
		`UPDATE lectures SET name = $2, subject_id = $3, sort_order = $4, updated_at = NOW() WHERE external_id = $1`,
		l.ID, l.Name, l.SubjectID, l.Order)
}

func (t *pgTx) UpdateQuestion(ctx context.Context, q Question) error {
	return t.execOne(ctx, "update question",
		`UPDATE questions
		 SET lecture_id = $2, text = $3, options = $4, correct_index = $5,
		     explanation = $6, difficulty = $7, sort_order = $8, updated_at = NOW()
		 WHERE external_id = $1`,
		q.ID, q.LectureID, q.Text, q.Options, q.CorrectIndex, q.Explanation, q.Difficulty, q.Order)
}

func (t *pgTx) RenameID(ctx context.Context, kind Kind, oldID, newID string) error {
	ti, err := table(kind)
	if err != nil {
		return err
	}
	return t.execOne(ctx, "rename "+string(kind),
		`UPDATE `+ti.name+` SET external_id = $2, updated_at = NOW() WHERE external_id = $1`,
		oldID, newID)
}

func (t *pgTx) Reparent(ctx context.Context, childKind Kind, oldParent, newParent string) (int64, error) {
	ti, err := table(childKind)
	if err != nil {
		return 0, err
	}
	if ti.parentColumn == "" {
		return 0, fmt.Errorf("reparent: %s has no parent", childKind)
	}
	cmd, err := t.tx.Exec(ctx,
		`UPDATE `+ti.name+` SET `+ti.parentColumn+` = $2, updated_at = NOW() WHERE `+ti.parentColumn+` = $1`,
		oldParent, newParent)
	if err != nil {
		return 0, fmt.Errorf("reparent %s: %w", childKind, err)
	}
	return cmd.RowsAffected(), nil
}

func (t *pgTx) ChildIDs(ctx context.Context, childKind Kind, parentIDs []string) ([]string, error) {
	ti, err := table(childKind)
	if err != nil {
		return nil, err
	}
	if ti.parentColumn == "" {
		return nil, fmt.Errorf("child ids: %s has no parent", childKind)
	}
	if len(parentIDs) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT external_id FROM `+ti.name+` WHERE `+ti.parentColumn+` = ANY($1) ORDER BY external_id`,
		parentIDs)
	if err != nil {
		return nil, fmt.Errorf("query %s children: %w", childKind, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect %s children: %w", childKind, err)
	}
	return ids, nil
}

func (t *pgTx) DeleteByParent(ctx context.Context, kind Kind, parentIDs []string) (int64, error) {
	ti, err := table(kind)
	if err != nil {
		return 0, err
	}
	if ti.parentColumn == "" {
		return 0, fmt.Errorf("delete by parent: %s has no parent", kind)
	}
	if len(parentIDs) == 0 {
		return 0, nil
	}
	cmd, err := t.tx.Exec(ctx,
		`DELETE FROM `+ti.name+` WHERE `+ti.parentColumn+` = ANY($1)`, parentIDs)
	if err != nil {
		return 0, fmt.Errorf("delete %s by parent: %w", kind, err)
	}
	return cmd.RowsAffected(), nil
}

func (t *pgTx) Delete(ctx context.Context, kind Kind, ids []string) (int64, error) {
	ti, err := table(kind)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := t.tx.Exec(ctx,
		`DELETE FROM `+ti.name+` WHERE external_id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	return cmd.RowsAffected(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
