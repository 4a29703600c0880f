package moderation

import (
	"crypto/rand"
	"database/sql"
	"time"

	"emperror.dev/errors"
	"github.com/oklog/ulid/v2"
)

// Ledger is the persisted, append-mostly store of sanctions and
// annotations. Records are never physically removed; old warns feed the
// "warned for the Nth time" counts forever.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append inserts a new sanction record and returns its id. Only fails on
// storage unavailability.
func (l *Ledger) Append(r *SanctionRecord) (string, error) {
	if r.ID == "" {
		id, err := newULID()
		if err != nil {
			return "", err
		}
		r.ID = id
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	const q = `INSERT INTO sanctions
	(id, actor_id, target_id, kind, reason, created_at, evidence_ref, mute_start, mute_end, mute_active)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := l.db.Exec(q, r.ID, r.ActorID, r.TargetID, string(r.Kind), r.Reason,
		r.CreatedAt.Unix(), r.EvidenceRef, unixOrZero(r.MuteStart), unixOrZero(r.MuteEnd), boolToInt(r.MuteActive))
	if err != nil {
		return "", errors.WithMessage(err, "ledger: append sanction")
	}

	return r.ID, nil
}

// ActiveMute returns the most recent active mute record for the user, or
// nil if there is none.
func (l *Ledger) ActiveMute(userID int64) (*SanctionRecord, error) {
	const q = `SELECT id, actor_id, target_id, kind, reason, created_at, evidence_ref, mute_start, mute_end, mute_active
	FROM sanctions WHERE target_id = ? AND kind = ? AND mute_active = 1
	ORDER BY created_at DESC, id DESC LIMIT 1`

	row := l.db.QueryRow(q, userID, string(KindMute))
	r, err := scanSanction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithMessage(err, "ledger: query active mute")
	}

	return r, nil
}

// Count returns how many sanctions of the given kind the user has accrued.
func (l *Ledger) Count(userID int64, kind SanctionKind) (int, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM sanctions WHERE target_id = ? AND kind = ?`,
		userID, string(kind)).Scan(&n)
	if err != nil {
		return 0, errors.WithMessage(err, "ledger: count sanctions")
	}

	return n, nil
}

// DeactivateMute flips the record's active flag off. Idempotent: flipping
// an already-inactive record is a no-op, not an error.
func (l *Ledger) DeactivateMute(id string) error {
	_, err := l.db.Exec(`UPDATE sanctions SET mute_active = 0 WHERE id = ? AND kind = ?`,
		id, string(KindMute))
	if err != nil {
		return errors.WithMessage(err, "ledger: deactivate mute")
	}

	return nil
}

// ExpiredMutes returns all still-active mutes whose end time has passed,
// for the expiry sweep.
func (l *Ledger) ExpiredMutes(now time.Time) ([]*SanctionRecord, error) {
	const q = `SELECT id, actor_id, target_id, kind, reason, created_at, evidence_ref, mute_start, mute_end, mute_active
	FROM sanctions WHERE kind = ? AND mute_active = 1 AND mute_end > 0 AND mute_end <= ?`

	rows, err := l.db.Query(q, string(KindMute), now.Unix())
	if err != nil {
		return nil, errors.WithMessage(err, "ledger: query expired mutes")
	}
	defer rows.Close()

	var out []*SanctionRecord
	for rows.Next() {
		r, err := scanSanction(rows)
		if err != nil {
			return nil, errors.WithMessage(err, "ledger: scan expired mute")
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// AppendAnnotation inserts a non-punitive note and returns its id.
func (l *Ledger) AppendAnnotation(a *Annotation) (string, error) {
	if a.ID == "" {
		id, err := newULID()
		if err != nil {
			return "", err
		}
		a.ID = id
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := l.db.Exec(`INSERT INTO annotations (id, actor_id, target_id, note_text, created_at, category)
	VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ActorID, a.TargetID, a.NoteText, a.CreatedAt.Unix(), a.Category)
	if err != nil {
		return "", errors.WithMessage(err, "ledger: append annotation")
	}

	return a.ID, nil
}

// Annotations returns the user's notes, newest first.
func (l *Ledger) Annotations(userID int64) ([]*Annotation, error) {
	rows, err := l.db.Query(`SELECT id, actor_id, target_id, note_text, created_at, category
	FROM annotations WHERE target_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, errors.WithMessage(err, "ledger: query annotations")
	}
	defer rows.Close()

	var out []*Annotation
	for rows.Next() {
		a := &Annotation{}
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.ActorID, &a.TargetID, &a.NoteText, &createdAt, &a.Category); err != nil {
			return nil, errors.WithMessage(err, "ledger: scan annotation")
		}
		a.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, a)
	}

	return out, rows.Err()
}

// SetHTM flags the user as having a history of temporary measures. The
// flag has no expiry and is independent of the mute state machine.
func (l *Ledger) SetHTM(userID int64) error {
	_, err := l.db.Exec(`INSERT INTO htm_users (user_id, set_at) VALUES (?, ?)
	ON CONFLICT (user_id) DO NOTHING`, userID, time.Now().Unix())
	if err != nil {
		return errors.WithMessage(err, "ledger: set htm")
	}
	return nil
}

func (l *Ledger) ClearHTM(userID int64) error {
	_, err := l.db.Exec(`DELETE FROM htm_users WHERE user_id = ?`, userID)
	if err != nil {
		return errors.WithMessage(err, "ledger: clear htm")
	}
	return nil
}

func (l *Ledger) IsHTM(userID int64) (bool, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM htm_users WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, errors.WithMessage(err, "ledger: check htm")
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSanction(row rowScanner) (*SanctionRecord, error) {
	r := &SanctionRecord{}
	var kind string
	var createdAt, muteStart, muteEnd, muteActive int64

	err := row.Scan(&r.ID, &r.ActorID, &r.TargetID, &kind, &r.Reason, &createdAt,
		&r.EvidenceRef, &muteStart, &muteEnd, &muteActive)
	if err != nil {
		return nil, err
	}

	r.Kind = SanctionKind(kind)
	r.CreatedAt = time.Unix(createdAt, 0)
	if muteStart != 0 {
		r.MuteStart = time.Unix(muteStart, 0)
	}
	if muteEnd != 0 {
		r.MuteEnd = time.Unix(muteEnd, 0)
	}
	r.MuteActive = muteActive != 0

	return r, nil
}

func newULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", errors.WithMessage(err, "ledger: generate ulid")
	}
	return id.String(), nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
