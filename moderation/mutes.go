package moderation

import (
	"context"
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"
	"github.com/ward-gg/wardbot/bot"
	"github.com/ward-gg/wardbot/common"
)

// MaxNativeSuppression is the longest duration the platform's native timed
// suppression accepts, measured from now. Mutes longer than this stay
// logically active and role-enforced, but the native timeout is skipped.
const MaxNativeSuppression = 40320 * time.Minute // 28 days

const DefaultMuteDMFormat = "**You have been muted for %s.**\nReason: %s"

const (
	ErrNotMuted   = errors.Sentinel("user is not muted")
	ErrNoMuteRole = errors.Sentinel("no mute role configured")
)

// Manager is the mute lifecycle state machine. Per user it holds either no
// active mute or exactly one (best effort, see Apply), reconciling the
// ledger with the platform's role and suppression primitives.
type Manager struct {
	ledger     *Ledger
	suppressor bot.Suppressor
	notifier   bot.DirectNotifier
	modlog     bot.ModLogSink

	getConfig func() (*Config, error)

	logger *logrus.Entry
}

func NewManager(ledger *Ledger, suppressor bot.Suppressor, notifier bot.DirectNotifier, modlog bot.ModLogSink, getConfig func() (*Config, error)) *Manager {
	return &Manager{
		ledger:     ledger,
		suppressor: suppressor,
		notifier:   notifier,
		modlog:     modlog,
		getConfig:  getConfig,
		logger:     common.GetFixedPrefixLogger("mutes"),
	}
}

func (m *Manager) Ledger() *Ledger {
	return m.ledger
}

// Apply mutes the user for the given duration, replacing any existing
// active mute with a fresh one (restart semantics, not extension).
//
// The ledger record and the mute role are authoritative; the native
// suppression is defense in depth and only requested when the duration
// fits under the platform cap. Platform failures are logged but never roll
// back the ledger record, reconciliation happens on the next rejoin or
// sweep.
func (m *Manager) Apply(userID int64, duration time.Duration, reason string, actorID int64, evidenceRef string) (*SanctionRecord, error) {
	conf, err := m.getConfig()
	if err != nil {
		return nil, common.ErrWithCaller(err)
	}
	if conf.MuteRole == 0 {
		return nil, ErrNoMuteRole
	}

	// make sure were only updating the mute of the user one place at a time
	LockMute(userID)
	defer UnlockMute(userID)

	// at most one active mute per user: retire the old record first.
	// Not atomic with the insert below; a concurrent Apply for the same
	// user in another process can still double-insert.
	existing, err := m.ledger.ActiveMute(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := m.ledger.DeactivateMute(existing.ID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	record := &SanctionRecord{
		ActorID:     actorID,
		TargetID:    userID,
		Kind:        KindMute,
		Reason:      reason,
		CreatedAt:   now,
		EvidenceRef: evidenceRef,
		MuteStart:   now,
		MuteEnd:     now.Add(duration),
		MuteActive:  true,
	}

	if _, err := m.ledger.Append(record); err != nil {
		return nil, err
	}

	// the role is the authoritative signal, assigned regardless of duration
	if err := m.suppressor.AddRole(userID, conf.MuteRole); err != nil {
		m.logger.WithError(err).WithField("user", userID).Error("failed assigning mute role")
	}

	if duration <= MaxNativeSuppression {
		if err := m.suppressor.SuppressUntil(userID, record.MuteEnd); err != nil {
			m.logger.WithError(err).WithField("user", userID).Error("failed requesting native suppression")
		}
	}

	if m.notifier != nil {
		err := m.notifier.SendDM(userID, fmt.Sprintf(DefaultMuteDMFormat, common.HumanizeDuration(duration), reason))
		if err != nil {
			m.logger.WithError(err).WithField("user", userID).Info("failed sending mute DM")
		}
	}

	action := MAMute
	action.Footer = "Duration: " + common.HumanizeDuration(duration)
	m.modlog.Record(actorID, userID, action.String(), reason, evidenceRef)

	return record, nil
}

// Expire ends the user's active mute: deactivates the record and removes
// the mute role. Used by both the periodic sweep and manual unmutes.
func (m *Manager) Expire(userID int64, actorID int64) error {
	LockMute(userID)
	defer UnlockMute(userID)

	active, err := m.ledger.ActiveMute(userID)
	if err != nil {
		return err
	}
	if active == nil {
		return ErrNotMuted
	}

	return m.expireRecord(active, actorID)
}

// caller must hold the user's mute lock
func (m *Manager) expireRecord(record *SanctionRecord, actorID int64) error {
	if err := m.ledger.DeactivateMute(record.ID); err != nil {
		return err
	}

	conf, err := m.getConfig()
	if err != nil {
		return common.ErrWithCaller(err)
	}

	if err := m.suppressor.RemoveRole(record.TargetID, conf.MuteRole); err != nil {
		m.logger.WithError(err).WithField("user", record.TargetID).Error("failed removing mute role")
	}

	m.modlog.Record(actorID, record.TargetID, MAUnmute.String(), "mute expired", "")
	return nil
}

// OnRejoin catches sanction evasion: a user rejoining with an active mute
// gets the role right back and an annotation, without touching the
// existing record's timing. The HTM flag is checked independently the same
// way.
func (m *Manager) OnRejoin(evt *bot.MemberJoinEvent) error {
	conf, err := m.getConfig()
	if err != nil {
		return common.ErrWithCaller(err)
	}

	var firstErr error

	htm, err := m.ledger.IsHTM(evt.UserID)
	if err != nil {
		firstErr = err
	} else if htm && conf.HTMRole != 0 {
		if err := m.suppressor.AddRole(evt.UserID, conf.HTMRole); err != nil {
			m.logger.WithError(err).WithField("user", evt.UserID).Error("failed re-assigning htm role")
		}

		_, err = m.ledger.AppendAnnotation(&Annotation{
			ActorID:  common.BotUserID(),
			TargetID: evt.UserID,
			NoteText: "user with HTM flag rejoined, re-applying role",
			Category: AnnotationHTMEvasion,
		})
		common.LogIgnoreError(err, "failed writing htm evasion annotation", nil)

		m.modlog.Record(common.BotUserID(), evt.UserID, MAHTMEvasion.String(), "user was HTM and rejoined", "")
	}

	active, err := m.ledger.ActiveMute(evt.UserID)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	if active != nil {
		if err := m.suppressor.AddRole(evt.UserID, conf.MuteRole); err != nil {
			m.logger.WithError(err).WithField("user", evt.UserID).Error("failed re-assigning mute role")
		}

		_, err = m.ledger.AppendAnnotation(&Annotation{
			ActorID:  common.BotUserID(),
			TargetID: evt.UserID,
			NoteText: fmt.Sprintf("user rejoined while muted until %s, re-applying mute role", active.MuteEnd.UTC().Format(time.RFC3339)),
			Category: AnnotationMuteEvasion,
		})
		common.LogIgnoreError(err, "failed writing mute evasion annotation", nil)

		m.modlog.Record(common.BotUserID(), evt.UserID, MAMuteEvasion.String(), active.Reason, "")
	}

	return firstErr
}

// Warn appends a warn record and returns which warning this is for the
// user (1-based).
func (m *Manager) Warn(actorID, targetID int64, reason string, evidenceRef string) (int, error) {
	_, err := m.ledger.Append(&SanctionRecord{
		ActorID:     actorID,
		TargetID:    targetID,
		Kind:        KindWarn,
		Reason:      reason,
		EvidenceRef: evidenceRef,
	})
	if err != nil {
		return 0, err
	}

	count, err := m.ledger.Count(targetID, KindWarn)
	if err != nil {
		return 0, err
	}

	if m.notifier != nil {
		err := m.notifier.SendDM(targetID, fmt.Sprintf("**You have been warned for the %s time.**\nReason: %s", common.FormatCount(count), reason))
		if err != nil {
			m.logger.WithError(err).WithField("user", targetID).Info("failed sending warn DM")
		}
	}

	action := MAWarned
	action.Footer = common.FormatCount(count) + " warning"
	m.modlog.Record(actorID, targetID, action.String(), reason, evidenceRef)

	return count, nil
}

// SweepExpired deactivates all overdue mutes and reports how many it
// retired.
func (m *Manager) SweepExpired(now time.Time) (int, error) {
	expired, err := m.ledger.ExpiredMutes(now)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, record := range expired {
		LockMute(record.TargetID)
		err := m.expireRecord(record, common.BotUserID())
		UnlockMute(record.TargetID)

		if err != nil {
			m.logger.WithError(err).WithField("user", record.TargetID).Error("failed expiring mute")
			continue
		}
		n++
	}

	return n, nil
}

// RunExpiryLoop periodically sweeps for expired mutes until the context is
// cancelled. Run in its own goroutine.
func (m *Manager) RunExpiryLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := m.SweepExpired(now)
			if err != nil {
				m.logger.WithError(err).Error("mute expiry sweep failed")
			} else if n > 0 {
				m.logger.Info("expired ", n, " mutes")
			}
		}
	}
}
