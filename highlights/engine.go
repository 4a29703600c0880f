package highlights

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ward-gg/wardbot/bot"
	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/moderation"
)

// Engine is the highlight detector. It is purely observational: it never
// claims an event, and the actual scan runs on its own goroutine so a
// large trigger set can't hold up the rest of the pipeline or the command
// hand-off.
type Engine struct {
	Oracle   bot.PermissionOracle
	Channels bot.ChannelOracle
	Notifier bot.DirectNotifier

	GetConfig func() (*moderation.Config, error)

	// ReportError receives failures from the offloaded scan. Defaults to
	// the package logger.
	ReportError bot.ErrorSink

	// pending tracks in-flight scans so tests can wait for completion
	pending sync.WaitGroup
}

func (e *Engine) Name() string {
	return "highlights"
}

// Evaluate spawns the scan and returns immediately; the verdict never
// stops the pipeline.
func (e *Engine) Evaluate(evt *bot.MessageEvent) (bot.Verdict, error) {
	conf, err := e.GetConfig()
	if err != nil {
		return bot.VerdictHandledContinue, err
	}

	// no highlighting for command invocations
	if strings.HasPrefix(evt.Content, conf.CommandPrefix) {
		return bot.VerdictHandledContinue, nil
	}

	skip, err := e.skipChannel(evt.ChannelID, conf)
	if err != nil {
		return bot.VerdictHandledContinue, err
	}
	if skip {
		return bot.VerdictHandledContinue, nil
	}

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		if err := e.scan(evt); err != nil {
			e.reportError(err)
		}
	}()

	return bot.VerdictHandledContinue, nil
}

// Wait blocks until all in-flight scans have finished. Only used by tests
// and shutdown.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// threads and staff-internal categories don't produce notifications
func (e *Engine) skipChannel(channelID int64, conf *moderation.Config) (bool, error) {
	isThread, err := e.Channels.IsThread(channelID)
	if err != nil {
		return true, err
	}
	if isThread {
		return true, nil
	}

	if conf.StaffCategory != 0 {
		parent, err := e.Channels.ParentCategory(channelID)
		if err != nil {
			return true, err
		}
		if parent == conf.StaffCategory {
			return true, nil
		}
	}

	return false, nil
}

func (e *Engine) scan(evt *bot.MessageEvent) error {
	index, err := Index()
	if err != nil {
		return err
	}

	matches := index.Matches(evt.Content)
	if len(matches) == 0 {
		return nil
	}

	// a message matching several of one user's triggers still produces a
	// single notification
	notified := make(map[int64]bool)
	for trigger, owners := range matches {
		for _, owner := range owners {
			if owner == evt.AuthorID || notified[owner] {
				continue
			}

			canRead, err := e.Oracle.CanRead(owner, evt.ChannelID)
			if err != nil {
				e.reportError(err)
				continue
			}
			if !canRead {
				continue
			}

			notified[owner] = true

			// fire and forget per recipient, one watcher's closed DMs
			// must not affect the others
			if err := e.Notifier.SendDM(owner, notificationText(trigger, evt)); err != nil {
				logger.WithError(err).WithField("user", owner).Info("failed delivering highlight notification")
			}
		}
	}

	return nil
}

func (e *Engine) reportError(err error) {
	if e.ReportError != nil {
		e.ReportError(e.Name(), err)
		return
	}
	logger.WithError(err).Error("highlight scan failed")
}

func notificationText(trigger string, evt *bot.MessageEvent) string {
	return fmt.Sprintf("**Highlight notification**\n`%s` has been mentioned.\n%s\n\nDon't care about this anymore? Run `highlights remove %s` to stop getting these notifications.",
		trigger, bot.MessageLink(evt.GuildID, evt.ChannelID, evt.ID), trigger)
}

// Register adds a trigger for the owner after checking that they can
// actually receive notifications; a user the bot can't DM would otherwise
// register watches that silently go nowhere. Validation runs first so a
// rejected trigger never produces the test DM.
func (e *Engine) Register(ownerID int64, trigger string, privileged bool) error {
	quota := QuotaMember
	if privileged {
		quota = QuotaPrivileged
	}

	trigger = normalizeTrigger(trigger)
	if err := checkAddable(ownerID, trigger, quota); err != nil {
		return err
	}

	err := e.Notifier.SendDM(ownerID, fmt.Sprintf("Test to see if you can receive DMs.\nIf everything went ok, you'll be notified whenever someone says `%s`.", trigger))
	if err != nil {
		logger.WithError(err).WithField("user", ownerID).Info("highlight test DM failed")
		return common.NewUserError("couldn't send you a DM, do you allow DMs from server members?")
	}

	return AddTrigger(ownerID, trigger, quota)
}
