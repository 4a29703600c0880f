package blocklist

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ward-gg/wardbot/bot"
	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/moderation"
)

// Detector runs each message against the blocklist. On a match the
// message is deleted, the author is told which word triggered it, an
// annotation is written and a mod log entry is emitted. The four effects
// are independent: one failing (commonly the DM, when the author blocks
// DMs) never prevents the others.
type Detector struct {
	Admin    bot.MessageAdmin
	Notifier bot.DirectNotifier
	Oracle   bot.PermissionOracle
	ModLog   bot.ModLogSink
	Ledger   *moderation.Ledger

	GetConfig func() (*moderation.Config, error)
}

func (d *Detector) Name() string {
	return "blocklist"
}

func (d *Detector) Evaluate(evt *bot.MessageEvent) (bot.Verdict, error) {
	conf, err := d.GetConfig()
	if err != nil {
		return bot.VerdictNotApplicable, err
	}

	// moderators managing the blocklist would otherwise trip it with the
	// pattern in their own invocation
	if strings.HasPrefix(evt.Content, conf.CommandPrefix+"blocklist") {
		staff, err := d.Oracle.IsStaff(evt.AuthorID)
		if err != nil {
			logger.WithError(err).Error("failed resolving staff status, not exempting")
		} else if staff {
			return bot.VerdictNotApplicable, nil
		}
	}

	word, matched, err := Check(evt.Content)
	if err != nil {
		return bot.VerdictNotApplicable, err
	}
	if !matched {
		return bot.VerdictNotApplicable, nil
	}

	var wg sync.WaitGroup
	runEffect := func(name string, f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil {
				logger.WithError(err).WithField("effect", name).WithField("user", evt.AuthorID).
					Info("blocklist effect failed")
			}
		}()
	}

	runEffect("delete", func() error {
		return d.Admin.DeleteMessage(evt.ChannelID, evt.ID)
	})

	runEffect("dm", func() error {
		return d.Notifier.SendDM(evt.AuthorID,
			fmt.Sprintf("Your message has been deleted for containing a blocked word: `%s`\n\n%s", word, evt.Content))
	})

	runEffect("annotation", func() error {
		_, err := d.Ledger.AppendAnnotation(&moderation.Annotation{
			ActorID:  common.BotUserID(),
			TargetID: evt.AuthorID,
			NoteText: fmt.Sprintf("message deleted because of word `%s`", word),
			Category: moderation.AnnotationBlocklistViolation,
		})
		return err
	})

	runEffect("modlog", func() error {
		d.ModLog.Record(common.BotUserID(), evt.AuthorID, "Message autodelete",
			fmt.Sprintf("deleted because of `%s`", word), bot.MessageLink(evt.GuildID, evt.ChannelID, evt.ID))
		return nil
	})

	wg.Wait()

	return bot.VerdictHandledStop, nil
}
