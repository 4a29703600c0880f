package moderation

// ModlogAction describes how a sanction shows up in the moderation log.
// Formatting of the actual log message is owned by the sink.
type ModlogAction struct {
	Prefix string
	Emoji  string
	Color  int

	Footer string
}

func (m ModlogAction) String() string {
	str := m.Emoji + m.Prefix
	if m.Footer != "" {
		str += " (" + m.Footer + ")"
	}

	return str
}

var (
	MAMute        = ModlogAction{Prefix: "Muted", Emoji: "🔇", Color: 0x57728e}
	MAUnmute      = ModlogAction{Prefix: "Unmuted", Emoji: "🔊", Color: 0x62c65f}
	MAKick        = ModlogAction{Prefix: "Kicked", Emoji: "👢", Color: 0xf2a013}
	MABanned      = ModlogAction{Prefix: "Banned", Emoji: "🔨", Color: 0xd64848}
	MAWarned      = ModlogAction{Prefix: "Warned", Emoji: "⚠", Color: 0xfca253}
	MAMuteEvasion = ModlogAction{Prefix: "Mute evasion caught", Emoji: "🚷", Color: 0xd64848}
	MAHTMEvasion  = ModlogAction{Prefix: "HTM evasion caught", Emoji: "🚷", Color: 0xd64848}
)
