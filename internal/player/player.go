package player

// ID is the stable identity of a linked player account. It is assigned when
// a chat account is linked to a game account and never changes afterwards,
// so it is safe to use as a map or set key everywhere in the core.
type ID string

// Player carries the identity plus the display fields the front end needs
// when it formats rosters and announcements.
type Player struct {
	ID       ID
	GameName string // in-game username (the name host servers report)
	ChatName string // display name on the chat platform
}

func (p Player) String() string {
	if p.ChatName == "" {
		return p.GameName
	}
	return p.GameName + " (" + p.ChatName + ")"
}
