package collaboration

import (
	"math/rand/v2"
	"sort"
	"time"

	"docsync/internal/models"
)

// palette holds the display colors handed out at join time.
var palette = [...]string{
	"#E57373", "#64B5F6", "#81C784", "#FFB74D", "#BA68C8",
	"#4DB6AC", "#F06292", "#A1887F", "#7986CB", "#DCE775",
}

// randomColor picks uniformly from the palette. Two participants may share a
// color; it is only a display hint.
func randomColor() string {
	return palette[rand.IntN(len(palette))]
}

// Participant is one joined connection inside a DocumentSession. It is owned
// by its session and only touched with the session lock held.
type Participant struct {
	ConnectionID   string
	UserID         string
	UserName       string
	Color          string
	CursorPosition *models.CursorPosition
	LastActive     time.Time
	JoinedAt       time.Time

	conn Conn
}

// touch records activity at t.
func (p *Participant) touch(t time.Time) {
	p.LastActive = t
}

// moveCursor stores a copy of pos so the caller's value can't alias session state.
func (p *Participant) moveCursor(pos models.CursorPosition, t time.Time) {
	p.CursorPosition = &pos
	p.touch(t)
}

func (p *Participant) presence() models.UserPresence {
	up := models.UserPresence{
		UserID:   p.UserID,
		UserName: p.UserName,
		Color:    p.Color,
	}
	if p.CursorPosition != nil {
		pos := *p.CursorPosition
		up.CursorPosition = &pos
	}
	return up
}

// buildRoster returns the presence of every participant, oldest join first.
func buildRoster(participants map[string]*Participant) []models.UserPresence {
	ordered := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].ConnectionID < ordered[j].ConnectionID
	})

	roster := make([]models.UserPresence, len(ordered))
	for i, p := range ordered {
		roster[i] = p.presence()
	}
	return roster
}
