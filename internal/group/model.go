package group

import (
	"slices"
	"time"

	"go-chat-engine/internal/conversation"
)

// Group is a named set of members. Members keeps display case in insertion
// order; MembersLower is the parallel folded set used for membership tests.
type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Members      []string  `json:"members"`
	MembersLower []string  `json:"membersLower"`
	AdminsLower  []string  `json:"adminsLower"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasMember reports whether username belongs to the group.
func (g *Group) HasMember(username string) bool {
	return slices.Contains(g.MembersLower, conversation.Fold(username))
}

// ConversationID returns the id of the group's conversation.
func (g *Group) ConversationID() string {
	return conversation.GroupID(g.ID)
}

// addMember inserts username into both membership structures. It reports
// false when the user was already a member.
func (g *Group) addMember(username string) bool {
	lower := conversation.Fold(username)
	if slices.Contains(g.MembersLower, lower) {
		return false
	}
	g.Members = append(g.Members, username)
	g.MembersLower = append(g.MembersLower, lower)
	return true
}

// removeMember drops username from both membership structures. It reports
// false when the user was not a member.
func (g *Group) removeMember(username string) bool {
	lower := conversation.Fold(username)
	if !slices.Contains(g.MembersLower, lower) {
		return false
	}
	members := g.Members[:0:0]
	for _, m := range g.Members {
		if conversation.Fold(m) != lower {
			members = append(members, m)
		}
	}
	g.Members = members
	g.MembersLower = slices.DeleteFunc(slices.Clone(g.MembersLower), func(m string) bool { return m == lower })
	return true
}

func (g *Group) clone() *Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	c.MembersLower = slices.Clone(g.MembersLower)
	c.AdminsLower = slices.Clone(g.AdminsLower)
	return &c
}

// View is the shape returned by the HTTP API.
type View struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (g *Group) View() View {
	return View{ID: g.ID, Name: g.Name, Members: g.Members}
}

func sortGroups(groups []*Group) {
	slices.SortFunc(groups, func(a, b *Group) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
