package content

import (
	"errors"
	"time"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrContentNotFound = errors.New("content not found")
)

// Type tags the content union.
type Type string

const (
	TypeLink     Type = "link"
	TypeText     Type = "text"
	TypeDeadline Type = "deadline"
	TypeGroup    Type = "group"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLink, TypeText, TypeDeadline, TypeGroup:
		return true
	}
	return false
}

type Link struct {
	DisplayText string `json:"displayText"`
	Link        string `json:"link"`
}

type Text struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type Deadline struct {
	DisplayText string    `json:"displayText"`
	Deadline    time.Time `json:"deadline"`
	Start       time.Time `json:"start"`
}

// GroupRef points at a child group. The reference item shares the child's id.
type GroupRef struct {
	Name string `json:"name"`
}

// Item is one entry of a group's content list. Exactly one of the payload
// pointers is set, matching Type.
type Item struct {
	ID          string    `json:"id"`
	ParentGroup string    `json:"parentGroup"`
	Placement   int       `json:"placement"`
	Type        Type      `json:"type"`
	Link        *Link     `json:"link,omitempty"`
	Text        *Text     `json:"text,omitempty"`
	Deadline    *Deadline `json:"deadline,omitempty"`
	Group       *GroupRef `json:"group,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Fields returns the item's values in audit and event order.
func (it Item) Fields() []string {
	switch it.Type {
	case TypeLink:
		if it.Link != nil {
			return []string{it.Link.DisplayText, it.Link.Link}
		}
		return []string{"", ""}
	case TypeText:
		if it.Text != nil {
			return []string{it.Text.Title, it.Text.Text}
		}
		return []string{"", ""}
	case TypeDeadline:
		if it.Deadline != nil {
			return []string{it.Deadline.DisplayText, formatTime(it.Deadline.Deadline), formatTime(it.Deadline.Start)}
		}
		return []string{"", "", ""}
	case TypeGroup:
		if it.Group != nil {
			return []string{it.Group.Name}
		}
		return []string{""}
	}
	return nil
}

// Clone returns a copy that shares no payload pointers with it.
func (it Item) Clone() Item {
	out := it
	if it.Link != nil {
		l := *it.Link
		out.Link = &l
	}
	if it.Text != nil {
		t := *it.Text
		out.Text = &t
	}
	if it.Deadline != nil {
		d := *it.Deadline
		out.Deadline = &d
	}
	if it.Group != nil {
		g := *it.Group
		out.Group = &g
	}
	return out
}

// Group is a container node. Content is ordered by placement, then id.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ParentGroup string    `json:"parentGroup,omitempty"`
	Content     []Item    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
