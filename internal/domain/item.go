package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ListKind names one of the sibling-list families that share the ordering rules.
type ListKind string

const (
	KindFAQ             ListKind = "faq"
	KindProgramResource ListKind = "program_resource"
	KindBibliography    ListKind = "bibliography"
	KindLink            ListKind = "link"
)

const (
	MaxTitleChars = 1023
	MaxBodyBytes  = 65535
)

// linkTypes are the resource kinds a program resource may point to.
var linkTypes = map[string]bool{
	"asg": true, // assignment
	"prj": true, // project
	"cfe": true, // call for exam
	"exa": true, // exam
	"gam": true, // game
	"rub": true, // rubric
	"doc": true, // document
	"mrk": true, // marks
	"att": true, // attendance event
	"for": true, // forum thread
	"svy": true, // survey
}

// ParseListKind converts a wire value into a ListKind.
func ParseListKind(s string) (ListKind, error) {
	k := ListKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

func (k ListKind) Valid() bool {
	switch k {
	case KindFAQ, KindProgramResource, KindBibliography, KindLink:
		return true
	}
	return false
}

// ParentID identifies the container that owns an ordered collection.
type ParentID struct {
	Kind   ListKind
	NodeID int64
}

func NewParentID(kind ListKind, nodeID int64) (ParentID, error) {
	p := ParentID{Kind: kind, NodeID: nodeID}
	if err := p.Validate(); err != nil {
		return ParentID{}, err
	}
	return p, nil
}

func (p ParentID) Validate() error {
	if !p.Kind.Valid() {
		return ErrInvalidKind
	}
	if p.NodeID <= 0 {
		return ErrInvalidParent
	}
	return nil
}

// String renders the parent as "kind:node". It is also the lock key.
func (p ParentID) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.NodeID)
}

// Payload holds the caller-owned fields of an item. For FAQ items Title is
// the question and Body the answer.
type Payload struct {
	Title    string
	Body     string
	LinkType string
	LinkID   int64
}

// Normalize trims the title and link type in place.
func (p *Payload) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.LinkType = strings.ToLower(strings.TrimSpace(p.LinkType))
}

// Validate checks the payload against the rules of the given list kind.
func (p Payload) Validate(kind ListKind) error {
	if p.Title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleChars {
		return ErrTitleTooLong
	}
	if len(p.Body) > MaxBodyBytes {
		return ErrBodyTooLong
	}

	if p.LinkType == "" {
		if p.LinkID != 0 {
			return ErrInvalidLink
		}
		return nil
	}

	// Only program resources point at other course entities.
	if kind != KindProgramResource || !linkTypes[p.LinkType] || p.LinkID <= 0 {
		return ErrInvalidLink
	}
	return nil
}

// Item is one entry of an ordered sibling list. Position is 1-based and
// dense within Parent; 0 means "no item".
type Item struct {
	ID        int64
	Parent    ParentID
	Position  uint
	Hidden    bool
	Payload   Payload
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewItem creates a visible, not yet positioned item with validation.
func NewItem(parent ParentID, payload Payload) (*Item, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}

	payload.Normalize()
	if err := payload.Validate(parent.Kind); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	return &Item{
		Parent:    parent,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a copy that shares no memory with the receiver.
func (i *Item) Clone() *Item {
	c := *i
	return &c
}

// Direction of a single-step move.
type Direction int

const (
	Up Direction = iota + 1
	Down
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return 0, ErrInvalidDirection
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "unknown"
}
