package content

const (
	EventNewElement    = "newElement"
	EventUpdateElement = "updateElement"
	EventDeleteElement = "deleteElement"
)

// ElementEvent is the payload of newElement and updateElement. It carries
// enough of the item for viewers to redraw without refetching.
type ElementEvent struct {
	Parent     string `json:"parent"`
	ID         string `json:"id"`
	Placement  *int   `json:"placement,omitempty"`
	FieldOne   string `json:"fieldOne"`
	FieldTwo   string `json:"fieldTwo"`
	FieldThree string `json:"fieldThree,omitempty"`
	Type       Type   `json:"type"`
}

// DeleteEvent is the payload of deleteElement.
type DeleteEvent struct {
	Parent string `json:"parent"`
	ID     string `json:"id"`
	Type   Type   `json:"type"`
}

func elementEvent(it Item, withPlacement bool) ElementEvent {
	ev := ElementEvent{Parent: it.ParentGroup, ID: it.ID, Type: it.Type}
	if withPlacement {
		placement := it.Placement
		ev.Placement = &placement
	}
	fields := it.Fields()
	if len(fields) > 0 {
		ev.FieldOne = fields[0]
	}
	if len(fields) > 1 {
		ev.FieldTwo = fields[1]
	}
	if len(fields) > 2 {
		ev.FieldThree = fields[2]
	}
	return ev
}
