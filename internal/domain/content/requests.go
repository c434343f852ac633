package content

// Request bodies accepted by the content endpoints. Optional update fields are
// pointers: nil keeps the stored value, "-" clears it.

type CreateLinkRequest struct {
	ParentGroup string `json:"parentGroup" validate:"required,entityid"`
	Placement   *int   `json:"placement" validate:"omitempty,min=0"`
	DisplayText string `json:"displayText" validate:"required,max=500"`
	Link        string `json:"link" validate:"required,max=2048,http_url"`
	Fingerprint string `json:"fingerprint" validate:"max=200"`
	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-" validate:"max=128"`
}

type CreateTextRequest struct {
	ParentGroup string `json:"parentGroup" validate:"required,entityid"`
	Placement   *int   `json:"placement" validate:"omitempty,min=0"`
	Title       string `json:"title" validate:"max=500"`
	Text        string `json:"text" validate:"required,max=20000"`
	Fingerprint string `json:"fingerprint" validate:"max=200"`
	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-" validate:"max=128"`
}

type CreateDeadlineRequest struct {
	ParentGroup string `json:"parentGroup" validate:"required,entityid"`
	Placement   *int   `json:"placement" validate:"omitempty,min=0"`
	DisplayText string `json:"displayText" validate:"max=500"`
	Deadline    string `json:"deadline" validate:"required,max=100"`
	Start       string `json:"start" validate:"max=100"`
	Fingerprint string `json:"fingerprint" validate:"max=200"`
	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-" validate:"max=128"`
}

type UpdateLinkRequest struct {
	ParentGroup string  `json:"parentGroup" validate:"required,entityid"`
	ID          string  `json:"id" validate:"required,entityid"`
	DisplayText *string `json:"displayText" validate:"omitempty,max=500"`
	Link        *string `json:"link" validate:"omitempty,max=2048,weblink"`
	Fingerprint string  `json:"fingerprint" validate:"max=200"`
}

type UpdateTextRequest struct {
	ParentGroup string  `json:"parentGroup" validate:"required,entityid"`
	ID          string  `json:"id" validate:"required,entityid"`
	Title       *string `json:"title" validate:"omitempty,max=500"`
	Text        *string `json:"text" validate:"omitempty,max=20000"`
	Fingerprint string  `json:"fingerprint" validate:"max=200"`
}

type UpdateDeadlineRequest struct {
	ParentGroup string  `json:"parentGroup" validate:"required,entityid"`
	ID          string  `json:"id" validate:"required,entityid"`
	DisplayText *string `json:"displayText" validate:"omitempty,max=500"`
	Deadline    *string `json:"deadline" validate:"omitempty,max=100"`
	Start       *string `json:"start" validate:"omitempty,max=100"`
	Fingerprint string  `json:"fingerprint" validate:"max=200"`
}

// ItemRequest addresses a single item for delete and read.
type ItemRequest struct {
	ParentGroupID string `json:"parentGroupId" validate:"required,entityid"`
	ID            string `json:"id" validate:"required,entityid"`
	Fingerprint   string `json:"fingerprint" validate:"max=200"`
}

type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	ParentGroup string `json:"parentGroup" validate:"omitempty,entityid"`
	Placement   *int   `json:"placement" validate:"omitempty,min=0"`
	Fingerprint string `json:"fingerprint" validate:"max=200"`
}

type RenameGroupRequest struct {
	ID          string `json:"id" validate:"required,entityid"`
	Name        string `json:"name" validate:"required,max=200"`
	Fingerprint string `json:"fingerprint" validate:"max=200"`
}

type DeleteGroupRequest struct {
	ID          string `json:"id" validate:"required,entityid"`
	Fingerprint string `json:"fingerprint" validate:"max=200"`
}
