package domain

// Workflow states of a requirement. The state field only moves along the
// transitions the engine defines; nothing else writes it.
const (
	StateProposed = "proposed"
	StateReview   = "review"
	StateActive   = "active"
	StateRejected = "rejected"
	StateRemoved  = "removed"
	StateParsed   = "parsed"
)

// Endorsement statuses.
const (
	EndorsementPending  = "pending"
	EndorsementApproved = "approved"
	EndorsementRejected = "rejected"
)

// CategoryRoleBased marks a human sign-off endorsement; automated check
// endorsements carry the check type as their category instead.
const CategoryRoleBased = "role_based"

// Overall review statuses.
const (
	ReviewNone     = "none"
	ReviewPending  = "pending"
	ReviewPartial  = "partial"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AppUser struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Solution struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Requirement is a versioned, typed artifact owned by a solution. Editing an
// active requirement creates a new version under the same id; versions share
// the human-readable ReqID.
type Requirement struct {
	ID         string         `json:"id"`
	Version    int            `json:"version"`
	SolutionID string         `json:"solution_id"`
	ReqType    string         `json:"req_type"`
	ReqID      string         `json:"req_id,omitempty"`
	ReqSeq     int            `json:"req_seq,omitempty"`
	State      string         `json:"state" enum:"proposed,review,active,rejected,removed,parsed"`
	Props      map[string]any `json:"props,omitempty"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	ModifiedBy string         `json:"modified_by"`
	ModifiedAt string         `json:"modified_at" format:"date-time"`
}

// CheckDetails carries automated-check metadata on an endorsement.
type CheckDetails struct {
	Type         string `json:"type,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Endorsement is a sign-off record against one requirement version.
// EndorsedBy references a person requirement; it is nil for automated checks.
type Endorsement struct {
	ID                 string        `json:"id"`
	RequirementID      string        `json:"requirement_id"`
	RequirementVersion int           `json:"requirement_version"`
	ReqType            string        `json:"req_type"`
	Category           string        `json:"category"`
	Status             string        `json:"status" enum:"pending,approved,rejected"`
	EndorsedBy         *string       `json:"endorsed_by,omitempty"`
	Comments           string        `json:"comments,omitempty"`
	CheckDetails       *CheckDetails `json:"check_details,omitempty"`
	CreatedAt          string        `json:"created_at" format:"date-time"`
	UpdatedAt          string        `json:"updated_at" format:"date-time"`
}

// Person is the decoded shape of a person-type requirement's properties,
// bridging an app user into a solution with endorsement capabilities.
type Person struct {
	RequirementID                 string `json:"requirement_id"`
	AppUser                       string `json:"app_user"`
	IsProductOwner                bool   `json:"is_product_owner"`
	IsImplementationOwner         bool   `json:"is_implementation_owner"`
	CanEndorseProjectRequirements bool   `json:"can_endorse_project_requirements"`
	CanEndorseEnvRequirements     bool   `json:"can_endorse_environment_requirements"`
	CanEndorseGoalsRequirements   bool   `json:"can_endorse_goals_requirements"`
	CanEndorseSystemRequirements  bool   `json:"can_endorse_system_requirements"`
}

// PersonFromRequirement decodes the capability flags out of a person
// requirement's property bag. Missing keys read as false.
func PersonFromRequirement(r Requirement) Person {
	flag := func(key string) bool {
		v, ok := r.Props[key]
		if !ok {
			return false
		}
		b, _ := v.(bool)
		return b
	}
	appUser, _ := r.Props["appUser"].(string)
	return Person{
		RequirementID:                 r.ID,
		AppUser:                       appUser,
		IsProductOwner:                flag("isProductOwner"),
		IsImplementationOwner:         flag("isImplementationOwner"),
		CanEndorseProjectRequirements: flag("canEndorseProjectRequirements"),
		CanEndorseEnvRequirements:     flag("canEndorseEnvironmentRequirements"),
		CanEndorseGoalsRequirements:   flag("canEndorseGoalsRequirements"),
		CanEndorseSystemRequirements:  flag("canEndorseSystemRequirements"),
	}
}

// IsOwner reports whether the person holds a protected owner role.
func (p Person) IsOwner() bool {
	return p.IsProductOwner || p.IsImplementationOwner
}

// CanEndorseCategory reports whether the person may endorse requirements of
// the given category char (P, E, G, S). Owners bypass category checks.
func (p Person) CanEndorseCategory(category byte) bool {
	if p.IsOwner() {
		return true
	}
	switch category {
	case 'P':
		return p.CanEndorseProjectRequirements
	case 'E':
		return p.CanEndorseEnvRequirements
	case 'G':
		return p.CanEndorseGoalsRequirements
	case 'S':
		return p.CanEndorseSystemRequirements
	}
	return false
}

// ReviewItem is one line of the review checklist: a role-based endorsement or
// a quality-criteria placeholder fed by automated checks.
type ReviewItem struct {
	ID            string `json:"id,omitempty"`
	Category      string `json:"category"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status" enum:"pending,approved,rejected"`
	IsRequired    bool   `json:"is_required"`
	CanUserReview bool   `json:"can_user_review"`
}

// ReviewState aggregates the checklist for one requirement version.
type ReviewState struct {
	RequirementID string       `json:"requirement_id"`
	Items         []ReviewItem `json:"items"`
	Overall       string       `json:"overall" enum:"none,pending,partial,approved,rejected"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SolutionID string `json:"solution_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	AppUserID string `json:"app_user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
