package store

import "time"

type AccessLevel string

const (
	LevelRead  AccessLevel = "READ"
	LevelWrite AccessLevel = "WRITE"
	LevelFull  AccessLevel = "FULL"
)

type ServiceRole struct {
	Service string `json:"service"`
	Role    string `json:"role"`
}

// Role is a user's membership in one organization.
type Role struct {
	Organization string        `json:"organization"`
	Role         string        `json:"role"`
	Services     []ServiceRole `json:"services"`
	Teams        []string      `json:"teams"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Sysadmin  bool      `json:"sysadmin"`
	Roles     []Role    `json:"roles,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// RoleIn returns the user's role for org, or nil.
func (u *User) RoleIn(org string) *Role {
	if u == nil || org == "" {
		return nil
	}
	for i := range u.Roles {
		if u.Roles[i].Organization == org {
			return &u.Roles[i]
		}
	}
	return nil
}

// TeamsIn lists the teams the user belongs to inside org.
func (u *User) TeamsIn(org string) []string {
	if r := u.RoleIn(org); r != nil {
		return r.Teams
	}
	return nil
}

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Services  []string  `json:"services"`
	CreatedAt time.Time `json:"created_at"`
}

type ACLService struct {
	ID      string `json:"id"`
	Key     string `json:"key,omitempty"`
	KeyName string `json:"key_name,omitempty"`
}

type ACL struct {
	ID           string      `json:"id"`
	User         string      `json:"user,omitempty"`
	Organization string      `json:"organization,omitempty"`
	Service      ACLService  `json:"service"`
	Level        AccessLevel `json:"level"`
	Public       bool        `json:"public"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type ServiceKey struct {
	Key     string `json:"key"`
	KeyName string `json:"key_name"`
	Public  bool   `json:"public"`
}

// ServiceRef binds a document to a service-scoped namespace.
type ServiceRef struct {
	ID  string `json:"id"`
	Key string `json:"key,omitempty"`
}

type Folder struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	DynamicName    string    `json:"dynamic_name,omitempty"`
	DynamicNameRef string    `json:"dynamic_name_ref,omitempty"`
	ParentID       string    `json:"parent,omitempty"`
	Organization   string    `json:"organization,omitempty"`
	ServiceKey     string    `json:"service_key,omitempty"`
	CreatedBy      string    `json:"created_by"`
	IsShared       bool      `json:"is_shared"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (f *Folder) HasName() bool {
	return f != nil && (f.Name != "" || (f.DynamicName != "" && f.DynamicNameRef != ""))
}

type Document struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	StoreKey     string      `json:"store_key"`
	Size         int64       `json:"size"`
	ContentType  string      `json:"content_type"`
	Organization string      `json:"organization,omitempty"`
	Service      *ServiceRef `json:"service,omitempty"`
	FolderID     string      `json:"folder,omitempty"`
	CreatedBy    string      `json:"created_by,omitempty"`
	Thumbnail    string      `json:"thumbnail,omitempty"`
	IsExternal   bool        `json:"is_external"`
	IsShared     bool        `json:"is_shared"`
	SignedURL    string      `json:"signed_url,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasService reports whether the document lives in a service-scoped namespace.
func (d *Document) HasService() bool {
	return d != nil && d.Service != nil && d.Service.ID != ""
}

type ControlType string

const (
	ControlSignature  ControlType = "SIGNATURE"
	ControlSignHere   ControlType = "SIGN_HERE"
	ControlFullName   ControlType = "FULL_NAME"
	ControlDateSigned ControlType = "DATE_SIGNED"
)

func (t ControlType) Valid() bool {
	switch t {
	case ControlSignature, ControlSignHere, ControlFullName, ControlDateSigned:
		return true
	}
	return false
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type DocumentControl struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"document"`
	Type        ControlType `json:"type"`
	PageNumber  int         `json:"page_number"`
	Position    Position    `json:"position"`
	SignatureID string      `json:"signature,omitempty"`
	Signature   *Signature  `json:"signature_detail,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Signature struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user"`
	Name        string    `json:"name"`
	StoreKey    string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

type TargetKind string

const (
	TargetDocument TargetKind = "document"
	TargetFolder   TargetKind = "folder"
)

// ShareTarget names exactly one shared resource.
type ShareTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func DocumentTarget(id string) ShareTarget { return ShareTarget{Kind: TargetDocument, ID: id} }
func FolderTarget(id string) ShareTarget   { return ShareTarget{Kind: TargetFolder, ID: id} }

func (t ShareTarget) Valid() bool {
	return t.ID != "" && (t.Kind == TargetDocument || t.Kind == TargetFolder)
}

type RecipientKind string

const (
	RecipientNone  RecipientKind = ""
	RecipientUser  RecipientKind = "user"
	RecipientTeam  RecipientKind = "team"
	RecipientLink  RecipientKind = "link"
	RecipientEmail RecipientKind = "email"
)

type Recipient struct {
	User          string      `json:"user,omitempty"`
	Team          string      `json:"team,omitempty"`
	Email         string      `json:"email,omitempty"`
	ShareableLink bool        `json:"shareable_link,omitempty"`
	Organization  string      `json:"organization,omitempty"`
	Level         AccessLevel `json:"level"`
}

// Kind reports the recipient identity in priority order user, team, link, email.
func (r Recipient) Kind() RecipientKind {
	switch {
	case r.User != "":
		return RecipientUser
	case r.Team != "":
		return RecipientTeam
	case r.ShareableLink:
		return RecipientLink
	case r.Email != "":
		return RecipientEmail
	}
	return RecipientNone
}

// kinds counts how many recipient identities are set.
func (r Recipient) kinds() int {
	n := 0
	if r.User != "" {
		n++
	}
	if r.Team != "" {
		n++
	}
	if r.ShareableLink {
		n++
	}
	if r.Email != "" {
		n++
	}
	return n
}

// Single reports whether exactly one recipient identity is set.
func (r Recipient) Single() bool { return r.kinds() == 1 }

type Share struct {
	ID        string      `json:"id"`
	Target    ShareTarget `json:"target"`
	SharedBy  string      `json:"shared_by"`
	SharedTo  Recipient   `json:"shared_to"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ShareLookup selects the share rows that apply to a caller.
type ShareLookup struct {
	User         string
	Teams        []string
	Organization string
}

type Space struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}

type UserSettings struct {
	ID           string    `json:"id,omitempty"`
	User         string    `json:"user,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Space        Space     `json:"space"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type DocumentFilter struct {
	Organization string
	ServiceID    string
	ServiceKey   string
	FolderID     string
	CreatedBy    string
}
