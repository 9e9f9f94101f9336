package techmate

import (
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// Role is the server-controlled role carried in a user's profile. The client
// never changes it; it only branches on it.
type Role string

const (
	// RoleStudent is the default role for new accounts.
	RoleStudent Role = "student"
	// RoleInstructor marks an account that may author tutorials once approved.
	RoleInstructor Role = "instructor"
	// RoleAdmin bypasses the instructor approval gate entirely.
	RoleAdmin Role = "admin"
)

// Profile is the nested profile record on a [User].
type Profile struct {
	Name                 string `json:"name"`
	Age                  *int   `json:"age,omitempty"`
	Role                 Role   `json:"role"`
	IsApprovedInstructor bool   `json:"is_approved_instructor"`
}

// User is the authenticated principal snapshot as returned by the server.
type User struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Profile  Profile `json:"profile"`
}

// TokenPair is the access/refresh credential pair minted on login and
// registration.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// authPayload is the login/register response envelope.
type authPayload struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// RegisterRequest is the input for [Client.Register]. Validation tags mirror
// the server's rules so obviously bad input never leaves the process.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Name            string `json:"name" validate:"required,max=255"`
	Age             *int   `json:"age,omitempty" validate:"omitempty,gte=0"`
}

// ProfileUpdate is the partial-update input for [Client.UpdateProfile].
// Role is server-controlled and deliberately absent.
type ProfileUpdate struct {
	Name string `json:"name,omitempty"`
	Age  *int   `json:"age,omitempty"`
}

// ChangePasswordRequest is the input for [Client.ChangePassword].
type ChangePasswordRequest struct {
	OldPassword        string `json:"old_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

// PasswordResetConfirmRequest carries the emailed reset credentials plus the
// replacement password.
type PasswordResetConfirmRequest struct {
	UID                string `json:"uid" validate:"required"`
	Token              string `json:"token" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

// ContentType enumerates the lesson kinds a tutorial is composed of.
type ContentType string

const (
	// ContentVideo is a video lesson backed by an uploaded file.
	ContentVideo ContentType = "video"
	// ContentAudio is an audio lesson backed by an uploaded file.
	ContentAudio ContentType = "audio"
	// ContentText is an inline text lesson.
	ContentText ContentType = "text"
)

// Decimal accepts both JSON numbers and Django's string-encoded decimals
// ("42.50") and normalizes them to a float64.
type Decimal float64

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*d = 0
		return nil
	}
	s := string(data)
	if s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		s = unquoted
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*d = Decimal(v)
	return nil
}

// TutorialContent is a single lesson inside a tutorial.
type TutorialContent struct {
	ID          int64       `json:"id"`
	Order       int         `json:"order"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	ContentType ContentType `json:"content_type"`
	FileURL     string      `json:"file_url,omitempty"`
	Text        string      `json:"text,omitempty"`
	Duration    *int        `json:"duration,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ProgressSummary is the compact per-viewer progress block embedded in
// tutorial listings. Nil when the viewer is anonymous.
type ProgressSummary struct {
	Percentage     Decimal `json:"percentage"`
	Completed      bool    `json:"completed"`
	CompletedCount int     `json:"completed_count,omitempty"`
}

// Tutorial is a course listing entry; Contents is populated only on the
// detail endpoint.
type Tutorial struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	CreatedBy     int64             `json:"created_by"`
	CreatedByName string            `json:"created_by_name"`
	IsFeatured    bool              `json:"is_featured"`
	ThumbnailURL  string            `json:"thumbnail_url,omitempty"`
	ContentCount  int               `json:"content_count,omitempty"`
	Contents      []TutorialContent `json:"contents,omitempty"`
	UserProgress  *ProgressSummary  `json:"user_progress,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// FileUpload attaches a named file part to a multipart authoring request.
type FileUpload struct {
	Name   string
	Reader io.Reader
}

// TutorialInput is the authoring input for creating or partially updating a
// tutorial. Zero-valued fields are omitted from updates; Thumbnail, when set,
// is attached as a multipart file part.
type TutorialInput struct {
	Title       string
	Description string
	IsFeatured  *bool
	Thumbnail   *FileUpload
}

// ContentInput is the authoring input for a lesson. Video and audio lessons
// require File; text lessons require Text — the server enforces this and the
// client surfaces its field errors verbatim.
type ContentInput struct {
	Order       int
	Title       string
	Description string
	ContentType ContentType
	Text        string
	Duration    *int
	File        *FileUpload
}

// ListTutorialsOptions narrows [Client.ListTutorials]. The zero value lists
// everything.
type ListTutorialsOptions struct {
	Search     string
	Featured   bool
	Instructor string
	Mine       bool
}

// Progress is the per-user completion record for one tutorial.
type Progress struct {
	Percentage          Decimal   `json:"percentage"`
	Completed           bool      `json:"completed"`
	CompletedContentIDs []int64   `json:"completed_content_ids"`
	TotalContents       int       `json:"total_contents,omitempty"`
	CompletedCount      int       `json:"completed_count,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Certificate records a completion certificate issued for a tutorial.
type Certificate struct {
	ID                  int64     `json:"id"`
	UserName            string    `json:"user_name"`
	TutorialTitle       string    `json:"tutorial_title"`
	IssuedDate          time.Time `json:"issued_date"`
	IssuedDateFormatted string    `json:"issued_date_formatted,omitempty"`
	CertificateNumber   string    `json:"certificate_number"`
}

// DashboardStats is the aggregate block of the learner dashboard.
type DashboardStats struct {
	InProgress     int `json:"in_progress"`
	Completed      int `json:"completed"`
	TotalTutorials int `json:"total_tutorials"`
}

// DashboardTutorial is one recently-touched tutorial on the dashboard.
type DashboardTutorial struct {
	TutorialID    int64   `json:"tutorial_id"`
	TutorialTitle string  `json:"tutorial_title"`
	Percentage    Decimal `json:"percentage"`
	Completed     bool    `json:"completed"`
}

// Dashboard is the learner dashboard payload.
type Dashboard struct {
	Stats           DashboardStats      `json:"stats"`
	RecentTutorials []DashboardTutorial `json:"recent_tutorials"`
}
