package models

import "time"

// Notification levels
const (
	NotificationInfo     = "info"
	NotificationWarning  = "warning"
	NotificationCritical = "critical"
)

// Notification is a message pushed to every clinic (ClinicID nil) or to one
type Notification struct {
	ID        int64      `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Message   string     `json:"message" db:"message"`
	Level     string     `json:"level" db:"level"`
	ClinicID  *int64     `json:"clinicId" db:"clinic_id"`
	CreatedBy *int64     `json:"createdBy,omitempty" db:"created_by"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// Products that ship versioned client software
const (
	ProductPOS    = "pos"
	ProductClinic = "clinic"
)

// AppVersion is a released client build
type AppVersion struct {
	ID           int64     `json:"id" db:"id"`
	Product      string    `json:"product" db:"product"`
	Version      string    `json:"version" db:"version"`
	DownloadURL  string    `json:"downloadUrl" db:"download_url"`
	ReleaseNotes string    `json:"releaseNotes" db:"release_notes"`
	Mandatory    bool      `json:"mandatory" db:"mandatory"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Ticket statuses
const (
	TicketOpen     = "open"
	TicketAnswered = "answered"
	TicketClosed   = "closed"
)

// Ticket is a support conversation between a clinic and staff
type Ticket struct {
	ID        int64           `json:"id" db:"id"`
	Reference string          `json:"reference" db:"reference"`
	ClinicID  int64           `json:"clinicId" db:"clinic_id"`
	Subject   string          `json:"subject" db:"subject"`
	Status    string          `json:"status" db:"status"`
	CreatedBy *int64          `json:"createdBy,omitempty" db:"created_by"`
	Messages  []TicketMessage `json:"messages,omitempty"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// TicketMessage is one message inside a ticket
type TicketMessage struct {
	ID         int64     `json:"id" db:"id"`
	TicketID   int64     `json:"ticketId" db:"ticket_id"`
	SenderID   *int64    `json:"senderId" db:"sender_id"`
	SenderRole string    `json:"senderRole" db:"sender_role"`
	Body       string    `json:"body" db:"body"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
