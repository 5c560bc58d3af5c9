package models

import (
	"database/sql/driver"
	"time"
)

// ClinicStatus is the registration state of a tenant
type ClinicStatus string

const (
	ClinicPending   ClinicStatus = "PENDING"
	ClinicApproved  ClinicStatus = "APPROVED"
	ClinicRejected  ClinicStatus = "REJECTED"
	ClinicSuspended ClinicStatus = "SUSPENDED"
)

// Clinic is a tenant of the clinic product line
type Clinic struct {
	ID         int64        `json:"id" db:"id"`
	Name       string       `json:"name" db:"name"`
	DoctorName string       `json:"doctorName" db:"doctor_name"`
	Email      string       `json:"email" db:"email"`
	Phone      string       `json:"phone" db:"phone"`
	Address    string       `json:"address" db:"address"`
	HWID       string       `json:"hwid" db:"hwid"`
	Status     ClinicStatus `json:"status" db:"status"`
	License    *License     `json:"license"`
	CreatedAt  time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time    `json:"updatedAt" db:"updated_at"`
}

// ClinicFeatures is the fixed feature-flag set of a clinic
type ClinicFeatures struct {
	Patients     bool `json:"patients"`
	Appointments bool `json:"appointments"`
	Orthodontics bool `json:"orthodontics"`
	Xray         bool `json:"xray"`
	AI           bool `json:"ai"`
}

// Value implements driver.Valuer for the jsonb column
func (f ClinicFeatures) Value() (driver.Value, error) { return jsonValue(f) }

// Scan implements sql.Scanner for the jsonb column
func (f *ClinicFeatures) Scan(src any) error { return jsonScan(src, f) }

// ClinicControl holds the quotas, feature flags and lock state of a clinic
type ClinicControl struct {
	ClinicID       int64          `json:"clinicId" db:"clinic_id"`
	StorageLimitMB int            `json:"storageLimitMB" db:"storage_limit_mb"`
	UsersLimit     int            `json:"usersLimit" db:"users_limit"`
	PatientsLimit  *int           `json:"patientsLimit" db:"patients_limit"`
	Features       ClinicFeatures `json:"features" db:"features"`
	Locked         bool           `json:"locked" db:"locked"`
	LockReason     *string        `json:"lockReason" db:"lock_reason"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// DefaultClinicControl returns the control row created on first read
func DefaultClinicControl(clinicID int64) *ClinicControl {
	return &ClinicControl{
		ClinicID:       clinicID,
		StorageLimitMB: 1024,
		UsersLimit:     3,
		Features: ClinicFeatures{
			Patients:     true,
			Appointments: true,
		},
	}
}
