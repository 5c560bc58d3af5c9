package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LicenseStatus is the lifecycle state of a license
type LicenseStatus string

const (
	LicensePending LicenseStatus = "pending"
	LicenseActive  LicenseStatus = "active"
	LicensePaused  LicenseStatus = "paused"
	LicenseRevoked LicenseStatus = "revoked"
	LicenseExpired LicenseStatus = "expired"
)

// Valid reports whether s is a known status
func (s LicenseStatus) Valid() bool {
	switch s {
	case LicensePending, LicenseActive, LicensePaused, LicenseRevoked, LicenseExpired:
		return true
	}
	return false
}

// PlanFeatures maps a capability name to whether the plan grants it
type PlanFeatures map[string]bool

// PlanLimits maps a quota name to its numeric limit
type PlanLimits map[string]float64

// Value implements driver.Valuer for jsonb columns
func (f PlanFeatures) Value() (driver.Value, error) { return jsonValue(f) }

// Scan implements sql.Scanner for jsonb columns
func (f *PlanFeatures) Scan(src any) error { return jsonScan(src, f) }

// Value implements driver.Valuer for jsonb columns
func (l PlanLimits) Value() (driver.Value, error) { return jsonValue(l) }

// Scan implements sql.Scanner for jsonb columns
func (l *PlanLimits) Scan(src any) error { return jsonScan(src, l) }

// Plan is a purchasable subscription plan
type Plan struct {
	ID             int64        `json:"id" db:"id"`
	Name           string       `json:"name" db:"name"`
	PriceUSD       float64      `json:"priceUSD" db:"price_usd"`
	PriceMonthly   float64      `json:"price_monthly" db:"price_monthly"`
	PriceYearly    float64      `json:"price_yearly" db:"price_yearly"`
	Currency       string       `json:"currency" db:"currency"`
	DurationMonths int          `json:"durationMonths" db:"duration_months"`
	DeviceLimit    int          `json:"deviceLimit" db:"device_limit"`
	Features       PlanFeatures `json:"features" db:"features"`
	Limits         PlanLimits   `json:"limits" db:"limits"`
	IsActive       bool         `json:"isActive" db:"is_active"`
	CreatedAt      time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time    `json:"updatedAt" db:"updated_at"`
}

// IsFree reports whether every price of the plan is zero (trial plan)
func (p *Plan) IsFree() bool {
	return p.PriceUSD == 0 && p.PriceMonthly == 0 && p.PriceYearly == 0
}

// PlanSummary is the plan block embedded in license responses
type PlanSummary struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	DurationMonths int    `json:"durationMonths"`
}

// License is an issued license key
type License struct {
	ID              int64         `json:"id" db:"id"`
	Serial          string        `json:"serial" db:"serial"`
	PlanID          int64         `json:"planId" db:"plan_id"`
	Plan            *PlanSummary  `json:"plan,omitempty"`
	ClinicID        *int64        `json:"clinicId,omitempty" db:"clinic_id"`
	CustomerName    string        `json:"customerName" db:"customer_name"`
	HardwareID      *string       `json:"hardwareId" db:"hardware_id"`
	DeviceLimit     int           `json:"deviceLimit" db:"device_limit"`
	Status          LicenseStatus `json:"status" db:"status"`
	ExpireDate      *time.Time    `json:"expireDate" db:"expire_date"`
	ActivationDate  *time.Time    `json:"activationDate" db:"activation_date"`
	ActivationCount int           `json:"activationCount" db:"activation_count"`
	LastCheckIn     *time.Time    `json:"lastCheckIn" db:"last_check_in"`
	LastRenewalDate *time.Time    `json:"lastRenewalDate,omitempty" db:"last_renewal_date"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

// IsPaused is derived from the status so the two can never disagree
func (l *License) IsPaused() bool { return l.Status == LicensePaused }

// IsExpiredAt reports whether the expire date lies before now
func (l *License) IsExpiredAt(now time.Time) bool {
	return l.ExpireDate != nil && l.ExpireDate.Before(now)
}

// MarshalJSON keeps the external two-field shape (status + isPaused)
func (l License) MarshalJSON() ([]byte, error) {
	type plain License
	return json.Marshal(struct {
		plain
		IsPaused bool `json:"isPaused"`
	}{plain(l), l.IsPaused()})
}

// Device is one activated seat of a license
type Device struct {
	ID          int64     `json:"id" db:"id"`
	LicenseID   int64     `json:"licenseId" db:"license_id"`
	HardwareID  string    `json:"hardwareId" db:"hardware_id"`
	DeviceName  string    `json:"deviceName" db:"device_name"`
	AppVersion  string    `json:"appVersion" db:"app_version"`
	LastCheckIn time.Time `json:"lastCheckIn" db:"last_check_in"`
	IsActive    bool      `json:"isActive" db:"is_active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Transaction types
const (
	TransactionPurchase = "purchase"
	TransactionRenewal  = "renewal"
)

// Transaction is a billing record attached to a license
type Transaction struct {
	ID        int64     `json:"id" db:"id"`
	LicenseID int64     `json:"licenseId" db:"license_id"`
	PlanID    int64     `json:"planId" db:"plan_id"`
	Type      string    `json:"type" db:"type"`
	Months    int       `json:"months" db:"months"`
	Amount    float64   `json:"amount" db:"amount"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Currency is a billing currency
type Currency struct {
	ID           int64     `json:"id" db:"id"`
	Code         string    `json:"code" db:"code"`
	Name         string    `json:"name" db:"name"`
	Symbol       string    `json:"symbol" db:"symbol"`
	ExchangeRate float64   `json:"exchangeRate" db:"exchange_rate"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
