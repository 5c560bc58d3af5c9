package clinic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/pkg/models"
)

// OptionalInt tells an omitted JSON field apart from an explicit null
type OptionalInt struct {
	Set   bool
	Value *int
}

func (o *OptionalInt) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// FeaturesPatch carries only the flags the caller sent
type FeaturesPatch struct {
	Patients     *bool `json:"patients"`
	Appointments *bool `json:"appointments"`
	Orthodontics *bool `json:"orthodontics"`
	Xray         *bool `json:"xray"`
	AI           *bool `json:"ai"`
}

// ControlsPatch is the partial body of PUT /api/clinics/:id/controls.
// A null patientsLimit means unlimited.
type ControlsPatch struct {
	StorageLimitMB *int           `json:"storageLimitMB"`
	UsersLimit     *int           `json:"usersLimit"`
	PatientsLimit  OptionalInt    `json:"patientsLimit"`
	Features       *FeaturesPatch `json:"features"`
	Locked         *bool          `json:"locked"`
	LockReason     *string        `json:"lockReason"`
}

// Usage is what the tenant software is about to hold after the operation it
// is checking.
type Usage struct {
	StorageMB int `json:"storageMB"`
	Users     int `json:"users"`
	Patients  int `json:"patients"`
}

// Controls serves and edits per-clinic quotas, flags and lock state
type Controls struct {
	store Store
}

func NewControls(store Store) *Controls { return &Controls{store: store} }

// Get returns the clinic's controls, creating the default row on first read
func (c *Controls) Get(ctx context.Context, clinicID int64) (*models.ClinicControl, error) {
	var out *models.ClinicControl
	err := c.store.WithinTx(ctx, func(tx Store) error {
		var err error
		out, err = ensureControl(ctx, tx, clinicID, false)
		return err
	})
	return out, err
}

func ensureControl(ctx context.Context, tx Store, clinicID int64, forUpdate bool) (*models.ClinicControl, error) {
	if _, err := tx.GetClinic(ctx, clinicID); err != nil {
		return nil, err
	}
	ctl, err := tx.GetControl(ctx, clinicID, forUpdate)
	if err != nil {
		return nil, err
	}
	if ctl != nil {
		return ctl, nil
	}
	if _, err := tx.InsertDefaultControl(ctx, models.DefaultClinicControl(clinicID)); err != nil {
		return nil, err
	}
	return tx.GetControl(ctx, clinicID, forUpdate)
}

// Update merges patch into the stored controls and writes one audit entry
// listing every changed field.
func (c *Controls) Update(ctx context.Context, actor models.Actor, clinicID int64, patch ControlsPatch) (*models.ClinicControl, error) {
	if negative(patch.StorageLimitMB) || negative(patch.UsersLimit) || negative(patch.PatientsLimit.Value) {
		return nil, ErrNegativeLimit
	}

	var out *models.ClinicControl
	err := c.store.WithinTx(ctx, func(tx Store) error {
		cur, err := ensureControl(ctx, tx, clinicID, true)
		if err != nil {
			return err
		}
		next, err := applyPatch(*cur, patch)
		if err != nil {
			return err
		}
		changes := diffControls(cur, &next)
		if len(changes) > 0 {
			if err := tx.UpdateControl(ctx, &next); err != nil {
				return err
			}
		}
		out = &next

		details := "no changes"
		if len(changes) > 0 {
			details = strings.Join(changes, "; ")
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionControlsUpdated,
			fmt.Sprintf("clinic=%d %s", clinicID, details)))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func negative(v *int) bool { return v != nil && *v < 0 }

func applyPatch(next models.ClinicControl, p ControlsPatch) (models.ClinicControl, error) {
	if p.StorageLimitMB != nil {
		next.StorageLimitMB = *p.StorageLimitMB
	}
	if p.UsersLimit != nil {
		next.UsersLimit = *p.UsersLimit
	}
	if p.PatientsLimit.Set {
		next.PatientsLimit = p.PatientsLimit.Value
	}
	if f := p.Features; f != nil {
		setBool(&next.Features.Patients, f.Patients)
		setBool(&next.Features.Appointments, f.Appointments)
		setBool(&next.Features.Orthodontics, f.Orthodontics)
		setBool(&next.Features.Xray, f.Xray)
		setBool(&next.Features.AI, f.AI)
	}
	if p.Locked != nil {
		next.Locked = *p.Locked
	}

	if !next.Locked {
		next.LockReason = nil
		return next, nil
	}
	reason := next.LockReason
	if p.LockReason != nil {
		reason = p.LockReason
	}
	if reason == nil || strings.TrimSpace(*reason) == "" {
		return next, ErrLockReason
	}
	trimmed := strings.TrimSpace(*reason)
	next.LockReason = &trimmed
	return next, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func diffControls(old, cur *models.ClinicControl) []string {
	var out []string
	add := func(field, from, to string) {
		if from != to {
			out = append(out, fmt.Sprintf("%s: %s → %s", field, from, to))
		}
	}
	add("storageLimitMB", strconv.Itoa(old.StorageLimitMB), strconv.Itoa(cur.StorageLimitMB))
	add("usersLimit", strconv.Itoa(old.UsersLimit), strconv.Itoa(cur.UsersLimit))
	add("patientsLimit", limitString(old.PatientsLimit), limitString(cur.PatientsLimit))
	add("features.patients", strconv.FormatBool(old.Features.Patients), strconv.FormatBool(cur.Features.Patients))
	add("features.appointments", strconv.FormatBool(old.Features.Appointments), strconv.FormatBool(cur.Features.Appointments))
	add("features.orthodontics", strconv.FormatBool(old.Features.Orthodontics), strconv.FormatBool(cur.Features.Orthodontics))
	add("features.xray", strconv.FormatBool(old.Features.Xray), strconv.FormatBool(cur.Features.Xray))
	add("features.ai", strconv.FormatBool(old.Features.AI), strconv.FormatBool(cur.Features.AI))
	add("locked", strconv.FormatBool(old.Locked), strconv.FormatBool(cur.Locked))
	add("lockReason", reasonString(old.LockReason), reasonString(cur.LockReason))
	return out
}

func limitString(v *int) string {
	if v == nil {
		return "unlimited"
	}
	return strconv.Itoa(*v)
}

func reasonString(v *string) string {
	if v == nil {
		return "none"
	}
	return strconv.Quote(*v)
}

// Enforce checks an operation of the tenant software against the clinic's
// controls. feature may be empty when only quotas matter.
func (c *Controls) Enforce(ctx context.Context, clinicID int64, usage Usage, feature string) (*models.ClinicControl, error) {
	ctl, err := c.Get(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if ctl.Locked {
		reason := ""
		if ctl.LockReason != nil {
			reason = *ctl.LockReason
		}
		return ctl, apperr.Forbidden("Clinic is locked: " + reason)
	}
	if feature != "" {
		on, ok := featureFlag(ctl.Features, feature)
		if !ok {
			return ctl, apperr.Wrap(ErrUnknownFeature, fmt.Errorf("feature %q", feature))
		}
		if !on {
			return ctl, ErrFeatureDisabled
		}
	}
	switch {
	case usage.StorageMB > ctl.StorageLimitMB:
		return ctl, ErrStorageExhausted
	case usage.Users > ctl.UsersLimit:
		return ctl, ErrUsersExhausted
	case ctl.PatientsLimit != nil && usage.Patients > *ctl.PatientsLimit:
		return ctl, ErrPatientsExhausted
	}
	return ctl, nil
}

func featureFlag(f models.ClinicFeatures, name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "patients":
		return f.Patients, true
	case "appointments":
		return f.Appointments, true
	case "orthodontics":
		return f.Orthodontics, true
	case "xray":
		return f.Xray, true
	case "ai":
		return f.AI, true
	}
	return false, false
}
