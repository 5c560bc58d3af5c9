package api

import (
	"context"
	"sort"
	"time"

	"github.com/licensehub/internal/clinic"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/pkg/models"
)

// backOffice is an in-memory clinic and license database shared by the
// license, clinic and subscription services of the test server. Requests in
// these tests run one at a time, so it takes no locks, and WithinTx does not
// roll back.
type backOffice struct {
	nextID   int64
	plans    map[int64]models.Plan
	clinics  map[int64]models.Clinic
	licenses map[int64]models.License
	devices  map[int64]models.Device
	controls map[int64]models.ClinicControl
	txns     []models.Transaction
	audits   []models.AuditLog
	auth     *authStore
}

func newBackOffice(auth *authStore) *backOffice {
	return &backOffice{
		plans:    map[int64]models.Plan{},
		clinics:  map[int64]models.Clinic{},
		licenses: map[int64]models.License{},
		devices:  map[int64]models.Device{},
		controls: map[int64]models.ClinicControl{},
		auth:     auth,
	}
}

// licenseDB and clinicDB give the two services their own WithinTx
type licenseDB struct{ *backOffice }

func (d licenseDB) WithinTx(ctx context.Context, fn func(license.Store) error) error { return fn(d) }

type clinicDB struct{ *backOffice }

func (d clinicDB) WithinTx(ctx context.Context, fn func(clinic.Store) error) error { return fn(d) }

func (b *backOffice) id() int64 {
	b.nextID++
	return b.nextID
}

func (b *backOffice) addPlan(p models.Plan) models.Plan {
	p.ID = b.id()
	p.CreatedAt = time.Now().Add(time.Duration(p.ID) * time.Millisecond)
	b.plans[p.ID] = p
	return p
}

func (b *backOffice) activeDevices(licenseID int64) int {
	n := 0
	for _, d := range b.devices {
		if d.LicenseID == licenseID && d.IsActive {
			n++
		}
	}
	return n
}

func (b *backOffice) withPlan(l models.License) *models.License {
	if p, ok := b.plans[l.PlanID]; ok {
		l.Plan = &models.PlanSummary{ID: p.ID, Name: p.Name, DurationMonths: p.DurationMonths}
	}
	return &l
}

func (b *backOffice) GetLicense(ctx context.Context, id int64) (*models.License, error) {
	l, ok := b.licenses[id]
	if !ok {
		return nil, license.ErrLicenseNotFound
	}
	return b.withPlan(l), nil
}

func (b *backOffice) LockLicense(ctx context.Context, id int64) (*models.License, error) {
	return b.GetLicense(ctx, id)
}

func (b *backOffice) GetLicenseBySerial(ctx context.Context, serial string) (*models.License, error) {
	for _, l := range b.licenses {
		if l.Serial == serial {
			return b.withPlan(l), nil
		}
	}
	return nil, license.ErrLicenseNotFound
}

func (b *backOffice) LockLicenseBySerial(ctx context.Context, serial string) (*models.License, error) {
	return b.GetLicenseBySerial(ctx, serial)
}

func (b *backOffice) GetLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error) {
	for _, l := range b.licenses {
		if l.ClinicID != nil && *l.ClinicID == clinicID {
			return b.withPlan(l), nil
		}
	}
	return nil, license.ErrLicenseNotFound
}

func (b *backOffice) LockLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error) {
	return b.GetLicenseByClinic(ctx, clinicID)
}

func (b *backOffice) ListLicenses(ctx context.Context, f license.ListFilter) ([]models.License, int, error) {
	out := []models.License{}
	for _, l := range b.licenses {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		out = append(out, *b.withPlan(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (b *backOffice) CreateLicense(ctx context.Context, l *models.License) error {
	for _, other := range b.licenses {
		if other.Serial == l.Serial {
			return license.ErrSerialTaken
		}
		if l.ClinicID != nil && other.ClinicID != nil && *other.ClinicID == *l.ClinicID {
			return license.ErrClinicHasLicense
		}
	}
	l.ID = b.id()
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	b.licenses[l.ID] = *l
	return nil
}

func (b *backOffice) UpdateLicense(ctx context.Context, l *models.License) error {
	if _, ok := b.licenses[l.ID]; !ok {
		return license.ErrLicenseNotFound
	}
	l.UpdatedAt = time.Now()
	b.licenses[l.ID] = *l
	return nil
}

func (b *backOffice) DeleteLicense(ctx context.Context, id int64) error {
	if _, ok := b.licenses[id]; !ok {
		return license.ErrLicenseNotFound
	}
	delete(b.licenses, id)
	for did, d := range b.devices {
		if d.LicenseID == id {
			delete(b.devices, did)
		}
	}
	return nil
}

func (b *backOffice) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	n := 0
	for id, l := range b.licenses {
		if l.Status == models.LicenseActive && l.ExpireDate != nil && l.ExpireDate.Before(now) {
			l.Status = models.LicenseExpired
			b.licenses[id] = l
			n++
		}
	}
	return n, nil
}

func (b *backOffice) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	p, ok := b.plans[id]
	if !ok {
		return nil, license.ErrPlanNotFound
	}
	return &p, nil
}

func (b *backOffice) OldestActivePlan(ctx context.Context) (*models.Plan, error) {
	var best *models.Plan
	for _, p := range b.plans {
		if !p.IsActive {
			continue
		}
		if best == nil || p.CreatedAt.Before(best.CreatedAt) {
			cp := p
			best = &cp
		}
	}
	if best == nil {
		return nil, license.ErrPlanNotFound
	}
	return best, nil
}

func (b *backOffice) FindDevice(ctx context.Context, licenseID int64, hardwareID string) (*models.Device, error) {
	for _, d := range b.devices {
		if d.LicenseID == licenseID && d.HardwareID == hardwareID {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (b *backOffice) GetDevice(ctx context.Context, licenseID, deviceID int64) (*models.Device, error) {
	d, ok := b.devices[deviceID]
	if !ok || d.LicenseID != licenseID {
		return nil, license.ErrDeviceNotFound
	}
	return &d, nil
}

func (b *backOffice) CountActiveDevices(ctx context.Context, licenseID int64) (int, error) {
	return b.activeDevices(licenseID), nil
}

func (b *backOffice) ListDevices(ctx context.Context, licenseID int64) ([]models.Device, error) {
	out := []models.Device{}
	for _, d := range b.devices {
		if d.LicenseID == licenseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *backOffice) CreateDevice(ctx context.Context, d *models.Device) error {
	d.ID = b.id()
	d.CreatedAt = time.Now()
	b.devices[d.ID] = *d
	return nil
}

func (b *backOffice) UpdateDevice(ctx context.Context, d *models.Device) error {
	b.devices[d.ID] = *d
	return nil
}

func (b *backOffice) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	t.ID = b.id()
	t.CreatedAt = time.Now()
	b.txns = append(b.txns, *t)
	return nil
}

func (b *backOffice) ListTransactions(ctx context.Context, f license.TransactionFilter) ([]models.Transaction, error) {
	out := []models.Transaction{}
	for _, t := range b.txns {
		if f.LicenseID == nil || *f.LicenseID == t.LicenseID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *backOffice) InsertAudit(ctx context.Context, e models.AuditLog) error {
	e.ID = b.id()
	b.audits = append(b.audits, e)
	return nil
}

func (b *backOffice) CreateClinic(ctx context.Context, c *models.Clinic) error {
	for _, other := range b.clinics {
		switch {
		case other.Email == c.Email:
			return clinic.ErrEmailTaken
		case other.HWID == c.HWID:
			return clinic.ErrHWIDTaken
		}
	}
	c.ID = b.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	b.clinics[c.ID] = *c
	return nil
}

func (b *backOffice) GetClinic(ctx context.Context, id int64) (*models.Clinic, error) {
	c, ok := b.clinics[id]
	if !ok {
		return nil, clinic.ErrClinicNotFound
	}
	return &c, nil
}

func (b *backOffice) LockClinic(ctx context.Context, id int64) (*models.Clinic, error) {
	return b.GetClinic(ctx, id)
}

func (b *backOffice) ListClinics(ctx context.Context, f clinic.ListFilter) ([]models.Clinic, int, error) {
	out := []models.Clinic{}
	for _, c := range b.clinics {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if l, err := b.GetLicenseByClinic(ctx, c.ID); err == nil {
			c.License = l
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (b *backOffice) SetClinicStatus(ctx context.Context, id int64, status models.ClinicStatus) error {
	c, ok := b.clinics[id]
	if !ok {
		return clinic.ErrClinicNotFound
	}
	c.Status = status
	b.clinics[id] = c
	return nil
}

func (b *backOffice) DeleteClinic(ctx context.Context, id int64) error {
	if _, ok := b.clinics[id]; !ok {
		return clinic.ErrClinicNotFound
	}
	delete(b.clinics, id)
	delete(b.controls, id)
	return nil
}

// DeleteClinicSessions drops the sessions of the clinic's users from the
// auth store, so their tokens stop working.
func (b *backOffice) DeleteClinicSessions(ctx context.Context, clinicID int64) (int64, error) {
	var n int64
	for sid, s := range b.auth.sessions {
		u, ok := b.auth.users[s.UserID]
		if ok && u.ClinicID != nil && *u.ClinicID == clinicID {
			delete(b.auth.sessions, sid)
			n++
		}
	}
	return n, nil
}

func (b *backOffice) GetControl(ctx context.Context, clinicID int64, forUpdate bool) (*models.ClinicControl, error) {
	c, ok := b.controls[clinicID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (b *backOffice) InsertDefaultControl(ctx context.Context, c *models.ClinicControl) (*models.ClinicControl, error) {
	if _, ok := b.clinics[c.ClinicID]; !ok {
		return nil, clinic.ErrClinicNotFound
	}
	if _, ok := b.controls[c.ClinicID]; !ok {
		cp := *c
		cp.UpdatedAt = time.Now()
		b.controls[c.ClinicID] = cp
	}
	return b.GetControl(ctx, c.ClinicID, false)
}

func (b *backOffice) UpdateControl(ctx context.Context, c *models.ClinicControl) error {
	if _, ok := b.controls[c.ClinicID]; !ok {
		return clinic.ErrClinicNotFound
	}
	c.UpdatedAt = time.Now()
	b.controls[c.ClinicID] = *c
	return nil
}
