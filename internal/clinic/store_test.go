package clinic

import (
	"context"
	"sync"

	"github.com/licensehub/internal/license"
	"github.com/licensehub/pkg/models"
)

// memStore is an in-memory Store. WithinTx holds the mutex for the whole
// callback and rolls back to a snapshot on error.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	clinics  map[int64]models.Clinic
	plans    map[int64]models.Plan
	licenses map[int64]models.License
	controls map[int64]models.ClinicControl
	sessions map[int64]int64 // clinic id -> live sessions
	txns     []models.Transaction
	audits   []models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		clinics:  map[int64]models.Clinic{},
		plans:    map[int64]models.Plan{},
		licenses: map[int64]models.License{},
		controls: map[int64]models.ClinicControl{},
		sessions: map[int64]int64{},
	}
}

type memTx struct{ *memStore }

func (t memTx) WithinTx(ctx context.Context, fn func(Store) error) error { return fn(t) }

func (m *memStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.clone()
	if err := fn(memTx{m}); err != nil {
		m.nextID, m.clinics, m.licenses, m.controls = snap.nextID, snap.clinics, snap.licenses, snap.controls
		m.sessions, m.txns, m.audits = snap.sessions, snap.txns, snap.audits
		return err
	}
	return nil
}

func (m *memStore) clone() *memStore {
	c := &memStore{
		nextID:   m.nextID,
		clinics:  make(map[int64]models.Clinic, len(m.clinics)),
		licenses: make(map[int64]models.License, len(m.licenses)),
		controls: make(map[int64]models.ClinicControl, len(m.controls)),
		sessions: make(map[int64]int64, len(m.sessions)),
		txns:     append([]models.Transaction(nil), m.txns...),
		audits:   append([]models.AuditLog(nil), m.audits...),
	}
	for k, v := range m.clinics {
		c.clinics[k] = v
	}
	for k, v := range m.licenses {
		c.licenses[k] = v
	}
	for k, v := range m.controls {
		c.controls[k] = v
	}
	for k, v := range m.sessions {
		c.sessions[k] = v
	}
	return c
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addPlan(p models.Plan) models.Plan {
	p.ID = m.id()
	m.plans[p.ID] = p
	return p
}

func (m *memStore) licenseOf(clinicID int64) *models.License {
	for _, l := range m.licenses {
		if l.ClinicID != nil && *l.ClinicID == clinicID {
			return &l
		}
	}
	return nil
}

func (m *memStore) auditActions() []string {
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

func (m *memStore) CreateClinic(ctx context.Context, c *models.Clinic) error {
	for _, o := range m.clinics {
		if o.Email == c.Email {
			return ErrEmailTaken
		}
		if o.HWID == c.HWID {
			return ErrHWIDTaken
		}
	}
	c.ID = m.id()
	m.clinics[c.ID] = *c
	return nil
}

func (m *memStore) GetClinic(ctx context.Context, id int64) (*models.Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (m *memStore) LockClinic(ctx context.Context, id int64) (*models.Clinic, error) {
	return m.GetClinic(ctx, id)
}

func (m *memStore) ListClinics(ctx context.Context, f ListFilter) ([]models.Clinic, int, error) {
	out := []models.Clinic{}
	for _, c := range m.clinics {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		c.License = m.licenseOf(c.ID)
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memStore) SetClinicStatus(ctx context.Context, id int64, status models.ClinicStatus) error {
	c, ok := m.clinics[id]
	if !ok {
		return ErrClinicNotFound
	}
	c.Status = status
	m.clinics[id] = c
	return nil
}

func (m *memStore) DeleteClinic(ctx context.Context, id int64) error {
	if _, ok := m.clinics[id]; !ok {
		return ErrClinicNotFound
	}
	delete(m.clinics, id)
	delete(m.controls, id)
	return nil
}

func (m *memStore) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, license.ErrPlanNotFound
	}
	return &p, nil
}

func (m *memStore) OldestActivePlan(ctx context.Context) (*models.Plan, error) {
	var best *models.Plan
	for _, p := range m.plans {
		if !p.IsActive {
			continue
		}
		if best == nil || p.ID < best.ID {
			p := p
			best = &p
		}
	}
	if best == nil {
		return nil, license.ErrPlanNotFound
	}
	return best, nil
}

func (m *memStore) CreateLicense(ctx context.Context, l *models.License) error {
	for _, o := range m.licenses {
		if o.Serial == l.Serial {
			return license.ErrSerialTaken
		}
		if l.ClinicID != nil && o.ClinicID != nil && *o.ClinicID == *l.ClinicID {
			return license.ErrClinicHasLicense
		}
	}
	l.ID = m.id()
	m.licenses[l.ID] = *l
	return nil
}

func (m *memStore) GetLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error) {
	if l := m.licenseOf(clinicID); l != nil {
		return l, nil
	}
	return nil, license.ErrLicenseNotFound
}

func (m *memStore) LockLicenseByClinic(ctx context.Context, clinicID int64) (*models.License, error) {
	return m.GetLicenseByClinic(ctx, clinicID)
}

func (m *memStore) UpdateLicense(ctx context.Context, l *models.License) error {
	if _, ok := m.licenses[l.ID]; !ok {
		return license.ErrLicenseNotFound
	}
	m.licenses[l.ID] = *l
	return nil
}

func (m *memStore) DeleteLicense(ctx context.Context, id int64) error {
	if _, ok := m.licenses[id]; !ok {
		return license.ErrLicenseNotFound
	}
	delete(m.licenses, id)
	return nil
}

func (m *memStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	t.ID = m.id()
	m.txns = append(m.txns, *t)
	return nil
}

func (m *memStore) DeleteClinicSessions(ctx context.Context, clinicID int64) (int64, error) {
	n := m.sessions[clinicID]
	delete(m.sessions, clinicID)
	return n, nil
}

func (m *memStore) GetControl(ctx context.Context, clinicID int64, forUpdate bool) (*models.ClinicControl, error) {
	c, ok := m.controls[clinicID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) InsertDefaultControl(ctx context.Context, c *models.ClinicControl) (*models.ClinicControl, error) {
	if _, ok := m.clinics[c.ClinicID]; !ok {
		return nil, ErrClinicNotFound
	}
	if _, ok := m.controls[c.ClinicID]; !ok {
		m.controls[c.ClinicID] = *c
	}
	return m.GetControl(ctx, c.ClinicID, false)
}

func (m *memStore) UpdateControl(ctx context.Context, c *models.ClinicControl) error {
	if _, ok := m.controls[c.ClinicID]; !ok {
		return ErrClinicNotFound
	}
	m.controls[c.ClinicID] = *c
	return nil
}

func (m *memStore) InsertAudit(ctx context.Context, e models.AuditLog) error {
	m.audits = append(m.audits, e)
	return nil
}
