package store

import (
	"context"
	"time"
)

type ClientFilter struct {
	Status string
}

type ProjectFilter struct {
	Status   string
	ClientID uint
}

type ConsultantFilter struct {
	Active *bool
}

type InvoiceFilter struct {
	ClientID  uint
	ProjectID uint
	Statuses  []string
}

type TimeEntryFilter struct {
	ProjectID    uint
	ConsultantID uint
	Since        time.Time
}

type KPIFilter struct {
	ClientID uint
}

func (s *Store) ListClients(ctx context.Context, f ClientFilter) ([]Client, error) {
	q := s.db.WithContext(ctx)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	clients := []Client{}
	err := q.Order("name").Find(&clients).Error
	return clients, err
}

func (s *Store) GetClient(ctx context.Context, id uint) (*Client, error) {
	var c Client
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ClientNames maps client ids to names for the given ids; unknown ids are
// simply absent from the result.
func (s *Store) ClientNames(ctx context.Context, ids []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var rows []Client
	if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, c := range rows {
		names[c.ID] = c.Name
	}
	return names, nil
}

func (s *Store) ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error) {
	q := s.db.WithContext(ctx)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ClientID != 0 {
		q = q.Where("client_id = ?", f.ClientID)
	}
	projects := []Project{}
	err := q.Order("created_at DESC").Order("id DESC").Find(&projects).Error
	return projects, err
}

func (s *Store) GetProject(ctx context.Context, id uint) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) ListConsultants(ctx context.Context, f ConsultantFilter) ([]Consultant, error) {
	q := s.db.WithContext(ctx)
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	consultants := []Consultant{}
	err := q.Order("name").Find(&consultants).Error
	return consultants, err
}

func (s *Store) ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error) {
	q := s.db.WithContext(ctx)
	if f.ClientID != 0 {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.ProjectID != 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	invoices := []Invoice{}
	err := q.Order("issue_date DESC").Find(&invoices).Error
	return invoices, err
}

func (s *Store) ListTimeEntries(ctx context.Context, f TimeEntryFilter) ([]TimeEntry, error) {
	q := s.db.WithContext(ctx)
	if f.ProjectID != 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.ConsultantID != 0 {
		q = q.Where("consultant_id = ?", f.ConsultantID)
	}
	if !f.Since.IsZero() {
		q = q.Where("date >= ?", f.Since.UTC())
	}
	entries := []TimeEntry{}
	err := q.Order("date DESC").Find(&entries).Error
	return entries, err
}

func (s *Store) ListKPIs(ctx context.Context, f KPIFilter) ([]KPI, error) {
	q := s.db.WithContext(ctx)
	if f.ClientID != 0 {
		q = q.Where("client_id = ?", f.ClientID)
	}
	kpis := []KPI{}
	err := q.Order("category").Order("name").Find(&kpis).Error
	return kpis, err
}

type ClientHit struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Industry string `json:"industry"`
}

type ProjectHit struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type ConsultantHit struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Expertise string `json:"expertise"`
	Seniority string `json:"seniority"`
}

type SearchResults struct {
	Clients     []ClientHit     `json:"clients"`
	Projects    []ProjectHit    `json:"projects"`
	Consultants []ConsultantHit `json:"consultants"`
}

// Search matches term as a case-insensitive substring against client,
// project and consultant text columns.
func (s *Store) Search(ctx context.Context, term string) (*SearchResults, error) {
	like := "%" + term + "%"
	res := &SearchResults{
		Clients:     []ClientHit{},
		Projects:    []ProjectHit{},
		Consultants: []ConsultantHit{},
	}
	db := s.db.WithContext(ctx)

	if err := db.Model(&Client{}).
		Select("id", "name", "status", "industry").
		Where("name LIKE ? OR contact_name LIKE ?", like, like).
		Order("name").
		Scan(&res.Clients).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Project{}).
		Select("id", "name", "status").
		Where("name LIKE ? OR description LIKE ?", like, like).
		Order("name").
		Scan(&res.Projects).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Consultant{}).
		Select("id", "name", "expertise", "seniority").
		Where("name LIKE ? OR expertise LIKE ?", like, like).
		Order("name").
		Scan(&res.Consultants).Error; err != nil {
		return nil, err
	}
	return res, nil
}
