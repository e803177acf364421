package store

import "time"

const (
	ClientLead      = "lead"
	ClientActive    = "active"
	ClientOnHold    = "on_hold"
	ClientCompleted = "completed"
	ClientChurned   = "churned"

	ProjectPlanning  = "planning"
	ProjectActive    = "active"
	ProjectOnHold    = "on_hold"
	ProjectCompleted = "completed"
	ProjectCancelled = "cancelled"

	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"

	BillingHourly   = "hourly"
	BillingFixed    = "fixed"
	BillingRetainer = "retainer"
)

type Client struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null;index" json:"name"`
	Status        string    `gorm:"not null;index" json:"status"`
	Industry      string    `json:"industry"`
	CompanySize   string    `json:"company_size"`
	Website       string    `json:"website"`
	ContactName   string    `json:"contact_name"`
	ContactEmail  string    `json:"contact_email"`
	ContactPhone  string    `json:"contact_phone"`
	City          string    `json:"city"`
	Country       string    `json:"country"`
	AnnualRevenue float64   `json:"annual_revenue"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

type Consultant struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"not null;index" json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Expertise  string     `json:"expertise"`
	Seniority  string     `json:"seniority"`
	HourlyRate float64    `json:"hourly_rate"`
	Bio        string     `json:"bio"`
	IsActive   bool       `gorm:"not null" json:"is_active"`
	DateJoined *time.Time `json:"date_joined"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Consultant) TableName() string { return "consultants" }

type Project struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"not null" json:"name"`
	ClientID         uint       `gorm:"not null;index" json:"client_id"`
	Status           string     `gorm:"not null;index" json:"status"`
	Priority         string     `json:"priority"`
	Description      string     `json:"description"`
	LeadConsultantID *uint      `json:"lead_consultant_id"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
	Deadline         *time.Time `json:"deadline"`
	BillingType      string     `json:"billing_type"`
	Budget           float64    `json:"budget"`
	HourlyRate       float64    `json:"hourly_rate"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

type Invoice struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	InvoiceNumber string     `gorm:"not null;uniqueIndex" json:"invoice_number"`
	ClientID      uint       `gorm:"not null;index" json:"client_id"`
	ProjectID     *uint      `gorm:"index" json:"project_id"`
	Status        string     `gorm:"not null;index" json:"status"`
	IssueDate     time.Time  `json:"issue_date"`
	DueDate       *time.Time `json:"due_date"`
	PaidDate      *time.Time `json:"paid_date"`
	Subtotal      float64    `json:"subtotal"`
	TaxRate       float64    `json:"tax_rate"`
	TaxAmount     float64    `json:"tax_amount"`
	TotalAmount   float64    `json:"total_amount"`
	Notes         string     `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (Invoice) TableName() string { return "invoices" }

type TimeEntry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProjectID    uint      `gorm:"not null;index" json:"project_id"`
	ConsultantID uint      `gorm:"not null;index" json:"consultant_id"`
	Date         time.Time `gorm:"not null;index" json:"date"`
	Hours        float64   `gorm:"not null" json:"hours"`
	Description  string    `json:"description"`
	IsBillable   bool      `gorm:"not null" json:"is_billable"`
	CreatedAt    time.Time `json:"created_at"`
}

func (TimeEntry) TableName() string { return "time_entries" }

type KPI struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ClientID      uint       `gorm:"not null;index" json:"client_id"`
	ProjectID     *uint      `json:"project_id"`
	Category      string     `json:"category"`
	Name          string     `gorm:"not null" json:"name"`
	Description   string     `json:"description"`
	BaselineValue float64    `json:"baseline_value"`
	TargetValue   float64    `json:"target_value"`
	CurrentValue  float64    `json:"current_value"`
	Unit          string     `json:"unit"`
	MeasuredAt    *time.Time `json:"measured_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (KPI) TableName() string { return "kpis" }
