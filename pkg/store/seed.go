package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Seed loads a small demo dataset relative to now. It is a no-op when any
// client already exists, so it is safe to call on every start.
func (s *Store) Seed(ctx context.Context, now time.Time) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Client{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("store: counting clients: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	now = now.UTC().Truncate(24 * time.Hour)
	day := func(offset int) *time.Time {
		t := now.AddDate(0, 0, offset)
		return &t
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clients := []Client{
			{Name: "Acme Manufacturing", Status: ClientActive, Industry: "Manufacturing", CompanySize: "enterprise", ContactName: "Dana Ortiz", ContactEmail: "dana@acme.example", City: "Chicago", Country: "US", AnnualRevenue: 12_000_000},
			{Name: "Brightline Health", Status: ClientActive, Industry: "Healthcare", CompanySize: "mid-market", ContactName: "Sam Lee", ContactEmail: "sam@brightline.example", City: "Boston", Country: "US", AnnualRevenue: 4_500_000},
			{Name: "Cobalt Retail", Status: ClientOnHold, Industry: "Retail", CompanySize: "smb", ContactName: "Ira Novak", ContactEmail: "ira@cobalt.example", City: "Austin", Country: "US", AnnualRevenue: 900_000},
			{Name: "Delta Logistics", Status: ClientLead, Industry: "Logistics", CompanySize: "mid-market", ContactName: "Priya Shah", ContactEmail: "priya@delta.example", City: "Denver", Country: "US", AnnualRevenue: 2_100_000},
		}
		if err := tx.Create(&clients).Error; err != nil {
			return err
		}

		consultants := []Consultant{
			{Name: "Alex Rivera", Email: "alex@consultpro.example", Expertise: "Strategy, Operations", Seniority: "principal", HourlyRate: 250, IsActive: true, DateJoined: day(-900)},
			{Name: "Blair Chen", Email: "blair@consultpro.example", Expertise: "Data Analytics, Cloud", Seniority: "senior", HourlyRate: 180, IsActive: true, DateJoined: day(-500)},
			{Name: "Casey Morgan", Email: "casey@consultpro.example", Expertise: "Change Management", Seniority: "mid", HourlyRate: 140, IsActive: true, DateJoined: day(-200)},
			{Name: "Drew Patel", Email: "drew@consultpro.example", Expertise: "Finance, Operations", Seniority: "junior", HourlyRate: 95, IsActive: false, DateJoined: day(-700)},
		}
		if err := tx.Create(&consultants).Error; err != nil {
			return err
		}

		lead := func(i int) *uint { return &consultants[i].ID }
		projects := []Project{
			{Name: "Plant Efficiency Review", ClientID: clients[0].ID, Status: ProjectActive, Priority: "high", Description: "Operational audit of two plants", LeadConsultantID: lead(0), StartDate: day(-60), Deadline: day(20), BillingType: BillingHourly, Budget: 120_000, HourlyRate: 220},
			{Name: "Patient Data Platform", ClientID: clients[1].ID, Status: ProjectActive, Priority: "medium", Description: "Analytics platform migration", LeadConsultantID: lead(1), StartDate: day(-45), Deadline: day(-5), BillingType: BillingFixed, Budget: 80_000},
			{Name: "Store Rollout Advisory", ClientID: clients[2].ID, Status: ProjectOnHold, Priority: "low", Description: "Retail expansion advisory", LeadConsultantID: lead(2), StartDate: day(-120), Deadline: day(60), BillingType: BillingRetainer, Budget: 30_000},
			{Name: "Supply Chain Diagnostic", ClientID: clients[0].ID, Status: ProjectCompleted, Priority: "medium", Description: "Completed diagnostic engagement", LeadConsultantID: lead(0), StartDate: day(-300), EndDate: day(-200), BillingType: BillingFixed, Budget: 45_000},
		}
		if err := tx.Create(&projects).Error; err != nil {
			return err
		}

		pid := func(i int) *uint { return &projects[i].ID }
		invoices := []Invoice{
			{InvoiceNumber: "INV-1001", ClientID: clients[0].ID, ProjectID: pid(3), Status: InvoicePaid, IssueDate: *day(-210), DueDate: day(-180), PaidDate: day(-185), Subtotal: 45_000, TaxAmount: 0, TotalAmount: 45_000},
			{InvoiceNumber: "INV-1002", ClientID: clients[0].ID, ProjectID: pid(0), Status: InvoicePaid, IssueDate: *day(-40), DueDate: day(-10), PaidDate: day(-12), Subtotal: 30_000, TaxAmount: 2_400, TotalAmount: 32_400},
			{InvoiceNumber: "INV-1003", ClientID: clients[1].ID, ProjectID: pid(1), Status: InvoiceSent, IssueDate: *day(-15), DueDate: day(15), Subtotal: 40_000, TaxAmount: 0, TotalAmount: 40_000},
			{InvoiceNumber: "INV-1004", ClientID: clients[2].ID, ProjectID: pid(2), Status: InvoiceOverdue, IssueDate: *day(-75), DueDate: day(-45), Subtotal: 7_500, TaxAmount: 600, TotalAmount: 8_100},
			{InvoiceNumber: "INV-1005", ClientID: clients[2].ID, ProjectID: pid(2), Status: InvoiceCancelled, IssueDate: *day(-100), Subtotal: 5_000, TotalAmount: 5_000},
		}
		if err := tx.Create(&invoices).Error; err != nil {
			return err
		}

		var entries []TimeEntry
		for i := 1; i <= 20; i++ {
			entries = append(entries,
				TimeEntry{ProjectID: projects[0].ID, ConsultantID: consultants[0].ID, Date: *day(-i), Hours: 6, Description: "Plant walkthrough and analysis", IsBillable: true},
				TimeEntry{ProjectID: projects[1].ID, ConsultantID: consultants[1].ID, Date: *day(-i), Hours: 8, Description: "Pipeline build-out", IsBillable: true},
			)
			if i%4 == 0 {
				entries = append(entries, TimeEntry{ProjectID: projects[2].ID, ConsultantID: consultants[2].ID, Date: *day(-i), Hours: 3, Description: "Advisory call prep", IsBillable: true})
			}
		}
		entries = append(entries, TimeEntry{ProjectID: projects[3].ID, ConsultantID: consultants[3].ID, Date: *day(-220), Hours: 40, Description: "Diagnostic fieldwork", IsBillable: true})
		if err := tx.Create(&entries).Error; err != nil {
			return err
		}

		kpis := []KPI{
			{ClientID: clients[0].ID, ProjectID: pid(0), Category: "operations", Name: "Line downtime", BaselineValue: 12, TargetValue: 6, CurrentValue: 9, Unit: "%"},
			{ClientID: clients[0].ID, Category: "financial", Name: "Cost per unit", BaselineValue: 41, TargetValue: 35, CurrentValue: 38, Unit: "USD"},
			{ClientID: clients[1].ID, ProjectID: pid(1), Category: "technology", Name: "Report latency", BaselineValue: 48, TargetValue: 4, CurrentValue: 30, Unit: "hours"},
		}
		return tx.Create(&kpis).Error
	})
	if err != nil {
		return false, fmt.Errorf("store: seeding: %w", err)
	}
	return true, nil
}
