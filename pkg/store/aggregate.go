package store

import (
	"context"
	"math"
	"sort"
	"time"
)

const (
	// StandardMonthlyHours is the capacity a full-time consultant is
	// measured against.
	StandardMonthlyHours = 160.0
	UtilizationWindow    = 30 * 24 * time.Hour
)

type ConsultantLoad struct {
	Consultant
	MonthlyHours float64 `json:"monthly_hours"`
	Utilization  float64 `json:"utilization"`
}

// ConsultantLoads returns consultants (sorted by name) with the hours they
// logged in the utilization window ending at now.
func (s *Store) ConsultantLoads(ctx context.Context, f ConsultantFilter, now time.Time) ([]ConsultantLoad, error) {
	consultants, err := s.ListConsultants(ctx, f)
	if err != nil {
		return nil, err
	}
	entries, err := s.ListTimeEntries(ctx, TimeEntryFilter{Since: now.Add(-UtilizationWindow)})
	if err != nil {
		return nil, err
	}

	hours := make(map[uint]float64)
	for _, e := range entries {
		hours[e.ConsultantID] += e.Hours
	}

	loads := make([]ConsultantLoad, 0, len(consultants))
	for _, c := range consultants {
		h := hours[c.ID]
		loads = append(loads, ConsultantLoad{
			Consultant:   c,
			MonthlyHours: h,
			Utilization:  Utilization(h),
		})
	}
	return loads, nil
}

// Utilization converts hours logged in a window into a percentage of
// StandardMonthlyHours, rounded to one decimal.
func Utilization(hours float64) float64 {
	return math.Round(hours/StandardMonthlyHours*100*10) / 10
}

type MonthlyRevenue struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
}

type FinancialSummary struct {
	TotalRevenue      float64          `json:"total_revenue"`
	OutstandingAmount float64          `json:"outstanding_amount"`
	MonthlyRevenue    []MonthlyRevenue `json:"monthly_revenue"`
}

// FinancialSummary totals paid revenue and open receivables, and buckets paid
// invoices into the twelve most recent months that saw payments.
func (s *Store) FinancialSummary(ctx context.Context) (*FinancialSummary, error) {
	invoices, err := s.ListInvoices(ctx, InvoiceFilter{
		Statuses: []string{InvoicePaid, InvoiceSent, InvoiceOverdue},
	})
	if err != nil {
		return nil, err
	}

	sum := &FinancialSummary{MonthlyRevenue: []MonthlyRevenue{}}
	byMonth := make(map[string]float64)
	for _, inv := range invoices {
		switch inv.Status {
		case InvoicePaid:
			sum.TotalRevenue += inv.TotalAmount
			if inv.PaidDate != nil {
				byMonth[inv.PaidDate.UTC().Format("2006-01")] += inv.TotalAmount
			}
		case InvoiceSent, InvoiceOverdue:
			sum.OutstandingAmount += inv.TotalAmount
		}
	}

	for month, revenue := range byMonth {
		sum.MonthlyRevenue = append(sum.MonthlyRevenue, MonthlyRevenue{Month: month, Revenue: revenue})
	}
	sort.Slice(sum.MonthlyRevenue, func(i, j int) bool {
		return sum.MonthlyRevenue[i].Month > sum.MonthlyRevenue[j].Month
	})
	if len(sum.MonthlyRevenue) > 12 {
		sum.MonthlyRevenue = sum.MonthlyRevenue[:12]
	}
	return sum, nil
}
