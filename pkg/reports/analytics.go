package reports

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/consultpro/agents/pkg/skills"
	"github.com/consultpro/agents/pkg/store"
	"golang.org/x/sync/errgroup"
)

const (
	// fallbackRate prices logged hours when neither the project nor its lead
	// carries a rate.
	fallbackRate = 200.0
	riskHorizon  = 14 * 24 * time.Hour
)

type tally struct {
	amount float64
	count  int
}

func (t *tally) total() float64 {
	if t == nil {
		return 0
	}
	return t.amount
}

type AnalyticsAgent struct {
	src Source
	now func() time.Time
}

func NewAnalytics(src Source) *AnalyticsAgent {
	return &AnalyticsAgent{src: src, now: time.Now}
}

func (a *AnalyticsAgent) Capability() skills.Capability { return skills.Analytics }

func (a *AnalyticsAgent) Report(ctx context.Context, text string) (string, error) {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "revenue", "invoice", "billing", "financial", "money", "income", "payment"):
		return a.revenue(ctx)
	case containsAny(lower, "project", "health", "risk", "deadline", "budget", "overdue", "status"):
		return a.projectHealth(ctx)
	case containsAny(lower, "consultant", "performance", "utilization", "team", "staff", "hours"):
		return a.consultantPerformance(ctx)
	case containsAny(lower, "client", "customer", "satisfaction", "portfolio"):
		return a.clientPortfolio(ctx)
	}
	return a.overview(ctx)
}

// overview reads the three standard sections concurrently and joins them in
// a fixed order.
func (a *AnalyticsAgent) overview(ctx context.Context) (string, error) {
	var revenue, projects, consultants string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		revenue, err = a.revenue(gctx)
		return err
	})
	g.Go(func() (err error) {
		projects, err = a.projectHealth(gctx)
		return err
	})
	g.Go(func() (err error) {
		consultants, err = a.consultantPerformance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	return "## Comprehensive Business Analytics\n\n" + revenue + sectionBreak + projects + sectionBreak + consultants, nil
}

func (a *AnalyticsAgent) revenue(ctx context.Context) (string, error) {
	invoices, err := a.src.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading invoices: %w", err)
	}
	clients, err := a.src.ListClients(ctx, store.ClientFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading clients: %w", err)
	}
	projects, err := a.src.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading projects: %w", err)
	}

	billingOf := make(map[uint]string, len(projects))
	for _, p := range projects {
		billingOf[p.ID] = p.BillingType
	}

	var invoiced, paid, outstanding, overdue float64
	var count int
	byClient := make(map[uint]*tally)
	byMonth := make(map[string]*tally)
	byBilling := make(map[string]float64)
	billingProjects := make(map[string]map[uint]bool)

	for _, inv := range invoices {
		if inv.Status == store.InvoiceCancelled {
			continue
		}
		count++
		invoiced += inv.TotalAmount
		switch inv.Status {
		case store.InvoicePaid:
			paid += inv.TotalAmount
		case store.InvoiceSent:
			outstanding += inv.TotalAmount
		case store.InvoiceOverdue:
			outstanding += inv.TotalAmount
			overdue += inv.TotalAmount
		}

		ct := byClient[inv.ClientID]
		if ct == nil {
			ct = &tally{}
			byClient[inv.ClientID] = ct
		}
		ct.amount += inv.TotalAmount
		ct.count++

		if inv.Status == store.InvoicePaid || inv.Status == store.InvoiceSent || inv.Status == store.InvoiceOverdue {
			month := inv.IssueDate.UTC().Format("2006-01")
			mt := byMonth[month]
			if mt == nil {
				mt = &tally{}
				byMonth[month] = mt
			}
			mt.amount += inv.TotalAmount
			mt.count++
		}

		if inv.ProjectID != nil {
			if bt, ok := billingOf[*inv.ProjectID]; ok && bt != "" {
				byBilling[bt] += inv.TotalAmount
				if billingProjects[bt] == nil {
					billingProjects[bt] = make(map[uint]bool)
				}
				billingProjects[bt][*inv.ProjectID] = true
			}
		}
	}

	var b strings.Builder
	b.WriteString("## Revenue Analysis\n\n")
	b.WriteString("### Overview\n")
	fmt.Fprintf(&b, "- **Total Invoiced:** %s\n", money(invoiced))
	fmt.Fprintf(&b, "- **Collected (Paid):** %s\n", money(paid))
	fmt.Fprintf(&b, "- **Outstanding:** %s\n", money(outstanding))
	fmt.Fprintf(&b, "- **Overdue:** %s\n", money(overdue))
	fmt.Fprintf(&b, "- **Total Invoices:** %d\n\n", count)

	sortedClients := make([]store.Client, len(clients))
	copy(sortedClients, clients)
	sort.SliceStable(sortedClients, func(i, j int) bool {
		return byClient[sortedClients[i].ID].total() > byClient[sortedClients[j].ID].total()
	})
	b.WriteString("### Revenue by Client\n")
	for _, c := range sortedClients {
		t := byClient[c.ID]
		if t == nil || t.amount <= 0 {
			continue
		}
		fmt.Fprintf(&b, "- **%s:** %s (%s)\n", c.Name, money(t.amount), plural(t.count, "invoice"))
	}
	b.WriteString("\n")

	if len(byMonth) > 0 {
		months := make([]string, 0, len(byMonth))
		for m := range byMonth {
			months = append(months, m)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(months)))
		if len(months) > 6 {
			months = months[:6]
		}
		b.WriteString("### Monthly Revenue Trend\n")
		for _, m := range months {
			fmt.Fprintf(&b, "- **%s:** %s (%s)\n", m, money(byMonth[m].amount), plural(byMonth[m].count, "invoice"))
		}
		b.WriteString("\n")
	}

	if len(byBilling) > 0 {
		types := make([]string, 0, len(byBilling))
		for bt := range byBilling {
			types = append(types, bt)
		}
		sort.Slice(types, func(i, j int) bool { return byBilling[types[i]] > byBilling[types[j]] })
		b.WriteString("### Revenue by Billing Type\n")
		for _, bt := range types {
			fmt.Fprintf(&b, "- **%s:** %s across %s\n", bt, money(byBilling[bt]), plural(len(billingProjects[bt]), "project"))
		}
	}

	return b.String(), nil
}


// projectLedger holds per-project hours and their priced cost.
type projectLedger struct {
	hours map[uint]float64
	spent map[uint]float64
}

func (a *AnalyticsAgent) ledger(ctx context.Context, projects []store.Project) (*projectLedger, map[uint]store.Consultant, error) {
	entries, err := a.src.ListTimeEntries(ctx, store.TimeEntryFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("reports: loading time entries: %w", err)
	}
	consultants, err := a.src.ListConsultants(ctx, store.ConsultantFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("reports: loading consultants: %w", err)
	}
	byID := make(map[uint]store.Consultant, len(consultants))
	for _, c := range consultants {
		byID[c.ID] = c
	}
	return buildLedger(projects, entries, byID), byID, nil
}

func buildLedger(projects []store.Project, entries []store.TimeEntry, consultants map[uint]store.Consultant) *projectLedger {
	rates := make(map[uint]float64, len(projects))
	for _, p := range projects {
		rate := p.HourlyRate
		if rate == 0 && p.LeadConsultantID != nil {
			rate = consultants[*p.LeadConsultantID].HourlyRate
		}
		if rate == 0 {
			rate = fallbackRate
		}
		rates[p.ID] = rate
	}

	l := &projectLedger{hours: make(map[uint]float64), spent: make(map[uint]float64)}
	for _, e := range entries {
		l.hours[e.ProjectID] += e.Hours
		l.spent[e.ProjectID] += e.Hours * rates[e.ProjectID]
	}
	return l
}

func leadName(p store.Project, consultants map[uint]store.Consultant) string {
	if p.LeadConsultantID == nil {
		return "Unassigned"
	}
	c, ok := consultants[*p.LeadConsultantID]
	if !ok {
		return "Unassigned"
	}
	return c.Name
}

func (a *AnalyticsAgent) projectHealth(ctx context.Context) (string, error) {
	projects, err := a.src.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading projects: %w", err)
	}
	ledger, consultants, err := a.ledger(ctx, projects)
	if err != nil {
		return "", err
	}
	clientNames, err := clientNameMap(ctx, a.src)
	if err != nil {
		return "", err
	}

	counts := make(map[string]int)
	for _, p := range projects {
		counts[p.Status]++
	}

	now := a.now()
	var atRisk, budgeted []store.Project
	for _, p := range projects {
		if p.Status != store.ProjectActive {
			continue
		}
		if p.Deadline != nil && p.Deadline.Before(now.Add(riskHorizon)) {
			atRisk = append(atRisk, p)
		}
		if p.Budget > 0 {
			budgeted = append(budgeted, p)
		}
	}
	sort.SliceStable(atRisk, func(i, j int) bool { return atRisk[i].Deadline.Before(*atRisk[j].Deadline) })

	budgetPct := func(p store.Project) float64 {
		return math.Round(ledger.spent[p.ID]/p.Budget*100*10) / 10
	}
	sort.SliceStable(budgeted, func(i, j int) bool { return budgetPct(budgeted[i]) > budgetPct(budgeted[j]) })

	var b strings.Builder
	b.WriteString("## Project Health Analysis\n\n")
	b.WriteString("### Project Portfolio Overview\n")
	fmt.Fprintf(&b, "- **Total Projects:** %d\n", len(projects))
	fmt.Fprintf(&b, "- **Active:** %d\n", counts[store.ProjectActive])
	fmt.Fprintf(&b, "- **Planning:** %d\n", counts[store.ProjectPlanning])
	fmt.Fprintf(&b, "- **Completed:** %d\n", counts[store.ProjectCompleted])
	fmt.Fprintf(&b, "- **On Hold:** %d\n", counts[store.ProjectOnHold])
	fmt.Fprintf(&b, "- **Cancelled:** %d\n\n", counts[store.ProjectCancelled])

	if len(atRisk) > 0 {
		b.WriteString("### Projects at Risk\n")
		b.WriteString("_Projects past deadline or due within 14 days:_\n\n")
		for _, p := range atRisk {
			marker := "-- approaching"
			if p.Deadline.Before(now) {
				marker = "-- OVERDUE"
			}
			fmt.Fprintf(&b, "- **%s** (%s)\n", p.Name, clientNames[p.ClientID])
			fmt.Fprintf(&b, "  - Deadline: %s %s\n", formatDate(p.Deadline), marker)
			fmt.Fprintf(&b, "  - Lead: %s\n", leadName(p, consultants))
			fmt.Fprintf(&b, "  - Budget: %s | Spent: %s\n", money(p.Budget), money(ledger.spent[p.ID]))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("### Projects at Risk\nNo projects currently at risk. All deadlines are more than 14 days out.\n\n")
	}

	if len(budgeted) > 0 {
		b.WriteString("### Budget Utilization\n")
		for _, p := range budgeted {
			pct := budgetPct(p)
			label := "OK"
			switch {
			case pct > 90:
				label = "CRITICAL"
			case pct > 70:
				label = "WARNING"
			}
			fmt.Fprintf(&b, "- **%s** (%s): %.1f%% of %s budget used (%.1fh logged) [%s]\n",
				p.Name, clientNames[p.ClientID], pct, money(p.Budget), ledger.hours[p.ID], label)
		}
	}

	return b.String(), nil
}

func (a *AnalyticsAgent) consultantPerformance(ctx context.Context) (string, error) {
	active := true
	consultants, err := a.src.ListConsultants(ctx, store.ConsultantFilter{Active: &active})
	if err != nil {
		return "", fmt.Errorf("reports: loading consultants: %w", err)
	}
	entries, err := a.src.ListTimeEntries(ctx, store.TimeEntryFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading time entries: %w", err)
	}

	type perf struct {
		store.Consultant
		total, billable, recent float64
		projects                map[uint]bool
	}
	since := a.now().Add(-store.UtilizationWindow)
	byID := make(map[uint]*perf, len(consultants))
	rows := make([]*perf, 0, len(consultants))
	for _, c := range consultants {
		p := &perf{Consultant: c, projects: make(map[uint]bool)}
		byID[c.ID] = p
		rows = append(rows, p)
	}
	for _, e := range entries {
		p, ok := byID[e.ConsultantID]
		if !ok {
			continue
		}
		p.total += e.Hours
		if e.IsBillable {
			p.billable += e.Hours
		}
		if !e.Date.Before(since) {
			p.recent += e.Hours
		}
		p.projects[e.ProjectID] = true
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].total > rows[j].total })

	var b strings.Builder
	b.WriteString("## Consultant Performance Analysis\n\n")
	b.WriteString("### Utilization Summary\n")
	for _, p := range rows {
		billableRate := 0.0
		if p.total > 0 {
			billableRate = p.billable / p.total * 100
		}
		fmt.Fprintf(&b, "- **%s** (%s %s) - %s/hr\n", p.Name, p.Seniority, p.Expertise, money(p.HourlyRate))
		fmt.Fprintf(&b, "  - Total Hours: %.1f | Billable: %.1f (%.1f%%)\n", p.total, p.billable, billableRate)
		fmt.Fprintf(&b, "  - Last 30 Days: %.1fh (%.1f%% utilization) | Projects: %d\n", p.recent, store.Utilization(p.recent), len(p.projects))
	}
	b.WriteString("\n")

	potential := make([]*perf, len(rows))
	copy(potential, rows)
	sort.SliceStable(potential, func(i, j int) bool {
		return potential[i].billable*potential[i].HourlyRate > potential[j].billable*potential[j].HourlyRate
	})
	b.WriteString("### Revenue Potential by Consultant\n")
	for _, p := range potential {
		fmt.Fprintf(&b, "- **%s:** %s (%.1fh billed)\n", p.Name, money(p.billable*p.HourlyRate), p.billable)
	}

	return b.String(), nil
}

func (a *AnalyticsAgent) clientPortfolio(ctx context.Context) (string, error) {
	clients, err := a.src.ListClients(ctx, store.ClientFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading clients: %w", err)
	}
	projects, err := a.src.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading projects: %w", err)
	}
	invoices, err := a.src.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading invoices: %w", err)
	}

	stats := clientStats(projects, invoices)

	sorted := make([]store.Client, len(clients))
	copy(sorted, clients)
	sort.SliceStable(sorted, func(i, j int) bool {
		return stats.get(sorted[i].ID).invoiced > stats.get(sorted[j].ID).invoiced
	})

	statusCounts := make(map[string]int)
	var statuses []string
	for _, c := range clients {
		if statusCounts[c.Status] == 0 {
			statuses = append(statuses, c.Status)
		}
		statusCounts[c.Status]++
	}
	sort.Strings(statuses)

	var b strings.Builder
	b.WriteString("## Client Portfolio Insights\n\n")
	b.WriteString("### Portfolio Overview\n")
	fmt.Fprintf(&b, "- **Total Clients:** %d\n", len(clients))
	for _, s := range statuses {
		fmt.Fprintf(&b, "- **%s:** %d\n", titleStatus(s), statusCounts[s])
	}
	b.WriteString("\n")

	b.WriteString("### Client Details\n")
	for _, c := range sorted {
		st := stats.get(c.ID)
		fmt.Fprintf(&b, "- **%s** (%s | %s)\n", c.Name, c.Status, orNA(c.Industry))
		fmt.Fprintf(&b, "  - Annual Revenue: %s\n", money(c.AnnualRevenue))
		fmt.Fprintf(&b, "  - Projects: %d total, %d active\n", st.projects, st.active)
		fmt.Fprintf(&b, "  - Invoiced: %s | Paid: %s\n", money(st.invoiced), money(st.paid))
	}

	return b.String(), nil
}
