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
)

const (
	engagementWindow = 60 * 24 * time.Hour
	largeCompany     = 5_000_000.0
	lowSpend         = 50_000.0
)

// clientStat aggregates the rows related to one client.
type clientStat struct {
	projects, active, completed int
	invoiced, paid              float64
	outstanding, overdue        float64
	billingTypes                map[string]bool
	staff                       map[uint]bool
}

type statsTable map[uint]*clientStat

func (t statsTable) get(id uint) *clientStat {
	if s, ok := t[id]; ok {
		return s
	}
	return &clientStat{}
}

func clientStats(projects []store.Project, invoices []store.Invoice) statsTable {
	t := make(statsTable)
	at := func(id uint) *clientStat {
		s, ok := t[id]
		if !ok {
			s = &clientStat{
				billingTypes: make(map[string]bool),
				staff:        make(map[uint]bool),
			}
			t[id] = s
		}
		return s
	}

	for _, p := range projects {
		s := at(p.ClientID)
		s.projects++
		switch p.Status {
		case store.ProjectActive:
			s.active++
		case store.ProjectCompleted:
			s.completed++
		}
		if p.BillingType != "" {
			s.billingTypes[p.BillingType] = true
		}
		if p.LeadConsultantID != nil {
			s.staff[*p.LeadConsultantID] = true
		}
	}
	for _, inv := range invoices {
		if inv.Status == store.InvoiceCancelled {
			continue
		}
		s := at(inv.ClientID)
		s.invoiced += inv.TotalAmount
		switch inv.Status {
		case store.InvoicePaid:
			s.paid += inv.TotalAmount
		case store.InvoiceSent:
			s.outstanding += inv.TotalAmount
		case store.InvoiceOverdue:
			s.outstanding += inv.TotalAmount
			s.overdue += inv.TotalAmount
		}
	}
	return t
}

func clientNameMap(ctx context.Context, src Source) (map[uint]string, error) {
	clients, err := src.ListClients(ctx, store.ClientFilter{})
	if err != nil {
		return nil, fmt.Errorf("reports: loading clients: %w", err)
	}
	names := make(map[uint]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	return names, nil
}

type ClientInsightsAgent struct {
	src Source
	now func() time.Time
}

func NewClientInsights(src Source) *ClientInsightsAgent {
	return &ClientInsightsAgent{src: src, now: time.Now}
}

func (a *ClientInsightsAgent) Capability() skills.Capability { return skills.ClientInsights }

func (a *ClientInsightsAgent) Report(ctx context.Context, text string) (string, error) {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "churn", "risk", "retain", "losing", "attrition"):
		return a.churnRisk(ctx)
	case containsAny(lower, "upsell", "cross-sell", "expand", "grow", "opportunity", "more services"):
		return a.upsell(ctx)
	}
	return a.healthCheck(ctx, extractID(clientIDPattern, text))
}

// portfolio is everything the client reports need, loaded once per report.
type portfolio struct {
	clients    []store.Client
	stats      statsTable
	kpis       []store.KPI
	lastWorked map[uint]time.Time
	experts    map[uint]string
}

func (a *ClientInsightsAgent) load(ctx context.Context, f store.ClientFilter) (*portfolio, error) {
	clients, err := a.src.ListClients(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reports: loading clients: %w", err)
	}
	projects, err := a.src.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return nil, fmt.Errorf("reports: loading projects: %w", err)
	}
	invoices, err := a.src.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		return nil, fmt.Errorf("reports: loading invoices: %w", err)
	}
	entries, err := a.src.ListTimeEntries(ctx, store.TimeEntryFilter{})
	if err != nil {
		return nil, fmt.Errorf("reports: loading time entries: %w", err)
	}
	kpis, err := a.src.ListKPIs(ctx, store.KPIFilter{})
	if err != nil {
		return nil, fmt.Errorf("reports: loading kpis: %w", err)
	}
	consultants, err := a.src.ListConsultants(ctx, store.ConsultantFilter{})
	if err != nil {
		return nil, fmt.Errorf("reports: loading consultants: %w", err)
	}

	owner := make(map[uint]uint, len(projects))
	for _, p := range projects {
		owner[p.ID] = p.ClientID
	}

	pf := &portfolio{
		clients:    clients,
		stats:      clientStats(projects, invoices),
		kpis:       kpis,
		lastWorked: make(map[uint]time.Time),
		experts:    make(map[uint]string, len(consultants)),
	}
	for _, c := range consultants {
		pf.experts[c.ID] = c.Expertise
	}
	for _, e := range entries {
		clientID, ok := owner[e.ProjectID]
		if !ok {
			continue
		}
		if e.Date.After(pf.lastWorked[clientID]) {
			pf.lastWorked[clientID] = e.Date
		}
		if s, ok := pf.stats[clientID]; ok {
			s.staff[e.ConsultantID] = true
		}
	}
	return pf, nil
}

// kpiProgress averages current/target across a client's KPIs with a
// positive target. ok is false when there is nothing to average.
func (pf *portfolio) kpiProgress(clientID uint) (float64, bool) {
	var sum float64
	var n int
	for _, k := range pf.kpis {
		if k.ClientID != clientID || k.TargetValue <= 0 {
			continue
		}
		sum += k.CurrentValue / k.TargetValue * 100
		n++
	}
	if n == 0 {
		return 0, false
	}
	return math.Round(sum/float64(n)*10) / 10, true
}

func healthLabel(score float64) string {
	switch {
	case score >= 80:
		return "EXCELLENT"
	case score >= 60:
		return "GOOD"
	case score >= 40:
		return "FAIR"
	case score >= 20:
		return "AT RISK"
	}
	return "CRITICAL"
}

// healthScore rates a client from 0 to 100. Engagement recency is measured
// by the last time entry logged against any of the client's projects.
func (a *ClientInsightsAgent) healthScore(pf *portfolio, c store.Client) float64 {
	s := pf.stats.get(c.ID)
	score := 50.0
	if s.active > 0 {
		score += 10
	}
	if s.paid > 0 {
		score += 10
	}
	if s.overdue > 0 {
		score -= 15
	}
	if last, ok := pf.lastWorked[c.ID]; ok {
		days := daysUntil(last, a.now())
		switch {
		case days > 30:
			score -= 10
		case days <= 7:
			score += 5
		}
	} else {
		score -= 10
	}
	if progress, ok := pf.kpiProgress(c.ID); ok {
		switch {
		case progress >= 70:
			score += 5
		case progress < 30:
			score -= 5
		}
	}
	return math.Max(0, math.Min(100, score))
}

func (a *ClientInsightsAgent) healthCheck(ctx context.Context, clientID uint) (string, error) {
	pf, err := a.load(ctx, store.ClientFilter{})
	if err != nil {
		return "", err
	}

	clients := pf.clients
	if clientID != 0 {
		clients = nil
		for _, c := range pf.clients {
			if c.ID == clientID {
				clients = append(clients, c)
			}
		}
	}

	var b strings.Builder
	b.WriteString("## Client Health Check\n\n")
	if len(clients) == 0 {
		if clientID != 0 {
			fmt.Fprintf(&b, "No clients found with ID %d.\n", clientID)
		} else {
			b.WriteString("No clients found.\n")
		}
		return b.String(), nil
	}

	sorted := make([]store.Client, len(clients))
	copy(sorted, clients)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pf.stats.get(sorted[i].ID).paid > pf.stats.get(sorted[j].ID).paid
	})

	now := a.now()
	for _, c := range sorted {
		s := pf.stats.get(c.ID)
		score := a.healthScore(pf, c)
		progress, hasProgress := pf.kpiProgress(c.ID)
		last, worked := pf.lastWorked[c.ID]

		fmt.Fprintf(&b, "### %s\n", c.Name)
		fmt.Fprintf(&b, "**Health Score: %.0f/100 (%s)**\n\n", score, healthLabel(score))
		b.WriteString("| Metric | Value |\n")
		b.WriteString("|--------|-------|\n")
		fmt.Fprintf(&b, "| Status | %s |\n", c.Status)
		fmt.Fprintf(&b, "| Industry | %s |\n", orNA(c.Industry))
		fmt.Fprintf(&b, "| Projects | %d total (%d active, %d completed) |\n", s.projects, s.active, s.completed)
		fmt.Fprintf(&b, "| Revenue Collected | %s |\n", money(s.paid))
		fmt.Fprintf(&b, "| Outstanding | %s |\n", money(s.outstanding))
		fmt.Fprintf(&b, "| Overdue | %s |\n", money(s.overdue))
		if worked {
			fmt.Fprintf(&b, "| Last Activity | %s |\n", formatDate(&last))
		} else {
			b.WriteString("| Last Activity | N/A |\n")
		}
		if hasProgress {
			fmt.Fprintf(&b, "| KPI Progress | %.0f%% |\n", progress)
		} else {
			b.WriteString("| KPI Progress | N/A |\n")
		}
		b.WriteString("\n")

		var recs []string
		if s.overdue > 0 {
			recs = append(recs, fmt.Sprintf("Follow up on %s in overdue invoices", money(s.overdue)))
		}
		if !worked || now.Sub(last) > 14*24*time.Hour {
			recs = append(recs, "Schedule a check-in session - engagement is low")
		}
		if hasProgress && progress < 40 {
			recs = append(recs, "Review KPI targets - progress is below expectations")
		}
		if s.active == 0 && c.Status == store.ClientActive {
			recs = append(recs, "Explore new project opportunities - no active projects")
		}
		if len(recs) > 0 {
			b.WriteString("**Recommendations:**\n")
			for _, r := range recs {
				fmt.Fprintf(&b, "- %s\n", r)
			}
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

type riskEntry struct {
	name    string
	score   int
	reasons []string
}

func (r riskEntry) level() string {
	switch {
	case r.score >= 60:
		return "HIGH"
	case r.score >= 35:
		return "MEDIUM"
	}
	return "LOW"
}

func (a *ClientInsightsAgent) churnRisk(ctx context.Context) (string, error) {
	pf, err := a.load(ctx, store.ClientFilter{})
	if err != nil {
		return "", err
	}

	cutoff := a.now().Add(-engagementWindow)
	var risks []riskEntry
	for _, c := range pf.clients {
		if c.Status == store.ClientChurned || c.Status == store.ClientLead {
			continue
		}
		s := pf.stats.get(c.ID)
		r := riskEntry{name: c.Name}
		if s.active == 0 {
			r.score += 25
			r.reasons = append(r.reasons, "No active projects")
		}
		if last, ok := pf.lastWorked[c.ID]; !ok || last.Before(cutoff) {
			r.score += 20
			r.reasons = append(r.reasons, "No logged work in the last 60 days")
		}
		if s.overdue > 0 {
			r.score += 15
			r.reasons = append(r.reasons, fmt.Sprintf("%s in overdue invoices", money(s.overdue)))
		}
		if c.Status == store.ClientOnHold {
			r.score += 15
			r.reasons = append(r.reasons, "Account is on hold")
		}
		risks = append(risks, r)
	}
	sort.SliceStable(risks, func(i, j int) bool { return risks[i].score > risks[j].score })

	groups := map[string][]riskEntry{}
	for _, r := range risks {
		groups[r.level()] = append(groups[r.level()], r)
	}

	var b strings.Builder
	b.WriteString("## Churn Risk Analysis\n\n")
	b.WriteString("### Summary\n")
	fmt.Fprintf(&b, "- **High Risk:** %s\n", plural(len(groups["HIGH"]), "client"))
	fmt.Fprintf(&b, "- **Medium Risk:** %s\n", plural(len(groups["MEDIUM"]), "client"))
	fmt.Fprintf(&b, "- **Low Risk:** %s\n\n", plural(len(groups["LOW"]), "client"))

	for _, level := range []struct{ key, title string }{
		{"HIGH", "High Risk Clients"},
		{"MEDIUM", "Medium Risk Clients"},
		{"LOW", "Low Risk Clients"},
	} {
		list := groups[level.key]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n", level.title)
		for _, r := range list {
			fmt.Fprintf(&b, "- **%s** (Risk Score: %d/100)\n", r.name, r.score)
			if level.key == "LOW" {
				continue
			}
			for _, reason := range r.reasons {
				fmt.Fprintf(&b, "  - %s\n", reason)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("### Retention Recommendations\n")
	if len(groups["HIGH"]) > 0 {
		b.WriteString("1. **Immediate action required** for high-risk clients - schedule executive check-ins within the next week\n")
	}
	b.WriteString("2. Review pricing and value proposition for clients with no active projects\n")
	b.WriteString("3. Implement quarterly business reviews for all active clients\n")
	b.WriteString("4. Address overdue invoices promptly - billing issues often precede churn\n")

	return b.String(), nil
}

func (a *ClientInsightsAgent) upsell(ctx context.Context) (string, error) {
	pf, err := a.load(ctx, store.ClientFilter{Status: store.ClientActive})
	if err != nil {
		return "", err
	}
	active := true
	consultants, err := a.src.ListConsultants(ctx, store.ConsultantFilter{Active: &active})
	if err != nil {
		return "", fmt.Errorf("reports: loading consultants: %w", err)
	}

	var b strings.Builder
	b.WriteString("## Upsell & Cross-sell Opportunities\n\n")
	if len(pf.clients) == 0 {
		b.WriteString("No active clients found for upsell analysis.\n")
		return b.String(), nil
	}

	var expertise []string
	seen := make(map[string]bool)
	for _, c := range consultants {
		if c.Expertise != "" && !seen[c.Expertise] {
			seen[c.Expertise] = true
			expertise = append(expertise, c.Expertise)
		}
	}
	sort.Strings(expertise)

	sorted := make([]store.Client, len(pf.clients))
	copy(sorted, pf.clients)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pf.stats.get(sorted[i].ID).paid > pf.stats.get(sorted[j].ID).paid
	})

	b.WriteString("### Opportunities by Client\n\n")
	for _, c := range sorted {
		s := pf.stats.get(c.ID)

		used := make(map[string]bool)
		for id := range s.staff {
			used[pf.experts[id]] = true
		}
		var unused []string
		for _, e := range expertise {
			if !used[e] {
				unused = append(unused, e)
			}
		}

		var opps []string
		if len(s.billingTypes) > 0 && !s.billingTypes[store.BillingRetainer] {
			opps = append(opps, "Consider proposing a retainer agreement for ongoing advisory services")
		}
		if len(unused) > 0 {
			opps = append(opps, fmt.Sprintf("Cross-sell opportunity: %s services not yet utilized", strings.Join(unused, ", ")))
		}
		if c.AnnualRevenue > largeCompany && s.paid < lowSpend {
			opps = append(opps, "Large company with relatively low consulting spend - room for growth")
		}
		if s.completed > 0 && s.active == 0 {
			opps = append(opps, "Previous projects completed - propose follow-up engagement or Phase 2")
		}
		if len(opps) == 0 {
			continue
		}

		fmt.Fprintf(&b, "#### %s\n", c.Name)
		fmt.Fprintf(&b, "- Industry: %s | Revenue: %s\n", orNA(c.Industry), money(c.AnnualRevenue))
		fmt.Fprintf(&b, "- Lifetime Consulting Revenue: %s\n", money(s.paid))
		fmt.Fprintf(&b, "- Active Projects: %d\n\n", s.active)
		b.WriteString("**Opportunities:**\n")
		for _, o := range opps {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		b.WriteString("\n")
	}

	b.WriteString("### Strategic Recommendations\n")
	b.WriteString("1. Focus on clients with high satisfaction scores for expansion conversations\n")
	b.WriteString("2. Package cross-functional offerings (e.g., strategy + technology + analytics)\n")
	b.WriteString("3. Propose retainer models for clients with recurring needs\n")
	b.WriteString("4. Schedule account planning sessions for top revenue clients\n")
	b.WriteString("5. Develop industry-specific solutions for your largest verticals\n")

	return b.String(), nil
}
