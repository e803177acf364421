package reports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/consultpro/agents/pkg/skills"
	"github.com/consultpro/agents/pkg/store"
)

const (
	weeklyCapacity = 40.0
	week           = 7 * 24 * time.Hour
)

type PlanningAgent struct {
	src Source
	now func() time.Time
}

func NewPlanning(src Source) *PlanningAgent {
	return &PlanningAgent{src: src, now: time.Now}
}

func (a *PlanningAgent) Capability() skills.Capability { return skills.Planning }

func (a *PlanningAgent) Report(ctx context.Context, text string) (string, error) {
	lower := strings.ToLower(text)
	projectID := extractID(projectIDPattern, text)
	clientID := extractID(clientIDPattern, text)

	switch {
	case containsAny(lower, "resource", "allocat", "assign", "team", "availability", "who"):
		return a.resourceAllocation(ctx, projectID)
	case containsAny(lower, "timeline", "schedule", "deadline", "when", "duration"):
		return a.timeline(ctx, projectID)
	case containsAny(lower, "plan", "proposal", "scope", "estimate", "new project"):
		return a.projectPlan(ctx, clientID, text)
	}

	resources, err := a.resourceAllocation(ctx, projectID)
	if err != nil {
		return "", err
	}
	timelines, err := a.timeline(ctx, projectID)
	if err != nil {
		return "", err
	}
	return resources + sectionBreak + timelines, nil
}

type workload struct {
	store.Consultant
	week, month float64
	projects    int
}

func (w workload) status() string {
	switch {
	case w.week > 35:
		return "FULLY BOOKED"
	case w.week > 25:
		return "BUSY"
	}
	return "AVAILABLE"
}

// workloads returns active consultants with their recent hours, least busy
// first.
func (a *PlanningAgent) workloads(ctx context.Context) ([]workload, error) {
	active := true
	consultants, err := a.src.ListConsultants(ctx, store.ConsultantFilter{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("reports: loading consultants: %w", err)
	}
	now := a.now()
	entries, err := a.src.ListTimeEntries(ctx, store.TimeEntryFilter{Since: now.Add(-store.UtilizationWindow)})
	if err != nil {
		return nil, fmt.Errorf("reports: loading time entries: %w", err)
	}
	activeProjects, err := a.src.ListProjects(ctx, store.ProjectFilter{Status: store.ProjectActive})
	if err != nil {
		return nil, fmt.Errorf("reports: loading projects: %w", err)
	}

	isActive := make(map[uint]bool, len(activeProjects))
	for _, p := range activeProjects {
		isActive[p.ID] = true
	}

	weekStart := now.Add(-week)
	rows := make([]workload, len(consultants))
	index := make(map[uint]int, len(consultants))
	seen := make(map[uint]map[uint]bool, len(consultants))
	for i, c := range consultants {
		rows[i] = workload{Consultant: c}
		index[c.ID] = i
		seen[c.ID] = make(map[uint]bool)
	}
	for _, p := range activeProjects {
		if p.LeadConsultantID != nil {
			if m, ok := seen[*p.LeadConsultantID]; ok {
				m[p.ID] = true
			}
		}
	}
	for _, e := range entries {
		i, ok := index[e.ConsultantID]
		if !ok {
			continue
		}
		rows[i].month += e.Hours
		if !e.Date.Before(weekStart) {
			rows[i].week += e.Hours
		}
		if isActive[e.ProjectID] {
			seen[e.ConsultantID][e.ProjectID] = true
		}
	}
	for i := range rows {
		rows[i].projects = len(seen[rows[i].ID])
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].week < rows[j].week })
	return rows, nil
}

// lookupProject returns nil without error when id is zero or unknown.
func (a *PlanningAgent) lookupProject(ctx context.Context, id uint) (*store.Project, error) {
	if id == 0 {
		return nil, nil
	}
	p, err := a.src.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reports: loading project %d: %w", id, err)
	}
	return p, nil
}

func (a *PlanningAgent) lookupClient(ctx context.Context, id uint) (*store.Client, error) {
	if id == 0 {
		return nil, nil
	}
	c, err := a.src.GetClient(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reports: loading client %d: %w", id, err)
	}
	return c, nil
}

func (a *PlanningAgent) resourceAllocation(ctx context.Context, projectID uint) (string, error) {
	team, err := a.workloads(ctx)
	if err != nil {
		return "", err
	}
	project, err := a.lookupProject(ctx, projectID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## Resource Allocation Recommendations\n\n")

	if project != nil {
		client, err := a.lookupClient(ctx, project.ClientID)
		if err != nil {
			return "", err
		}
		var clientName, industry string
		if client != nil {
			clientName, industry = client.Name, client.Industry
		}

		fmt.Fprintf(&b, "### For Project: %s\n", project.Name)
		fmt.Fprintf(&b, "- Client: %s (%s)\n", orNA(clientName), orNA(industry))
		fmt.Fprintf(&b, "- Priority: %s | Budget: %s\n", orNA(project.Priority), money(project.Budget))
		fmt.Fprintf(&b, "- Description: %s\n\n", orNA(project.Description))

		matches := func(w workload) bool {
			return industry != "" && strings.Contains(strings.ToLower(w.Expertise), strings.ToLower(industry))
		}
		ranked := make([]workload, len(team))
		copy(ranked, team)
		sort.SliceStable(ranked, func(i, j int) bool {
			mi, mj := matches(ranked[i]), matches(ranked[j])
			if mi != mj {
				return mi
			}
			return ranked[i].week < ranked[j].week
		})
		if len(ranked) > 3 {
			ranked = ranked[:3]
		}

		b.WriteString("### Recommended Team Composition\n")
		for i, w := range ranked {
			fmt.Fprintf(&b, "%d. **%s** (%s %s)\n", i+1, w.Name, w.Seniority, w.Expertise)
			fmt.Fprintf(&b, "   - Available Capacity: ~%.0fh/week\n", weeklyCapacity-w.week)
			fmt.Fprintf(&b, "   - Active Projects: %d\n", w.projects)
			fmt.Fprintf(&b, "   - Rate: %s/hr\n", money(w.HourlyRate))
		}
		b.WriteString("\n")
	}

	b.WriteString("### Current Team Availability\n")
	var overloaded, available []string
	for _, w := range team {
		fmt.Fprintf(&b, "- **%s** (%s %s) [%s]\n", w.Name, w.Seniority, w.Expertise, w.status())
		fmt.Fprintf(&b, "  - This Week: %.1fh (%.0f%% utilization)\n", w.week, w.week/weeklyCapacity*100)
		fmt.Fprintf(&b, "  - This Month: %.1fh\n", w.month)
		fmt.Fprintf(&b, "  - Active Projects: %d\n", w.projects)
		fmt.Fprintf(&b, "  - Available Capacity: ~%.0fh/week\n", weeklyCapacity-w.week)
		switch {
		case w.week > 35:
			overloaded = append(overloaded, w.Name)
		case w.week < 15:
			available = append(available, w.Name)
		}
	}

	b.WriteString("\n### Recommendations\n")
	if len(overloaded) > 0 {
		fmt.Fprintf(&b, "- **Overloaded consultants:** %s - consider redistributing work\n", strings.Join(overloaded, ", "))
	}
	if len(available) > 0 {
		fmt.Fprintf(&b, "- **Available for new work:** %s - have capacity for additional assignments\n", strings.Join(available, ", "))
	}
	if len(overloaded) == 0 && len(available) == 0 {
		b.WriteString("- Team workload is well-balanced across all consultants.\n")
	}

	return b.String(), nil
}

func (a *PlanningAgent) timeline(ctx context.Context, projectID uint) (string, error) {
	project, err := a.lookupProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	consultants, err := a.src.ListConsultants(ctx, store.ConsultantFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading consultants: %w", err)
	}
	byID := make(map[uint]store.Consultant, len(consultants))
	for _, c := range consultants {
		byID[c.ID] = c
	}
	clientNames, err := clientNameMap(ctx, a.src)
	if err != nil {
		return "", err
	}

	now := a.now()
	var b strings.Builder
	b.WriteString("## Timeline Analysis\n\n")

	if project != nil {
		entries, err := a.src.ListTimeEntries(ctx, store.TimeEntryFilter{ProjectID: project.ID})
		if err != nil {
			return "", fmt.Errorf("reports: loading time entries: %w", err)
		}
		var hours float64
		for _, e := range entries {
			hours += e.Hours
		}

		fmt.Fprintf(&b, "### Project: %s\n", project.Name)
		fmt.Fprintf(&b, "- Client: %s\n", orNA(clientNames[project.ClientID]))
		fmt.Fprintf(&b, "- Status: %s\n", project.Status)
		fmt.Fprintf(&b, "- Lead: %s\n\n", leadName(*project, byID))

		if project.StartDate != nil && project.Deadline != nil {
			total := daysUntil(*project.StartDate, *project.Deadline)
			elapsed := daysUntil(*project.StartDate, now)
			remaining := daysUntil(now, *project.Deadline)
			progress := 0.0
			if total > 0 {
				progress = math.Min(100, math.Max(0, float64(elapsed)/float64(total)*100))
			}

			b.WriteString("### Timeline Details\n")
			fmt.Fprintf(&b, "- Start Date: %s\n", formatDate(project.StartDate))
			fmt.Fprintf(&b, "- Deadline: %s\n", formatDate(project.Deadline))
			fmt.Fprintf(&b, "- Total Duration: %d days\n", total)
			fmt.Fprintf(&b, "- Days Elapsed: %d (%.0f%%)\n", elapsed, progress)
			fmt.Fprintf(&b, "- Days Remaining: %d\n", remaining)
			fmt.Fprintf(&b, "- Hours Logged: %.1f\n\n", hours)

			switch {
			case remaining < 0:
				fmt.Fprintf(&b, "**ALERT:** This project is %d days past deadline!\n\n", -remaining)
			case remaining < 14:
				fmt.Fprintf(&b, "**WARNING:** Only %d days until deadline. Ensure all deliverables are on track.\n\n", remaining)
			}
		}
		return b.String(), nil
	}

	projects, err := a.src.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading projects: %w", err)
	}
	entries, err := a.src.ListTimeEntries(ctx, store.TimeEntryFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading time entries: %w", err)
	}
	hours := make(map[uint]float64)
	for _, e := range entries {
		hours[e.ProjectID] += e.Hours
	}

	var open []store.Project
	for _, p := range projects {
		if p.Status == store.ProjectActive || p.Status == store.ProjectPlanning {
			open = append(open, p)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		di, dj := open[i].Deadline, open[j].Deadline
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		}
		return di.Before(*dj)
	})

	b.WriteString("### Active Projects Timeline\n\n")
	for _, p := range open {
		status := "N/A"
		if p.Deadline != nil {
			remaining := daysUntil(now, *p.Deadline)
			switch {
			case remaining < 0:
				status = fmt.Sprintf("%d days OVERDUE", -remaining)
			case remaining < 14:
				status = fmt.Sprintf("%d days remaining (URGENT)", remaining)
			case remaining < 30:
				status = fmt.Sprintf("%d days remaining", remaining)
			default:
				status = fmt.Sprintf("%d days remaining (on track)", remaining)
			}
		}

		fmt.Fprintf(&b, "- **%s** [%s]\n", p.Name, strings.ToUpper(orNA(p.Priority)))
		fmt.Fprintf(&b, "  - Client: %s | Lead: %s\n", orNA(clientNames[p.ClientID]), leadName(p, byID))
		fmt.Fprintf(&b, "  - Status: %s | Deadline: %s\n", p.Status, formatDate(p.Deadline))
		fmt.Fprintf(&b, "  - Timeline: %s\n", status)
		fmt.Fprintf(&b, "  - Hours Logged: %.1f\n", hours[p.ID])
	}

	return b.String(), nil
}

var planPhases = []struct {
	title string
	steps []string
}{
	{"Phase 1: Discovery & Assessment (Weeks 1-2)", []string{
		"Stakeholder interviews and requirements gathering",
		"Current state analysis and documentation",
		"Gap analysis and opportunity identification",
		"Deliverable: Discovery report and recommendations",
	}},
	{"Phase 2: Strategy & Design (Weeks 3-5)", []string{
		"Solution architecture and design",
		"Roadmap development with milestones",
		"Stakeholder alignment workshops",
		"Deliverable: Strategic plan and implementation roadmap",
	}},
	{"Phase 3: Implementation (Weeks 6-12)", []string{
		"Phased implementation of recommendations",
		"Weekly progress reviews and adjustments",
		"Knowledge transfer and training",
		"Deliverable: Implementation milestones and documentation",
	}},
	{"Phase 4: Review & Handover (Weeks 13-14)", []string{
		"Results measurement against KPIs",
		"Final report and recommendations",
		"Transition planning and support handover",
		"Deliverable: Final report and transition plan",
	}},
}

var seniorityRank = map[string]int{"principal": 4, "senior": 3, "mid": 2, "junior": 1}

func (a *PlanningAgent) projectPlan(ctx context.Context, clientID uint, description string) (string, error) {
	client, err := a.lookupClient(ctx, clientID)
	if err != nil {
		return "", err
	}
	projects, err := a.src.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading projects: %w", err)
	}
	entries, err := a.src.ListTimeEntries(ctx, store.TimeEntryFilter{})
	if err != nil {
		return "", fmt.Errorf("reports: loading time entries: %w", err)
	}
	active := true
	team, err := a.src.ListConsultants(ctx, store.ConsultantFilter{Active: &active})
	if err != nil {
		return "", fmt.Errorf("reports: loading consultants: %w", err)
	}

	var b strings.Builder
	b.WriteString("## Project Plan Outline\n\n")

	if client != nil {
		past := 0
		for _, p := range projects {
			if p.ClientID == client.ID {
				past++
			}
		}
		fmt.Fprintf(&b, "### Client: %s\n", client.Name)
		fmt.Fprintf(&b, "- Industry: %s\n", orNA(client.Industry))
		fmt.Fprintf(&b, "- Company Size: %s\n", orNA(client.CompanySize))
		fmt.Fprintf(&b, "- Past Projects: %d\n", past)
		fmt.Fprintf(&b, "- Status: %s\n\n", client.Status)
	}

	if description != "" {
		fmt.Fprintf(&b, "### Project Description\n%s\n\n", description)
	}

	b.WriteString("### Recommended Project Structure\n\n")
	for _, phase := range planPhases {
		fmt.Fprintf(&b, "**%s**\n", phase.title)
		for i, step := range phase.steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}

	// Projects arrive newest first; the five most recent delivered or
	// running engagements drive the estimate.
	var reference []store.Project
	for _, p := range projects {
		if p.Status == store.ProjectCompleted || p.Status == store.ProjectActive {
			reference = append(reference, p)
		}
		if len(reference) == 5 {
			break
		}
	}
	if len(reference) > 0 {
		hours := make(map[uint]float64)
		people := make(map[uint]map[uint]bool)
		for _, e := range entries {
			hours[e.ProjectID] += e.Hours
			if people[e.ProjectID] == nil {
				people[e.ProjectID] = make(map[uint]bool)
			}
			people[e.ProjectID][e.ConsultantID] = true
		}
		var sumHours, sumTeam, sumBudget float64
		for _, p := range reference {
			sumHours += hours[p.ID]
			sumTeam += float64(len(people[p.ID]))
			sumBudget += p.Budget
		}
		n := float64(len(reference))
		avgBudget := sumBudget / n

		fmt.Fprintf(&b, "### Estimates (Based on %s)\n", plural(len(reference), "Similar Project"))
		fmt.Fprintf(&b, "- **Estimated Hours:** %.0fh\n", sumHours/n)
		fmt.Fprintf(&b, "- **Recommended Team Size:** %.0f consultants\n", math.Ceil(sumTeam/n))
		fmt.Fprintf(&b, "- **Budget Range:** %s - %s\n", money(math.Round(avgBudget*0.8)), money(math.Round(avgBudget*1.2)))
		b.WriteString("- **Estimated Duration:** 10-14 weeks\n\n")
	}

	sort.SliceStable(team, func(i, j int) bool {
		ri, rj := seniorityRank[team[i].Seniority], seniorityRank[team[j].Seniority]
		if ri != rj {
			return ri > rj
		}
		return team[i].HourlyRate > team[j].HourlyRate
	})
	b.WriteString("### Available Team Members\n")
	for _, c := range team {
		fmt.Fprintf(&b, "- **%s** - %s %s (%s/hr)\n", c.Name, c.Seniority, c.Expertise, money(c.HourlyRate))
	}

	return b.String(), nil
}
