package reports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/consultpro/agents/pkg/skills"
	"github.com/consultpro/agents/pkg/store"
	"github.com/dustin/go-humanize"
)

var ErrUnknownCapability = errors.New("reports: unknown capability")

// Producer turns free text into a markdown report for a capability.
type Producer interface {
	Produce(ctx context.Context, capability skills.Capability, text string) (string, error)
}

// Agent builds reports for a single capability.
type Agent interface {
	Capability() skills.Capability
	Report(ctx context.Context, text string) (string, error)
}

// Source is the read side of the store the agents query.
type Source interface {
	ListClients(ctx context.Context, f store.ClientFilter) ([]store.Client, error)
	GetClient(ctx context.Context, id uint) (*store.Client, error)
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]store.Project, error)
	GetProject(ctx context.Context, id uint) (*store.Project, error)
	ListConsultants(ctx context.Context, f store.ConsultantFilter) ([]store.Consultant, error)
	ConsultantLoads(ctx context.Context, f store.ConsultantFilter, now time.Time) ([]store.ConsultantLoad, error)
	ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]store.Invoice, error)
	ListTimeEntries(ctx context.Context, f store.TimeEntryFilter) ([]store.TimeEntry, error)
	ListKPIs(ctx context.Context, f store.KPIFilter) ([]store.KPI, error)
}

type Registry struct {
	mu     sync.RWMutex
	agents map[skills.Capability]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[skills.Capability]Agent)}
}

func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Capability()] = a
}

func (r *Registry) Get(c skills.Capability) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, c)
	}
	return a, nil
}

func (r *Registry) Produce(ctx context.Context, c skills.Capability, text string) (string, error) {
	a, err := r.Get(c)
	if err != nil {
		return "", err
	}
	return a.Report(ctx, text)
}

// DefaultRegistry wires the three report agents against src.
func DefaultRegistry(src Source) *Registry {
	r := NewRegistry()
	r.Register(NewAnalytics(src))
	r.Register(NewPlanning(src))
	r.Register(NewClientInsights(src))
	return r
}

const sectionBreak = "\n\n---\n\n"

var (
	projectIDPattern = regexp.MustCompile(`(?i)project\s*(?:id\s*)?#?(\d+)`)
	clientIDPattern  = regexp.MustCompile(`(?i)client\s*(?:id\s*)?#?(\d+)`)
)

// extractID returns the first numeric id captured by re, or 0.
func extractID(re *regexp.Regexp, text string) uint {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

func containsAny(lower string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func money(v float64) string {
	return "$" + humanize.Commaf(math.Round(v*100)/100)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "TBD"
	}
	return t.UTC().Format("2006-01-02")
}

// daysUntil counts whole days from now to t, rounding up like a calendar.
func daysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// titleStatus renders "on_hold" as "On hold".
func titleStatus(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}
