package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/consultpro/agents/pkg/store"
	"github.com/consultpro/agents/pkg/telemetry"
)

// ErrInvalidArguments marks a call whose arguments cannot be used, as opposed
// to one that failed while running.
var ErrInvalidArguments = errors.New("mcp: invalid arguments")

// Source is the read side of the store the tools query.
type Source interface {
	ListClients(ctx context.Context, f store.ClientFilter) ([]store.Client, error)
	GetClient(ctx context.Context, id uint) (*store.Client, error)
	ClientNames(ctx context.Context, ids []uint) (map[uint]string, error)
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]store.Project, error)
	GetProject(ctx context.Context, id uint) (*store.Project, error)
	ListConsultants(ctx context.Context, f store.ConsultantFilter) ([]store.Consultant, error)
	ConsultantLoads(ctx context.Context, f store.ConsultantFilter, now time.Time) ([]store.ConsultantLoad, error)
	ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]store.Invoice, error)
	ListTimeEntries(ctx context.Context, f store.TimeEntryFilter) ([]store.TimeEntry, error)
	ListKPIs(ctx context.Context, f store.KPIFilter) ([]store.KPI, error)
	FinancialSummary(ctx context.Context) (*store.FinancialSummary, error)
	Search(ctx context.Context, term string) (*store.SearchResults, error)
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Result struct {
	Content []Content `json:"content"`
}

func TextResult(text string) Result {
	return Result{Content: []Content{{Type: "text", Text: text}}}
}

// Text joins the text content of r.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

type toolFunc func(ctx context.Context, args map[string]any) (any, error)

// Executor runs catalog tools against a Source.
type Executor struct {
	src   Source
	now   func() time.Time
	tools map[string]toolFunc
}

func NewExecutor(src Source) *Executor {
	e := &Executor{src: src, now: time.Now}
	e.tools = map[string]toolFunc{
		ToolGetClients:          e.getClients,
		ToolGetClientDetails:    e.getClientDetails,
		ToolGetProjects:         e.getProjects,
		ToolGetProjectDetails:   e.getProjectDetails,
		ToolGetConsultants:      e.getConsultants,
		ToolGetFinancialSummary: e.getFinancialSummary,
		ToolGetKPIs:             e.getKPIs,
		ToolSearchData:          e.searchData,
	}
	return e
}

// Execute runs the named tool and renders its data as indented JSON text. A
// name outside the catalog is not an error: the result says so in text.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	fn, ok := e.tools[name]
	if !ok {
		telemetry.Metrics.ToolCallsTotal.WithLabelValues("unknown", "unknown").Inc()
		return TextResult("Unknown tool: " + name), nil
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, span := telemetry.StartSpan(ctx, "mcp.tool", telemetry.AttrTool.String(name))
	defer span.End()
	start := e.now()

	data, err := fn(ctx, args)
	if err == nil {
		var text []byte
		text, err = json.MarshalIndent(data, "", "  ")
		if err == nil {
			telemetry.Metrics.ToolCallsTotal.WithLabelValues(name, "ok").Inc()
			telemetry.Metrics.ToolDuration.WithLabelValues(name).Observe(e.now().Sub(start).Seconds())
			return TextResult(string(text)), nil
		}
	}

	status := "error"
	if errors.Is(err, ErrInvalidArguments) {
		status = "invalid"
	}
	telemetry.Metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
	telemetry.SpanError(span, err)
	return Result{}, fmt.Errorf("mcp: executing %s: %w", name, err)
}

func (e *Executor) getClients(ctx context.Context, args map[string]any) (any, error) {
	status, err := argString(args, "status")
	if err != nil {
		return nil, err
	}
	return e.src.ListClients(ctx, store.ClientFilter{Status: status})
}

type clientProject struct {
	ID     uint    `json:"id"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
	Budget float64 `json:"budget"`
}

type clientInvoice struct {
	InvoiceNumber string     `json:"invoice_number"`
	Status        string     `json:"status"`
	TotalAmount   float64    `json:"total_amount"`
	DueDate       *time.Time `json:"due_date"`
}

type clientKPI struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	BaselineValue float64 `json:"baseline_value"`
	TargetValue   float64 `json:"target_value"`
	CurrentValue  float64 `json:"current_value"`
	Unit          string  `json:"unit"`
}

type clientDetails struct {
	Client   *store.Client   `json:"client"`
	Projects []clientProject `json:"projects"`
	Invoices []clientInvoice `json:"invoices"`
	KPIs     []clientKPI     `json:"kpis"`
}

func (e *Executor) getClientDetails(ctx context.Context, args map[string]any) (any, error) {
	id, err := requireUint(args, "client_id")
	if err != nil {
		return nil, err
	}

	client, err := e.src.GetClient(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	projects, err := e.src.ListProjects(ctx, store.ProjectFilter{ClientID: id})
	if err != nil {
		return nil, err
	}
	invoices, err := e.src.ListInvoices(ctx, store.InvoiceFilter{ClientID: id})
	if err != nil {
		return nil, err
	}
	kpis, err := e.src.ListKPIs(ctx, store.KPIFilter{ClientID: id})
	if err != nil {
		return nil, err
	}

	out := clientDetails{
		Client:   client,
		Projects: make([]clientProject, 0, len(projects)),
		Invoices: make([]clientInvoice, 0, len(invoices)),
		KPIs:     make([]clientKPI, 0, len(kpis)),
	}
	for _, p := range projects {
		out.Projects = append(out.Projects, clientProject{ID: p.ID, Name: p.Name, Status: p.Status, Budget: p.Budget})
	}
	for _, inv := range invoices {
		out.Invoices = append(out.Invoices, clientInvoice{
			InvoiceNumber: inv.InvoiceNumber,
			Status:        inv.Status,
			TotalAmount:   inv.TotalAmount,
			DueDate:       inv.DueDate,
		})
	}
	for _, k := range kpis {
		out.KPIs = append(out.KPIs, clientKPI{
			Name:          k.Name,
			Category:      k.Category,
			BaselineValue: k.BaselineValue,
			TargetValue:   k.TargetValue,
			CurrentValue:  k.CurrentValue,
			Unit:          k.Unit,
		})
	}
	return out, nil
}

type projectRow struct {
	store.Project
	ClientName string `json:"client_name"`
}

func (e *Executor) getProjects(ctx context.Context, args map[string]any) (any, error) {
	status, err := argString(args, "status")
	if err != nil {
		return nil, err
	}
	clientID, _, err := argUint(args, "client_id")
	if err != nil {
		return nil, err
	}

	projects, err := e.src.ListProjects(ctx, store.ProjectFilter{Status: status, ClientID: clientID})
	if err != nil {
		return nil, err
	}
	names, err := e.src.ClientNames(ctx, projectClientIDs(projects))
	if err != nil {
		return nil, err
	}

	rows := make([]projectRow, 0, len(projects))
	for _, p := range projects {
		name, ok := names[p.ClientID]
		if !ok {
			continue
		}
		rows = append(rows, projectRow{Project: p, ClientName: name})
	}
	return rows, nil
}

type timeEntryRow struct {
	store.TimeEntry
	ConsultantName string `json:"consultant_name"`
}

type projectDetails struct {
	Project     *projectRow    `json:"project"`
	TimeEntries []timeEntryRow `json:"time_entries"`
	TotalHours  float64        `json:"total_hours"`
}

func (e *Executor) getProjectDetails(ctx context.Context, args map[string]any) (any, error) {
	id, err := requireUint(args, "project_id")
	if err != nil {
		return nil, err
	}

	out := projectDetails{TimeEntries: []timeEntryRow{}}

	project, err := e.src.GetProject(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		client, err := e.src.GetClient(ctx, project.ClientID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if client != nil {
			out.Project = &projectRow{Project: *project, ClientName: client.Name}
		}
	}

	entries, err := e.src.ListTimeEntries(ctx, store.TimeEntryFilter{ProjectID: id})
	if err != nil {
		return nil, err
	}
	consultants, err := e.src.ListConsultants(ctx, store.ConsultantFilter{})
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(consultants))
	for _, c := range consultants {
		names[c.ID] = c.Name
	}

	for _, te := range entries {
		out.TotalHours += te.Hours
		name, ok := names[te.ConsultantID]
		if !ok {
			continue
		}
		out.TimeEntries = append(out.TimeEntries, timeEntryRow{TimeEntry: te, ConsultantName: name})
	}
	return out, nil
}

func (e *Executor) getConsultants(ctx context.Context, args map[string]any) (any, error) {
	active, err := argBool(args, "is_active")
	if err != nil {
		return nil, err
	}
	return e.src.ConsultantLoads(ctx, store.ConsultantFilter{Active: active}, e.now())
}

func (e *Executor) getFinancialSummary(ctx context.Context, _ map[string]any) (any, error) {
	return e.src.FinancialSummary(ctx)
}

type kpiRow struct {
	store.KPI
	ClientName string `json:"client_name"`
}

func (e *Executor) getKPIs(ctx context.Context, args map[string]any) (any, error) {
	clientID, _, err := argUint(args, "client_id")
	if err != nil {
		return nil, err
	}
	kpis, err := e.src.ListKPIs(ctx, store.KPIFilter{ClientID: clientID})
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(kpis))
	for _, k := range kpis {
		ids = append(ids, k.ClientID)
	}
	names, err := e.src.ClientNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]kpiRow, 0, len(kpis))
	for _, k := range kpis {
		name, ok := names[k.ClientID]
		if !ok {
			continue
		}
		rows = append(rows, kpiRow{KPI: k, ClientName: name})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ClientName != rows[j].ClientName {
			return rows[i].ClientName < rows[j].ClientName
		}
		return rows[i].Category < rows[j].Category
	})
	return rows, nil
}

func (e *Executor) searchData(ctx context.Context, args map[string]any) (any, error) {
	q, err := argString(args, "query")
	if err != nil {
		return nil, err
	}
	if _, ok := args["query"]; !ok {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArguments)
	}
	return e.src.Search(ctx, q)
}

func projectClientIDs(projects []store.Project) []uint {
	ids := make([]uint, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ClientID)
	}
	return ids
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArguments, key)
	}
	return s, nil
}

// argUint reads a positive id given as a JSON number or numeric string. Zero
// and absent values both report ok=false.
func argUint(args map[string]any, key string) (uint, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidArguments, key)
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidArguments, key)
		}
		n = f
	default:
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidArguments, key)
	}
	if n < 0 || n != float64(uint(n)) {
		return 0, false, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidArguments, key)
	}
	return uint(n), n > 0, nil
}

func requireUint(args map[string]any, key string) (uint, error) {
	id, ok, err := argUint(args, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidArguments, key)
	}
	return id, nil
}

func argBool(args map[string]any, key string) (*bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case bool:
		return &t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidArguments, key)
		}
		return &b, nil
	}
	return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidArguments, key)
}
