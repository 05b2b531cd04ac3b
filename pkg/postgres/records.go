package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agile-defense/evc/pkg/messages"
)

// BrakeRow is a brake command stored by the recorder
type BrakeRow struct {
	ID             uuid.UUID `json:"id"`
	Source         string    `json:"source"`
	Cycle          uint64    `json:"cycle"`
	ServiceBrake   bool      `json:"service_brake"`
	EmergencyBrake bool      `json:"emergency_brake"`
	TractionCutOff bool      `json:"traction_cut_off"`
	Reasons        []string  `json:"reasons"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// FaultRow is a fault stored by the recorder
type FaultRow struct {
	ID         uuid.UUID `json:"id"`
	Source     string    `json:"source"`
	Cycle      uint64    `json:"cycle"`
	Kind       string    `json:"kind"`
	Group      string    `json:"group"`
	Reaction   string    `json:"reaction"`
	Detail     string    `json:"detail"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TransitionRow is a change of mode, level or supervision status
type TransitionRow struct {
	ID          uuid.UUID `json:"id"`
	Source      string    `json:"source"`
	Cycle       uint64    `json:"cycle"`
	Mode        string    `json:"mode"`
	Level       string    `json:"level"`
	Monitoring  string    `json:"monitoring"`
	Supervision string    `json:"supervision"`
	EstFront    float64   `json:"est_front"`
	Speed       float64   `json:"speed"`
	Permitted   float64   `json:"permitted"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// rowID reuses the message ID so redelivered messages do not duplicate rows
func rowID(e messages.Envelope) uuid.UUID {
	if id, err := uuid.Parse(e.MessageID); err == nil {
		return id
	}
	return uuid.New()
}

func recordedAt(e messages.Envelope) time.Time {
	if e.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return e.Timestamp
}

// NewBrakeRow converts a brake command
func NewBrakeRow(m *messages.BrakeCommand) BrakeRow {
	reasons := m.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return BrakeRow{
		ID:             rowID(m.Envelope),
		Source:         m.Envelope.Source,
		Cycle:          m.Envelope.Cycle,
		ServiceBrake:   m.ServiceBrake,
		EmergencyBrake: m.EmergencyBrake,
		TractionCutOff: m.TractionCutOff,
		Reasons:        reasons,
		RecordedAt:     recordedAt(m.Envelope),
	}
}

// NewFaultRow converts a fault report
func NewFaultRow(m *messages.FaultReport) FaultRow {
	return FaultRow{
		ID:         rowID(m.Envelope),
		Source:     m.Envelope.Source,
		Cycle:      m.Envelope.Cycle,
		Kind:       m.Kind,
		Group:      m.Group,
		Reaction:   m.Reaction,
		Detail:     m.Detail,
		RecordedAt: recordedAt(m.Envelope),
	}
}

// NewTransitionRow converts a supervision report
func NewTransitionRow(m *messages.SupervisionReport) TransitionRow {
	return TransitionRow{
		ID:          rowID(m.Envelope),
		Source:      m.Envelope.Source,
		Cycle:       m.Envelope.Cycle,
		Mode:        m.Mode,
		Level:       m.Level,
		Monitoring:  m.Monitoring,
		Supervision: m.Supervision,
		EstFront:    m.EstFront,
		Speed:       m.Speed,
		Permitted:   m.Permitted,
		RecordedAt:  recordedAt(m.Envelope),
	}
}

// Filter defines filter options for recorder queries
type Filter struct {
	Source string
	Kind   string // Fault kind, or mode for transitions
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// where builds the filter clauses of a recorder query. kindColumn names the
// column matched by Filter.Kind, empty when the table has none.
func (f Filter) where(base, kindColumn string) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString(" WHERE 1=1")
	args := []interface{}{}
	argNum := 1

	if f.Source != "" {
		fmt.Fprintf(&b, " AND source = $%d", argNum)
		args = append(args, f.Source)
		argNum++
	}

	if f.Kind != "" && kindColumn != "" {
		fmt.Fprintf(&b, " AND %s = $%d", kindColumn, argNum)
		args = append(args, f.Kind)
		argNum++
	}

	if f.Since != nil {
		fmt.Fprintf(&b, " AND recorded_at >= $%d", argNum)
		args = append(args, *f.Since)
		argNum++
	}

	if f.Until != nil {
		fmt.Fprintf(&b, " AND recorded_at < $%d", argNum)
		args = append(args, *f.Until)
		argNum++
	}

	b.WriteString(" ORDER BY recorded_at DESC, cycle DESC")

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	fmt.Fprintf(&b, " LIMIT $%d", argNum)
	args = append(args, limit)
	argNum++

	if f.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argNum)
		args = append(args, f.Offset)
	}

	return b.String(), args
}

// InsertBrakeCommand records a brake command
func (p *Pool) InsertBrakeCommand(ctx context.Context, r BrakeRow) error {
	_, err := p.Exec(ctx, `
		INSERT INTO brake_commands
			(id, source, cycle, service_brake, emergency_brake, traction_cut, reasons, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Source, int64(r.Cycle), r.ServiceBrake, r.EmergencyBrake, r.TractionCutOff, r.Reasons, r.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert brake command: %w", err)
	}
	return nil
}

// InsertFault records a fault
func (p *Pool) InsertFault(ctx context.Context, r FaultRow) error {
	_, err := p.Exec(ctx, `
		INSERT INTO faults
			(id, source, cycle, kind, balise_group, reaction, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Source, int64(r.Cycle), r.Kind, r.Group, r.Reaction, r.Detail, r.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fault: %w", err)
	}
	return nil
}

// InsertTransition records a supervision transition
func (p *Pool) InsertTransition(ctx context.Context, r TransitionRow) error {
	_, err := p.Exec(ctx, `
		INSERT INTO supervision_transitions
			(id, source, cycle, mode, level, monitoring, supervision, est_front, speed, permitted, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Source, int64(r.Cycle), r.Mode, r.Level, r.Monitoring, r.Supervision,
		r.EstFront, r.Speed, r.Permitted, r.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// ListBrakeCommands retrieves recorded brake commands, newest first
func (p *Pool) ListBrakeCommands(ctx context.Context, filter Filter) ([]BrakeRow, error) {
	filter.Kind = ""
	query, args := filter.where(`
		SELECT id, source, cycle, service_brake, emergency_brake, traction_cut, reasons, recorded_at
		FROM brake_commands`, "")

	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query brake commands: %w", err)
	}
	defer rows.Close()

	var out []BrakeRow
	for rows.Next() {
		var r BrakeRow
		var cycle int64
		if err := rows.Scan(&r.ID, &r.Source, &cycle, &r.ServiceBrake, &r.EmergencyBrake,
			&r.TractionCutOff, &r.Reasons, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brake command: %w", err)
		}
		r.Cycle = uint64(cycle)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating brake commands: %w", err)
	}
	return out, nil
}

// ListFaults retrieves recorded faults, newest first
func (p *Pool) ListFaults(ctx context.Context, filter Filter) ([]FaultRow, error) {
	query, args := filter.where(`
		SELECT id, source, cycle, kind, balise_group, reaction, detail, recorded_at
		FROM faults`, "kind")

	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query faults: %w", err)
	}
	defer rows.Close()

	var out []FaultRow
	for rows.Next() {
		var r FaultRow
		var cycle int64
		if err := rows.Scan(&r.ID, &r.Source, &cycle, &r.Kind, &r.Group,
			&r.Reaction, &r.Detail, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fault: %w", err)
		}
		r.Cycle = uint64(cycle)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating faults: %w", err)
	}
	return out, nil
}

// ListTransitions retrieves recorded supervision transitions, newest first
func (p *Pool) ListTransitions(ctx context.Context, filter Filter) ([]TransitionRow, error) {
	query, args := filter.where(`
		SELECT id, source, cycle, mode, level, monitoring, supervision, est_front, speed, permitted, recorded_at
		FROM supervision_transitions`, "mode")

	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var r TransitionRow
		var cycle int64
		if err := rows.Scan(&r.ID, &r.Source, &cycle, &r.Mode, &r.Level, &r.Monitoring,
			&r.Supervision, &r.EstFront, &r.Speed, &r.Permitted, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		r.Cycle = uint64(cycle)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}
	return out, nil
}

// Transitions tracks the last supervision state per source so that only
// changes are recorded
type Transitions struct {
	last map[string]TransitionRow
}

// NewTransitions creates an empty transition tracker
func NewTransitions() *Transitions {
	return &Transitions{last: make(map[string]TransitionRow)}
}

// Changed reports whether a row differs from the last one seen for its source
// and remembers it. Not safe for concurrent use.
func (t *Transitions) Changed(r TransitionRow) bool {
	prev, ok := t.last[r.Source]
	t.last[r.Source] = r
	if !ok {
		return true
	}
	return prev.Mode != r.Mode || prev.Level != r.Level ||
		prev.Monitoring != r.Monitoring || prev.Supervision != r.Supervision
}
