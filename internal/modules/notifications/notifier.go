package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/modules/portfolio"
)

// Policy is the runtime notification policy. It is read on every check so
// settings changes apply without a restart.
type Policy struct {
	EmailEnabled bool
	Cooldown     time.Duration
}

// StateStore persists notification State
type StateStore interface {
	Load() (State, error)
	Save(State) error
}

// Outcome reports what a check sent
type Outcome struct {
	MonthlySent   bool `json:"monthly_sent"`
	ThresholdSent bool `json:"threshold_sent"`
}

// SentAny reports whether any email went out
func (o Outcome) SentAny() bool {
	return o.MonthlySent || o.ThresholdSent
}

// Notifier decides when to email and records what was sent.
// Checks are serialized so two triggers cannot send the same alert twice.
type Notifier struct {
	store  StateStore
	mailer Mailer
	policy func() Policy
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger

	mu sync.Mutex
}

// NewNotifier creates a notifier. loc is the calendar used for the monthly reminder.
func NewNotifier(store StateStore, mailer Mailer, policy func() Policy, loc *time.Location, log zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		store:  store,
		mailer: mailer,
		policy: policy,
		loc:    loc,
		now:    time.Now,
		log:    log.With().Str("service", "notifications").Logger(),
	}
}

// SetClock replaces the time source
func (n *Notifier) SetClock(now func() time.Time) {
	n.now = now
}

// State returns the stored notification state
func (n *Notifier) State() (State, error) {
	return n.store.Load()
}

// CheckThreshold sends a threshold alert for alerts when one is due.
// Nothing is sent when email is disabled or alerts is empty.
func (n *Notifier) CheckThreshold(ctx context.Context, view *portfolio.PortfolioView, alerts []string, reason string) (bool, error) {
	if !n.policy().EmailEnabled || len(alerts) == 0 {
		return false, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	st, err := n.store.Load()
	if err != nil {
		return false, err
	}
	return n.threshold(ctx, &st, view, alerts, reason)
}

// RunDaily sends the monthly reminder on the first workday of the month
// (once per month) and then a threshold alert when one is due.
func (n *Notifier) RunDaily(ctx context.Context, view *portfolio.PortfolioView, alerts []string, reason string) (Outcome, error) {
	var out Outcome
	if !n.policy().EmailEnabled {
		return out, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	st, err := n.store.Load()
	if err != nil {
		return out, err
	}

	today := n.now().In(n.loc)
	month := today.Format("2006-01")
	if sameDay(FirstWorkdayOfMonth(today), today) && st.MonthlyLastSent != month {
		subject := fmt.Sprintf("Permanent portfolio: %s rebalance review reminder (%s)", month, reason)
		if err := n.send(ctx, &st, subject, view); err != nil {
			return out, err
		}
		st.MonthlyLastSent = month
		if err := n.store.Save(st); err != nil {
			return out, err
		}
		out.MonthlySent = true
	}

	if len(alerts) > 0 {
		sent, err := n.threshold(ctx, &st, view, alerts, reason)
		if err != nil {
			return out, err
		}
		out.ThresholdSent = sent
	}
	return out, nil
}

func (n *Notifier) threshold(ctx context.Context, st *State, view *portfolio.PortfolioView, alerts []string, reason string) (bool, error) {
	hash := WarningsHash(alerts)
	now := n.now()
	if !ShouldSendThreshold(*st, hash, n.policy().Cooldown, now) {
		return false, nil
	}

	subject := fmt.Sprintf("Permanent portfolio: rebalance threshold crossed (%s)", reason)
	if err := n.send(ctx, st, subject, view); err != nil {
		return false, err
	}
	st.ThresholdLastSent = now.UTC()
	st.ThresholdHash = hash
	if err := n.store.Save(*st); err != nil {
		return false, err
	}
	return true, nil
}

// send mails the report. A delivery failure is recorded in the state.
func (n *Notifier) send(ctx context.Context, st *State, subject string, view *portfolio.PortfolioView) error {
	if err := n.mailer.Send(ctx, subject, FormatReport(view)); err != nil {
		st.LastError = err.Error()
		if saveErr := n.store.Save(*st); saveErr != nil {
			n.log.Error().Err(saveErr).Msg("Failed to record notification error")
		}
		n.log.Error().Err(err).Str("subject", subject).Msg("Failed to send notification")
		return fmt.Errorf("failed to send notification: %w", err)
	}
	st.LastError = ""
	return nil
}

// ReportSource produces the view and rebalance alerts a report is built from
type ReportSource interface {
	ReportView(ctx context.Context) (*portfolio.PortfolioView, []string, error)
}

// DailyJob runs Notifier.RunDaily on a schedule
type DailyJob struct {
	notifier *Notifier
	source   ReportSource
	timeout  time.Duration
	log      zerolog.Logger
}

// NewDailyJob creates the daily notification job
func NewDailyJob(notifier *Notifier, source ReportSource, log zerolog.Logger) *DailyJob {
	return &DailyJob{
		notifier: notifier,
		source:   source,
		timeout:  2 * time.Minute,
		log:      log.With().Str("job", "daily_report").Logger(),
	}
}

// Run executes the job
func (j *DailyJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	view, alerts, err := j.source.ReportView(ctx)
	if err != nil {
		return fmt.Errorf("failed to build report view: %w", err)
	}
	out, err := j.notifier.RunDaily(ctx, view, alerts, "scheduled")
	if err != nil {
		return err
	}
	if out.SentAny() {
		j.log.Info().
			Bool("monthly", out.MonthlySent).
			Bool("threshold", out.ThresholdSent).
			Msg("Daily report sent")
	}
	return nil
}

// Name returns the job name for scheduler
func (j *DailyJob) Name() string {
	return "daily_report"
}
