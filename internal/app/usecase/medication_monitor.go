package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/app/streak"
	"github.com/fardannozami/healthsync/internal/domain"
)

const missedDoseGrace = 30 * time.Minute

type NotificationKind string

const (
	NotifyMissedDose NotificationKind = "missed_dose"
	NotifyLowStock   NotificationKind = "low_stock"
)

type Notification struct {
	Kind       NotificationKind
	MedicineID string
	Medicine   string
	Time       string
	Stock      int
	At         time.Time
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{log: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	switch note.Kind {
	case NotifyMissedDose:
		n.log.Info("missed dose", zap.String("medicine", note.Medicine), zap.String("time", note.Time))
	case NotifyLowStock:
		n.log.Info("low stock", zap.String("medicine", note.Medicine), zap.Int("stock", note.Stock))
	}
	return nil
}

// MedicationMonitor runs the periodic medication checks.
type MedicationMonitor struct {
	store    *store.Store
	gateway  *MutationGateway
	notifier Notifier
	log      *zap.Logger
}

func NewMedicationMonitor(st *store.Store, gateway *MutationGateway, notifier Notifier, logger *zap.Logger) *MedicationMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicationMonitor{
		store:    st,
		gateway:  gateway,
		notifier: notifier,
		log:      logger.Named("monitor"),
	}
}

// Tick processes the day rollover and, on ticks that fall on minute 30 of
// the hour, reports missed doses and low stock. Ticks in any other minute
// only run the rollover, so a skipped minute-30 tick skips that hour's
// reminders.
func (m *MedicationMonitor) Tick(ctx context.Context, now time.Time) ([]Notification, error) {
	m.gateway.ProcessDayRollover(now)
	if now.Minute() != 30 {
		return nil, nil
	}

	medicines := store.All(m.store, store.Medicines)
	ids := make([]string, 0, len(medicines))
	for id := range medicines {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	taken := m.store.Medication().TakenToday
	today := domain.DateKey(now)
	var notes []Notification
	for _, id := range ids {
		med := medicines[id]
		for _, at := range med.Times {
			scheduled, err := time.ParseInLocation(domain.DateLayout+" 15:04", today+" "+at, now.Location())
			if err != nil {
				m.log.Warn("skipping malformed dose time", zap.String("medicine", id), zap.String("time", at))
				continue
			}
			if now.Sub(scheduled) >= missedDoseGrace && !taken[streak.DoseKey(id, at)] {
				notes = append(notes, Notification{Kind: NotifyMissedDose, MedicineID: id, Medicine: med.Name, Time: at, At: now})
			}
		}
		if med.LowStockThreshold > 0 && med.Stock <= med.LowStockThreshold {
			notes = append(notes, Notification{Kind: NotifyLowStock, MedicineID: id, Medicine: med.Name, Stock: med.Stock, At: now})
		}
	}

	var errs []error
	for _, n := range notes {
		if err := m.notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return notes, errors.Join(errs...)
}

// Run calls Tick every interval until ctx is done.
func (m *MedicationMonitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := m.Tick(ctx, now); err != nil {
				m.log.Warn("monitor tick", zap.Error(err))
			}
		}
	}
}
