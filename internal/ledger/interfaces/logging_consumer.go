package interfaces

import (
	"context"
	"errors"
	"log"

	"fee-ledger/internal/eventing"
	"fee-ledger/internal/ledger/application/events"
	ledger "fee-ledger/internal/ledger/domain"
)

const loggingConsumerName = "ledger-activity-log"

// LoggingConsumer writes a line per delivered ledger event.
type LoggingConsumer struct {
	logger *log.Logger
}

// NewLoggingConsumer constructs a logging consumer.
func NewLoggingConsumer(logger *log.Logger) *LoggingConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingConsumer{logger: logger}
}

// Register subscribes the consumer to every ledger event on bus. With a
// processed store each event is logged at most once.
func (c *LoggingConsumer) Register(bus eventing.EventBus, processed eventing.ProcessedStore) error {
	if c == nil {
		return errors.New("ledger logging consumer: nil consumer")
	}
	if bus == nil {
		return errors.New("ledger logging consumer: nil bus")
	}
	samples := events.All()
	eventTypes := make([]string, 0, len(samples))
	for _, sample := range samples {
		eventTypes = append(eventTypes, eventing.EventType(sample))
	}
	eventing.SubscribeAll(bus, loggingConsumerName, c.Handle, processed, eventTypes...)
	return nil
}

// Handle logs one event.
func (c *LoggingConsumer) Handle(ctx context.Context, event any) error {
	_ = ctx
	switch e := event.(type) {
	case events.EntryCreated:
		c.logger.Printf("ledger entry created: entry=%s student=%s catalog=%s final=%s due=%s",
			e.EntryID, e.StudentID, e.CatalogEntryID, ledger.FormatMoney(e.FinalAmount), e.DueDate.Format("2006-01-02"))
	case events.PaymentRecorded:
		c.logger.Printf("ledger payment recorded: entry=%s student=%s amount=%s method=%s balance=%s status=%s",
			e.EntryID, e.StudentID, ledger.FormatMoney(e.Amount), e.Method, ledger.FormatMoney(e.Balance), e.Status)
	case events.DiscountAmended:
		c.logger.Printf("ledger discount amended: entry=%s student=%s discount=%s->%s final=%s",
			e.EntryID, e.StudentID, ledger.FormatMoney(e.PreviousDiscount), ledger.FormatMoney(e.NewDiscount), ledger.FormatMoney(e.NewFinal))
	case events.EntryWaived:
		c.logger.Printf("ledger entry waived: entry=%s student=%s reason=%q", e.EntryID, e.StudentID, e.Reason)
	case events.EntryDeleted:
		c.logger.Printf("ledger entry deleted: entry=%s student=%s", e.EntryID, e.StudentID)
	case events.EntryStatusChanged:
		c.logger.Printf("ledger entry status changed: entry=%s student=%s %s->%s", e.EntryID, e.StudentID, e.From, e.To)
	default:
		return errors.New("ledger logging consumer: unexpected event")
	}
	return nil
}
