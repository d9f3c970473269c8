// Package notify доставляет in-app уведомления и SMS по принципу best-effort:
// ошибка доставки пишется в лог и никогда не отменяет основную операцию.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rfqmarket/models"
)

// Типы уведомлений
const (
	TypeNewRFQ                = "new_rfq"
	TypeNewQuote              = "new_quote"
	TypeQuoteAccepted         = "quote_accepted"
	TypeQuoteRejected         = "quote_rejected"
	TypeNegotiationStarted    = "negotiation_started"
	TypeCounterOffer          = "counter_offer"
	TypeOfferAccepted         = "offer_accepted"
	TypeOfferRejected         = "offer_rejected"
	TypeOfferExpired          = "offer_expired"
	TypeNegotiationCancelled  = "negotiation_cancelled"
	TypeNegotiationQuestion   = "negotiation_question"
	TypeNegotiationAnswer     = "negotiation_answer"
	TypeJobOrderCreated       = "job_order_created"
	TypeJobOrderStatusChanged = "job_order_status"
	TypeApplicationStatus     = "application_status"
)

type Notification struct {
	UserID   string
	Type     string
	Title    string
	Body     string
	Metadata map[string]any
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type SMSMessage struct {
	PhoneNumber string
	Template    string
	Args        map[string]string
}

type SMSSender interface {
	Send(ctx context.Context, msg SMSMessage) error
}

type notificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// StoreNotifier сохраняет уведомление в таблицу notifications
type StoreNotifier struct {
	store notificationStore
}

func NewStoreNotifier(store notificationStore) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (s *StoreNotifier) Notify(ctx context.Context, n Notification) error {
	return s.store.CreateNotification(ctx, &models.Notification{
		ID:       uuid.NewString(),
		UserID:   n.UserID,
		Type:     n.Type,
		Title:    n.Title,
		Body:     n.Body,
		Metadata: models.JSONMap(n.Metadata),
	})
}

// LogSMSSender вместо шлюза пишет сообщение в лог
type LogSMSSender struct {
	log *zap.Logger
}

func NewLogSMSSender(log *zap.Logger) *LogSMSSender {
	return &LogSMSSender{log: log}
}

func (l *LogSMSSender) Send(ctx context.Context, msg SMSMessage) error {
	l.log.Info("sms",
		zap.String("phone", msg.PhoneNumber),
		zap.String("template", msg.Template),
		zap.Any("args", msg.Args),
	)
	return nil
}

// Dispatcher глушит ошибки доставки
type Dispatcher struct {
	notifier Notifier
	sms      SMSSender
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, sms SMSSender, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, sms: sms, log: log}
}

// Notify отправляет уведомления синхронно
func (d *Dispatcher) Notify(ctx context.Context, list ...Notification) {
	if d == nil || d.notifier == nil {
		return
	}
	for _, n := range list {
		if n.UserID == "" {
			continue
		}
		if err := d.notifier.Notify(ctx, n); err != nil {
			d.log.Warn("notification failed",
				zap.String("type", n.Type),
				zap.String("user_id", n.UserID),
				zap.Error(err),
			)
		}
	}
}

// NotifyAsync отправляет в фоне; отмена запроса доставку не прерывает
func (d *Dispatcher) NotifyAsync(ctx context.Context, list ...Notification) {
	if d == nil || d.notifier == nil || len(list) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Notify(ctx, list...)
	}()
}

// SMS отправляет сообщение, если задан номер
func (d *Dispatcher) SMS(ctx context.Context, msg SMSMessage) {
	if d == nil || d.sms == nil || msg.PhoneNumber == "" {
		return
	}
	if err := d.sms.Send(ctx, msg); err != nil {
		d.log.Warn("sms failed", zap.String("template", msg.Template), zap.Error(err))
	}
}

// Wait дожидается фоновых отправок (при остановке сервера и в тестах)
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
