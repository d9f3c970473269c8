package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы RFQ
const (
	RFQStatusPending   = "pending"
	RFQStatusAssigned  = "assigned"
	RFQStatusCompleted = "completed"
	RFQStatusCancelled = "cancelled"
)

// Типы RFQ
const (
	RFQTypeDirect = "direct"
	RFQTypeWizard = "wizard"
	RFQTypePublic = "public"
)

// Статусы предложения вендора
const (
	QuoteStatusSubmitted = "submitted"
	QuoteStatusAccepted  = "accepted"
	QuoteStatusRejected  = "rejected"
	QuoteStatusRevised   = "revised"
)

// Статусы переговоров
const (
	ThreadStatusOpen      = "open"
	ThreadStatusAccepted  = "accepted"
	ThreadStatusRejected  = "rejected"
	ThreadStatusCancelled = "cancelled"
	ThreadStatusExpired   = "expired"
)

// Статусы встречного предложения
const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusCancelled = "cancelled"
	OfferStatusExpired   = "expired"
)

const (
	SideBuyer  = "buyer"
	SideVendor = "vendor"
)

// Статусы заказа
const (
	OrderStatusCreated   = "created"
	OrderStatusActive    = "active"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusDisputed  = "disputed"
)

// Этапы найма
const (
	ApplicationApplied     = "applied"
	ApplicationScreened    = "screened"
	ApplicationShortlisted = "shortlisted"
	ApplicationInterview   = "interview"
	ApplicationOffer       = "offer"
	ApplicationHired       = "hired"
	ApplicationRejected    = "rejected"
)

const VendorStatusActive = "active"

// Профиль пользователя
type Profile struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"fullName"`
	Email     *string   `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone"`
	RFQTier   *string   `db:"rfq_tier" json:"rfqTier"`
	Location  *string   `db:"location" json:"location"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Вендор (id совпадает с id пользователя)
type Vendor struct {
	ID           string    `db:"id" json:"id"`
	BusinessName string    `db:"business_name" json:"businessName"`
	Email        *string   `db:"email" json:"email"`
	Phone        *string   `db:"phone" json:"phone"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Контакт, раскрываемый после принятия
type Contact struct {
	Name  string  `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// Сущность RFQ
type RFQ struct {
	ID                   string     `db:"id" json:"id"`
	UserID               *string    `db:"user_id" json:"userId"`
	GuestEmail           *string    `db:"guest_email" json:"guestEmail,omitempty"`
	GuestPhone           *string    `db:"guest_phone" json:"guestPhone,omitempty"`
	GuestPhoneVerifiedAt *time.Time `db:"guest_phone_verified_at" json:"guestPhoneVerifiedAt,omitempty"`
	RFQType              string     `db:"rfq_type" json:"rfqType" validate:"required,oneof=direct wizard public"`
	CategorySlug         string     `db:"category_slug" json:"categorySlug" validate:"required"`
	JobTypeSlug          string     `db:"job_type_slug" json:"jobTypeSlug" validate:"required"`
	Title                string     `db:"title" json:"title"`
	FormData             JSONMap    `db:"form_data" json:"formData"`
	Status               string     `db:"status" json:"status"`
	AssignedVendorID     *string    `db:"assigned_vendor_id" json:"assignedVendorId"`
	AssignedAt           *time.Time `db:"assigned_at" json:"assignedAt"`
	ClosedAt             *time.Time `db:"closed_at" json:"closedAt"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"-"`
}

// IsOwnedBy сообщает, создан ли RFQ этим пользователем
func (r *RFQ) IsOwnedBy(userID string) bool {
	return userID != "" && r.UserID != nil && *r.UserID == userID
}

// Ответ вендора на RFQ
type Quote struct {
	ID          string          `db:"id" json:"id"`
	RFQID       string          `db:"rfq_id" json:"rfqId"`
	VendorID    string          `db:"vendor_id" json:"vendorId"`
	QuotedPrice decimal.Decimal `db:"quoted_price" json:"quotedPrice"`
	Timeline    string          `db:"timeline" json:"timeline"`
	Description string          `db:"description" json:"description"`
	Status      string          `db:"status" json:"status"`
	DecidedAt   *time.Time      `db:"decided_at" json:"decidedAt"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// Ветка переговоров по одному предложению
type NegotiationThread struct {
	ID              string          `db:"id" json:"id"`
	QuoteID         string          `db:"quote_id" json:"quoteId"`
	RFQID           string          `db:"rfq_id" json:"rfqId"`
	BuyerID         string          `db:"buyer_id" json:"buyerId"`
	VendorID        string          `db:"vendor_id" json:"vendorId"`
	Status          string          `db:"status" json:"status"`
	OriginalPrice   decimal.Decimal `db:"original_price" json:"originalPrice"`
	CurrentPrice    decimal.Decimal `db:"current_price" json:"currentPrice"`
	RoundCount      int             `db:"round_count" json:"roundCount"`
	MaxRounds       int             `db:"max_rounds" json:"maxRounds"`
	AcceptedOfferID *string         `db:"accepted_offer_id" json:"acceptedOfferId"`
	Flagged         bool            `db:"flagged" json:"flagged"`
	ClosedAt        *time.Time      `db:"closed_at" json:"closedAt"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsParticipant проверяет, является ли пользователь стороной переговоров
func (t *NegotiationThread) IsParticipant(userID string) bool {
	return userID != "" && (userID == t.BuyerID || userID == t.VendorID)
}

// Counterpart возвращает вторую сторону
func (t *NegotiationThread) Counterpart(userID string) string {
	if userID == t.BuyerID {
		return t.VendorID
	}
	return t.BuyerID
}

// SideOf возвращает buyer или vendor
func (t *NegotiationThread) SideOf(userID string) string {
	if userID == t.BuyerID {
		return SideBuyer
	}
	return SideVendor
}

// Встречное предложение
type CounterOffer struct {
	ID              string          `db:"id" json:"id"`
	ThreadID        string          `db:"thread_id" json:"threadId"`
	ProposedBy      string          `db:"proposed_by" json:"proposedBy"`
	ProposerSide    string          `db:"proposer_side" json:"proposerSide"`
	ProposedPrice   decimal.Decimal `db:"proposed_price" json:"proposedPrice"`
	ScopeChanges    *string         `db:"scope_changes" json:"scopeChanges"`
	DeliveryDate    *string         `db:"delivery_date" json:"deliveryDate"`
	PaymentTerms    *string         `db:"payment_terms" json:"paymentTerms"`
	Message         *string         `db:"message" json:"message"`
	RoundNumber     int             `db:"round_number" json:"roundNumber"`
	Status          string          `db:"status" json:"status"`
	ResponseBy      time.Time       `db:"response_by" json:"responseBy"`
	RespondedAt     *time.Time      `db:"responded_at" json:"respondedAt"`
	RejectionReason *string         `db:"rejection_reason" json:"rejectionReason"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// Вопрос-ответ внутри переговоров
type QAItem struct {
	ID         string     `db:"id" json:"id"`
	ThreadID   string     `db:"thread_id" json:"threadId"`
	AskedBy    string     `db:"asked_by" json:"askedBy"`
	Question   string     `db:"question" json:"question"`
	Answer     *string    `db:"answer" json:"answer"`
	AnsweredBy *string    `db:"answered_by" json:"answeredBy"`
	AnsweredAt *time.Time `db:"answered_at" json:"answeredAt"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Ревизия цены предложения
type QuoteRevision struct {
	ID        string          `db:"id" json:"id"`
	QuoteID   string          `db:"quote_id" json:"quoteId"`
	ThreadID  string          `db:"thread_id" json:"threadId"`
	RevisedBy string          `db:"revised_by" json:"revisedBy"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Reason    string          `db:"reason" json:"reason"`
	Notes     *string         `db:"notes" json:"notes"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// Жалоба на переговоры
type NegotiationReport struct {
	ID           string    `db:"id" json:"id"`
	ThreadID     string    `db:"thread_id" json:"threadId"`
	ReportedBy   string    `db:"reported_by" json:"reportedBy"`
	ReportedUser string    `db:"reported_user" json:"reportedUser"`
	Reason       string    `db:"reason" json:"reason"`
	Details      *string   `db:"details" json:"details"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Заказ, созданный после принятия
type JobOrder struct {
	ID              string          `db:"id" json:"id"`
	RFQID           *string         `db:"rfq_id" json:"rfqId"`
	QuoteID         *string         `db:"quote_id" json:"quoteId"`
	NegotiationID   *string         `db:"negotiation_id" json:"negotiationId"`
	ApplicationID   *string         `db:"application_id" json:"applicationId"`
	BuyerID         string          `db:"buyer_id" json:"buyerId"`
	VendorID        string          `db:"vendor_id" json:"vendorId"`
	AgreedPrice     decimal.Decimal `db:"agreed_price" json:"agreedPrice"`
	Terms           *string         `db:"terms" json:"terms"`
	StartDate       *string         `db:"start_date" json:"startDate"`
	Location        *string         `db:"location" json:"location"`
	Milestones      JSONList        `db:"milestones" json:"milestones"`
	Status          string          `db:"status" json:"status"`
	BuyerConfirmed  bool            `db:"buyer_confirmed" json:"buyerConfirmed"`
	VendorConfirmed bool            `db:"vendor_confirmed" json:"vendorConfirmed"`
	CancelReason    *string         `db:"cancel_reason" json:"cancelReason"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsParty проверяет, участвует ли пользователь в заказе
func (o *JobOrder) IsParty(userID string) bool {
	return userID != "" && (userID == o.BuyerID || userID == o.VendorID)
}

// Вакансия
type Listing struct {
	ID         string              `db:"id" json:"id"`
	EmployerID string              `db:"employer_id" json:"employerId"`
	Title      string              `db:"title" json:"title"`
	Location   *string             `db:"location" json:"location"`
	PayMax     decimal.NullDecimal `db:"pay_max" json:"payMax"`
	Status     string              `db:"status" json:"status"`
	CreatedAt  time.Time           `db:"created_at" json:"createdAt"`
}

// Отклик кандидата
type Application struct {
	ID              string        `db:"id" json:"id"`
	ListingID       string        `db:"listing_id" json:"listingId"`
	CandidateID     string        `db:"candidate_id" json:"candidateId"`
	Status          string        `db:"status" json:"status"`
	StatusHistory   StatusHistory `db:"status_history" json:"statusHistory"`
	StatusUpdatedAt *time.Time    `db:"status_updated_at" json:"statusUpdatedAt"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
}

// Запись в истории статусов отклика
type StatusChange struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy string    `json:"changedBy"`
	At        time.Time `json:"at"`
}

// Постоянный доступ работодателя к контактам кандидата
type ContactUnlock struct {
	ID          string    `db:"id" json:"id"`
	EmployerID  string    `db:"employer_id" json:"employerId"`
	CandidateID string    `db:"candidate_id" json:"candidateId"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Уведомление пользователю
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	Metadata  JSONMap   `db:"metadata" json:"metadata"`
	Read      bool      `db:"is_read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
