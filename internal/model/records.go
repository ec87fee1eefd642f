package model

import "time"

// Payment statuses, per spec.md §3.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCanceled  = "CANCELED"
)

// PaymentPrecedence is the total order used to resolve equal-timestamp
// events without regressing a stronger status (spec.md §4.7).
var PaymentPrecedence = map[string]int{
	PaymentStatusPending:   0,
	PaymentStatusFailed:    1,
	PaymentStatusSucceeded: 2,
	PaymentStatusCanceled:  3,
}

// PaymentRecord mirrors spec.md §3's PaymentRecord.
type PaymentRecord struct {
	UserID            int64      `gorm:"index;not null" json:"user_id"`
	BusinessPaymentID string     `gorm:"type:varchar(128);primaryKey" json:"business_payment_id"`
	Status            string     `gorm:"type:varchar(20);not null" json:"status"`
	PaymentIntentID   *string    `gorm:"type:varchar(128);uniqueIndex" json:"payment_intent_id"`
	ChargeID          *string    `gorm:"type:varchar(128)" json:"charge_id"`
	PromotionOutcome  *string    `gorm:"type:varchar(32)" json:"promotion_outcome"`
	PromotionCouponID *string    `gorm:"type:varchar(128)" json:"promotion_coupon_id"`
	PromotionCodeID   *string    `gorm:"type:varchar(128)" json:"promotion_code_id"`
	LastEventCreated  *int64     `json:"last_event_created_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentRecord) TableName() string { return "payment_record" }

// Subscription statuses, per spec.md §3.
const (
	SubscriptionStatusIncomplete = "INCOMPLETE"
	SubscriptionStatusActive     = "ACTIVE"
	SubscriptionStatusPastDue    = "PAST_DUE"
	SubscriptionStatusCanceled   = "CANCELED"
)

var SubscriptionPrecedence = map[string]int{
	SubscriptionStatusIncomplete: 0,
	SubscriptionStatusPastDue:    1,
	SubscriptionStatusActive:     2,
	SubscriptionStatusCanceled:   3,
}

// SubscriptionRecord mirrors spec.md §3's SubscriptionRecord.
type SubscriptionRecord struct {
	UserID                 int64     `gorm:"index;not null" json:"user_id"`
	BusinessSubscriptionID string    `gorm:"type:varchar(128);primaryKey" json:"business_subscription_id"`
	Status                 string    `gorm:"type:varchar(20);not null" json:"status"`
	CustomerID             *string   `gorm:"type:varchar(128)" json:"customer_id"`
	SubscriptionID         *string   `gorm:"type:varchar(128);uniqueIndex" json:"subscription_id"`
	PromotionOutcome       *string   `gorm:"type:varchar(32)" json:"promotion_outcome"`
	PromotionCouponID      *string   `gorm:"type:varchar(128)" json:"promotion_coupon_id"`
	PromotionCodeID        *string   `gorm:"type:varchar(128)" json:"promotion_code_id"`
	LastEventCreated       *int64    `json:"last_event_created_at"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SubscriptionRecord) TableName() string { return "subscription_record" }

// Refund statuses, per spec.md §3. Refunds have no precedence ladder: their
// lifecycle is not re-entrant (spec.md §4.7, step 4).
const (
	RefundStatusPending   = "PENDING"
	RefundStatusSucceeded = "SUCCEEDED"
	RefundStatusFailed    = "FAILED"
)

// RefundRecord mirrors spec.md §3's RefundRecord. BusinessPaymentID is a
// reference by id-value only; no FK is enforced (no inter-record pointers).
type RefundRecord struct {
	UserID            int64     `gorm:"index;not null" json:"user_id"`
	BusinessRefundID  string    `gorm:"type:varchar(128);primaryKey" json:"business_refund_id"`
	BusinessPaymentID string    `gorm:"type:varchar(128);index;not null" json:"business_payment_id"`
	Status            string    `gorm:"type:varchar(20);not null" json:"status"`
	PaymentIntentID   *string   `gorm:"type:varchar(128)" json:"payment_intent_id"`
	RefundID          *string   `gorm:"type:varchar(128);uniqueIndex" json:"refund_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RefundRecord) TableName() string { return "refund_record" }
