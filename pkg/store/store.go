package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order not found")

// WatchStatus tracks the lifecycle of the settlement watch attached to an
// order. FAILED is part of the vocabulary but nothing writes it today.
type WatchStatus string

const (
	WatchNotStarted WatchStatus = "NOT_STARTED"
	WatchInitiated  WatchStatus = "INITIATED"
	WatchSuccess    WatchStatus = "SUCCESS"
	WatchFailed     WatchStatus = "FAILED"
)

// Outcome is the terminal result reported by the execution network. Written
// exactly once, by the settlement watcher.
type Outcome string

const (
	OutcomeNone     Outcome = "NONE"
	OutcomeExecuted Outcome = "EXECUTED"
	OutcomeExpired  Outcome = "EXPIRED"
	OutcomeRefunded Outcome = "REFUNDED"
)

// Derived is the coarse status exposed to merchants.
type Derived string

const (
	DerivedPending    Derived = "PENDING"
	DerivedProcessing Derived = "PROCESSING"
	DerivedCompleted  Derived = "COMPLETED"
	DerivedUnknown    Derived = "UNKNOWN"
)

// Order is a merchant payout request settled through the execution network.
type Order struct {
	gorm.Model

	UID         string `gorm:"uniqueIndex"`
	Owner       string `gorm:"index"`
	Merchant    string
	OutChain    string
	OutToken    string
	UsdCents    int64
	DeadlineSec int64
	Deadline    int64

	WatchStatus      WatchStatus
	ExecutionOutcome Outcome
}

// DerivedStatus collapses the (WatchStatus, ExecutionOutcome) pair into the
// merchant-facing status. Expired and refunded settlements intentionally have
// no dedicated label and fall through to UNKNOWN.
func (o Order) DerivedStatus() Derived {
	switch {
	case o.WatchStatus == WatchNotStarted && o.ExecutionOutcome == OutcomeNone:
		return DerivedPending
	case o.WatchStatus == WatchInitiated && o.ExecutionOutcome == OutcomeNone:
		return DerivedProcessing
	case o.WatchStatus == WatchSuccess && o.ExecutionOutcome == OutcomeExecuted:
		return DerivedCompleted
	default:
		return DerivedUnknown
	}
}

// Watch is the persisted registry of settlement watches. One row per
// submitted execution, keyed by execution hash, so a restart can re-attach
// to watches that were in flight.
type Watch struct {
	gorm.Model

	ExecutionHash string `gorm:"uniqueIndex"`
	QuoteID       string
	OrderUID      string
	Owner         string
	SrcChain      string
	DstChain      string
	Secrets       string
	Done          bool
}

type Store interface {
	// CreateOrder persists a new order, assigning a fresh uid and computing
	// the deadline timestamp if the caller did not.
	CreateOrder(order *Order) error

	OrderByUID(uid string) (Order, error)

	// OrdersByOwner returns a page of the owner's orders, newest first,
	// along with the total count.
	OrdersByOwner(owner string, page, limit int) ([]Order, int64, error)

	UpdateWatchStatus(uid string, status WatchStatus) error

	// UpdateSettlement writes the terminal watch status and outcome.
	UpdateSettlement(uid string, status WatchStatus, outcome Outcome) error

	// PutWatch registers a settlement watch in the persisted registry.
	PutWatch(watch *Watch) error

	// PendingWatches returns all registry rows that have not finished.
	PendingWatches() ([]Watch, error)

	FinishWatch(executionHash string) error
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Order{}, &Watch{}); err != nil {
		return nil, err
	}

	// Set max connections
	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(5)
	sqlDb.SetConnMaxIdleTime(10 * time.Minute)
	return &store{db: db}, nil
}

func (store *store) CreateOrder(order *Order) error {
	if order.UID == "" {
		order.UID = uuid.NewString()
	}
	if order.Deadline == 0 {
		order.Deadline = time.Now().Unix() + order.DeadlineSec
	}
	if order.WatchStatus == "" {
		order.WatchStatus = WatchNotStarted
	}
	if order.ExecutionOutcome == "" {
		order.ExecutionOutcome = OutcomeNone
	}
	return store.db.Create(order).Error
}

func (store *store) OrderByUID(uid string) (Order, error) {
	var order Order
	if err := store.db.Where("uid = ?", uid).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return order, nil
}

func (store *store) OrdersByOwner(owner string, page, limit int) ([]Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var total int64
	if err := store.db.Model(&Order{}).Where("owner = ?", owner).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []Order
	err := store.db.Where("owner = ?", owner).
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	return orders, total, err
}

func (store *store) UpdateWatchStatus(uid string, status WatchStatus) error {
	return store.db.Table("orders").Where("uid = ?", uid).
		Update("watch_status", status).Error
}

func (store *store) UpdateSettlement(uid string, status WatchStatus, outcome Outcome) error {
	return store.db.Table("orders").Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"watch_status":      status,
			"execution_outcome": outcome,
		}).Error
}

func (store *store) PutWatch(watch *Watch) error {
	return store.db.Create(watch).Error
}

func (store *store) PendingWatches() ([]Watch, error) {
	var watches []Watch
	err := store.db.Where("done = ?", false).Find(&watches).Error
	return watches, err
}

func (store *store) FinishWatch(executionHash string) error {
	return store.db.Table("watches").Where("execution_hash = ?", executionHash).
		Update("done", true).Error
}
