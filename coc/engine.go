/*
engine.go - Engine composition

PURPOSE:
  The Engine bundles the repositories, calendar, lock manager, and clock
  behind one handle. Every public operation of the service hangs off it:
  logging (validate.go), certification (certify.go), credits and balance
  (credits.go), queries (query.go), recovery (recovery.go).

CONSTRUCTION:
  engine := coc.New(store, coc.WithClock(clock), coc.WithLogger(log))
*/
package coc

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/govhr/coc-engine/docstore"
)

type Engine struct {
	store docstore.Store

	employees    *EmployeeStore
	logs         *LogStore
	batches      *BatchStore
	ledger       *LedgerStore
	certificates *CertificateStore
	holidays     *HolidayStore
	config       *ConfigStore
	libraries    *LibraryStore

	calendar *CalendarService
	locks    *LockManager
	intents  *IntentStore

	now func() time.Time
	log zerolog.Logger
}

type Option func(*Engine)

// WithClock overrides the wall clock (tests pin it).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func New(store docstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		employees:    NewEmployeeStore(store),
		logs:         NewLogStore(store),
		batches:      NewBatchStore(store),
		ledger:       NewLedgerStore(store),
		certificates: NewCertificateStore(store),
		holidays:     NewHolidayStore(store),
		config:       NewConfigStore(store),
		libraries:    NewLibraryStore(store),
		now:          time.Now,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.calendar = NewCalendarService(e.holidays, e.config)
	e.locks = NewLockManager(store, func() time.Time { return e.now() })
	e.intents = NewIntentStore(store)
	return e
}

// Accessors for the sub-stores the API layer uses directly.

func (e *Engine) Store() docstore.Store           { return e.store }
func (e *Engine) Employees() *EmployeeStore       { return e.employees }
func (e *Engine) Holidays() *HolidayStore         { return e.holidays }
func (e *Engine) Libraries() *LibraryStore        { return e.libraries }
func (e *Engine) Config() *ConfigStore            { return e.config }
func (e *Engine) Calendar() *CalendarService      { return e.calendar }
func (e *Engine) Certificates() *CertificateStore { return e.certificates }
