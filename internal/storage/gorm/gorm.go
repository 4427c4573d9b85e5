// Package gormstorage implements storage.Backend on top of GORM. Saves,
// deletions and command logs are queued and written in batches by a
// background writer; loads flush the queues first so they always see every
// accepted write. Dialect concerns live in the sqlite and postgres packages.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OCAP2/vehicles/internal/database"
	"github.com/OCAP2/vehicles/internal/model"
	"github.com/OCAP2/vehicles/internal/model/convert"
	"github.com/OCAP2/vehicles/internal/queue"
	"github.com/OCAP2/vehicles/pkg/core"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

// queues holds the pending writes.
type queues struct {
	Saves    *queue.Queue[uuid.UUID, model.Vehicle]
	Deletes  *queue.Queue[uuid.UUID, struct{}]
	Commands *queue.Queue[uint64, model.CommandLog]
}

func newQueues() *queues {
	return &queues{
		Saves:    queue.New[uuid.UUID, model.Vehicle](),
		Deletes:  queue.New[uuid.UUID, struct{}](),
		Commands: queue.New[uint64, model.CommandLog](),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues
	seq    atomic.Uint64

	// flushMu serialises drains from the writer and from LoadVehicles.
	flushMu  sync.Mutex
	stopChan chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend has no database")
	}

	b.deps.Logger.Info().Msg("Migrating schema")
	if _, err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.stopped = make(chan struct{})
	go b.writer()
	return nil
}

// Close stops the writer and flushes whatever is still queued.
func (b *Backend) Close() error {
	b.once.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.stopped
		}
	})
	if b.deps.DB == nil {
		return nil
	}
	return b.Flush()
}

// SaveVehicle converts and queues a vehicle. A queued deletion of the same
// vehicle is dropped.
func (b *Backend) SaveVehicle(v *core.StoredVehicle) error {
	row, err := convert.CoreToVehicle(*v)
	if err != nil {
		return err
	}
	b.queues.Deletes.Remove(v.UUID)
	b.queues.Saves.Push(v.UUID, row)
	return nil
}

// DeleteVehicle queues a deletion, superseding any queued save.
func (b *Backend) DeleteVehicle(id uuid.UUID) error {
	b.queues.Saves.Remove(id)
	b.queues.Deletes.Push(id, struct{}{})
	return nil
}

// RecordCommand queues a command log row.
func (b *Backend) RecordCommand(e *core.CommandEvent) error {
	b.queues.Commands.Push(b.seq.Add(1), convert.CoreToCommandLog(*e))
	return nil
}

// LoadVehicles flushes pending writes and returns every stored vehicle
// ordered by UUID. Rows that cannot be converted are reported in the joined
// error; the rest are returned.
func (b *Backend) LoadVehicles() ([]core.StoredVehicle, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}

	var rows []model.Vehicle
	if err := b.deps.DB.Order("uuid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}

	out := make([]core.StoredVehicle, 0, len(rows))
	var errs []error
	for _, row := range rows {
		v, err := convert.VehicleToCore(row)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}

// Commands returns the most recent command logs, oldest first.
func (b *Backend) Commands(limit int) ([]core.CommandEvent, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}

	var rows []model.CommandLog
	if err := b.deps.DB.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query command logs: %w", err)
	}
	out := make([]core.CommandEvent, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = convert.CommandLogToCore(row)
	}
	return out, nil
}

// Pending reports how many writes are queued.
func (b *Backend) Pending() int {
	return b.queues.Saves.Len() + b.queues.Deletes.Len() + b.queues.Commands.Len()
}

// Flush writes every queued item now.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	return errors.Join(
		b.writeDeletes(),
		b.writeSaves(),
		b.writeCommands(),
	)
}

func (b *Backend) writeDeletes() error {
	ids, items := b.queues.Deletes.GetAndEmpty()
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	if err := b.deps.DB.Where("uuid IN ?", keys).Delete(&model.Vehicle{}).Error; err != nil {
		b.queues.Deletes.Requeue(ids, items)
		return fmt.Errorf("error deleting vehicles: %w", err)
	}
	return nil
}

func (b *Backend) writeSaves() error {
	return writeQueue(b.deps.DB, b.queues.Saves, "vehicles", clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		UpdateAll: true,
	})
}

func (b *Backend) writeCommands() error {
	return writeQueue(b.deps.DB, b.queues.Commands, "command logs", nil)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back on the queue.
func writeQueue[K comparable, T any](db *gorm.DB, q *queue.Queue[K, T], name string, conflict clause.Expression) error {
	if q.Empty() {
		return nil
	}

	keys, items := q.GetAndEmpty()
	err := db.Transaction(func(tx *gorm.DB) error {
		if conflict != nil {
			tx = tx.Clauses(conflict)
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		q.Requeue(keys, items)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	return nil
}

// writer periodically drains the queues into the DB.
func (b *Backend) writer() {
	defer close(b.stopped)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if b.Pending() == 0 {
				continue
			}
			start := time.Now()
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error().Err(err).Msg("DB writer flush failed")
				continue
			}
			b.deps.Logger.Debug().Dur("duration", time.Since(start)).Msg("DB writer flushed")
		}
	}
}
