package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/pkg/core"
)

// Tee forwards writes to a primary backend and every mirror. Loads are served
// by the primary only. A mirror failure is reported but never hides the
// primary result.
type Tee struct {
	primary Backend
	mirrors []Sink
}

// NewTee wraps primary so that changes are also sent to mirrors.
func NewTee(primary Backend, mirrors ...Sink) *Tee {
	return &Tee{primary: primary, mirrors: mirrors}
}

func (t *Tee) Init() error {
	if err := t.primary.Init(); err != nil {
		return err
	}
	var errs []error
	for _, m := range t.mirrors {
		if err := m.Init(); err != nil {
			errs = append(errs, fmt.Errorf("mirror init: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) Close() error {
	errs := []error{t.primary.Close()}
	for _, m := range t.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}

func (t *Tee) SaveVehicle(v *core.StoredVehicle) error {
	if err := t.primary.SaveVehicle(v); err != nil {
		return err
	}
	var errs []error
	for _, m := range t.mirrors {
		if err := m.SaveVehicle(v); err != nil {
			errs = append(errs, fmt.Errorf("mirror save %s: %w", v.UUID, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) DeleteVehicle(id uuid.UUID) error {
	if err := t.primary.DeleteVehicle(id); err != nil {
		return err
	}
	var errs []error
	for _, m := range t.mirrors {
		if err := m.DeleteVehicle(id); err != nil {
			errs = append(errs, fmt.Errorf("mirror delete %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) LoadVehicles() ([]core.StoredVehicle, error) {
	return t.primary.LoadVehicles()
}

// RecordCommand forwards to the primary and to every mirror that keeps a
// command history.
func (t *Tee) RecordCommand(e *core.CommandEvent) error {
	var errs []error
	if a, ok := t.primary.(Auditor); ok {
		errs = append(errs, a.RecordCommand(e))
	}
	for _, m := range t.mirrors {
		if a, ok := m.(Auditor); ok {
			if err := a.RecordCommand(e); err != nil {
				errs = append(errs, fmt.Errorf("mirror record: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
