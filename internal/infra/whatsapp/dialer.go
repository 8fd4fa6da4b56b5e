package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"attendance_tracker_bot/internal/domain/transport"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the local credential store
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
)

var errNoDevice = errors.New("no stored device for coordinator")

// OpenSQLite opens a local credential store for deployments without Postgres.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("open credential store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Dialer opens whatsmeow sessions whose linked-device credentials live in SQL.
type Dialer struct {
	container *sqlstore.Container
	logger    *logrus.Entry
}

// NewDialer prepares the device store tables in db. dialect is "postgres" or "sqlite3".
func NewDialer(db *sql.DB, dialect string, logger *logrus.Entry) (*Dialer, error) {
	container := sqlstore.NewWithDB(db, dialect, NewLogger(logger.WithField("component", "device-store")))
	if err := container.Upgrade(); err != nil {
		return nil, fmt.Errorf("failed to upgrade device store: %w", err)
	}
	return &Dialer{container: container, logger: logger}, nil
}

// Dial resumes the coordinator's stored device or starts linking a new one.
func (d *Dialer) Dial(ctx context.Context, coordinatorID string) (transport.Client, <-chan transport.Event, error) {
	device, err := d.device(coordinatorID)
	switch {
	case errors.Is(err, errNoDevice):
		device = d.container.NewDevice()
	case err != nil:
		return nil, nil, err
	}

	c := newClient(device, d.logger.WithField("coordinator_id", coordinatorID))
	if err := c.connect(ctx); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("connect session for %s: %w", coordinatorID, err)
	}
	return c, c.events, nil
}

func (d *Dialer) device(coordinatorID string) (*store.Device, error) {
	devices, err := d.container.GetAllDevices()
	if err != nil {
		return nil, fmt.Errorf("error listing stored devices: %w", err)
	}
	for _, dev := range devices {
		if dev.ID != nil && dev.ID.User == coordinatorID {
			return dev, nil
		}
	}
	return nil, errNoDevice
}

// Coordinators lists the accounts with stored credentials.
func (d *Dialer) Coordinators(context.Context) ([]string, error) {
	devices, err := d.container.GetAllDevices()
	if err != nil {
		return nil, fmt.Errorf("error listing stored devices: %w", err)
	}
	ids := make([]string, 0, len(devices))
	for _, dev := range devices {
		if dev.ID != nil {
			ids = append(ids, dev.ID.User)
		}
	}
	return ids, nil
}

// DeleteCredentials removes the coordinator's device. Missing credentials are not an error.
func (d *Dialer) DeleteCredentials(_ context.Context, coordinatorID string) error {
	dev, err := d.device(coordinatorID)
	if errors.Is(err, errNoDevice) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := dev.Delete(); err != nil {
		return fmt.Errorf("error deleting credentials of %s: %w", coordinatorID, err)
	}
	return nil
}
