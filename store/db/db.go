package db

import (
	"github.com/pkg/errors"

	"github.com/lexipoint/lexipoint/internal/profile"
	"github.com/lexipoint/lexipoint/store"
	"github.com/lexipoint/lexipoint/store/db/file"
	"github.com/lexipoint/lexipoint/store/db/postgres"
	"github.com/lexipoint/lexipoint/store/db/sqlite"
)

// NewDriver creates the storage driver selected by the profile. The choice
// happens exactly once at process start; callers never branch on the backend
// again.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "file":
		driver, err = file.NewDriver(profile)
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown driver %q: only 'file', 'sqlite' and 'postgres' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage driver")
	}
	return driver, nil
}
