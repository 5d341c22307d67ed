package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the engine.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Data is the data directory
	Data string
	// Driver is the storage driver (file, sqlite or postgres)
	Driver string
	// DSN points to where lexipoint stores its own data.
	// For the file driver this is the document path, for sqlite the database
	// file, for postgres a connection string.
	DSN string
	// Version is the current version of the engine
	Version string

	// Review tuning overrides. Zero values keep the shipped defaults.
	ReviewPenalty       float64
	ReviewShortInterval time.Duration
	ReviewMaxInterval   time.Duration
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and fills driver-dependent defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Driver {
	case "file", "sqlite", "postgres":
	case "":
		p.Driver = "file"
	default:
		return errors.Errorf("unknown driver %q: only 'file', 'sqlite' and 'postgres' are supported", p.Driver)
	}

	if p.ReviewPenalty < 0 || p.ReviewPenalty >= 1 {
		return errors.Errorf("review penalty %v out of range [0, 1)", p.ReviewPenalty)
	}
	if p.ReviewShortInterval < 0 || p.ReviewMaxInterval < 0 {
		return errors.New("review intervals must not be negative")
	}
	if p.ReviewShortInterval > 0 && p.ReviewMaxInterval > 0 && p.ReviewShortInterval > p.ReviewMaxInterval {
		return errors.New("the shortest review interval must not exceed the longest")
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.DSN == "" {
		switch p.Driver {
		case "file":
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("lexipoint_%s.json", p.Mode))
		case "sqlite":
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("lexipoint_%s.db", p.Mode))
		case "postgres":
			return errors.New("the postgres driver requires an explicit DSN")
		}
	}

	return nil
}
