package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultDriver(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir()}
	require.NoError(t, p.Validate())

	assert.Equal(t, "file", p.Driver)
	assert.Equal(t, filepath.Join(p.Data, "lexipoint_dev.json"), p.DSN)
}

func TestValidate_SqliteDSN(t *testing.T) {
	p := &Profile{Mode: "prod", Data: t.TempDir(), Driver: "sqlite"}
	require.NoError(t, p.Validate())

	assert.Equal(t, filepath.Join(p.Data, "lexipoint_prod.db"), p.DSN)
}

func TestValidate_UnknownMode(t *testing.T) {
	p := &Profile{Mode: "whatever", Data: t.TempDir()}
	require.NoError(t, p.Validate())

	assert.Equal(t, "demo", p.Mode)
}

func TestValidate_UnknownDriver(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "mysql"}
	assert.Error(t, p.Validate())
}

func TestValidate_ReviewTuning(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), ReviewPenalty: 0.05, ReviewShortInterval: time.Hour, ReviewMaxInterval: 48 * time.Hour}
	assert.NoError(t, p.Validate())

	p = &Profile{Mode: "dev", Data: t.TempDir(), ReviewPenalty: -0.1}
	assert.Error(t, p.Validate())

	p = &Profile{Mode: "dev", Data: t.TempDir(), ReviewPenalty: 1}
	assert.Error(t, p.Validate())

	p = &Profile{Mode: "dev", Data: t.TempDir(), ReviewShortInterval: -time.Hour}
	assert.Error(t, p.Validate())

	p = &Profile{Mode: "dev", Data: t.TempDir(), ReviewShortInterval: 48 * time.Hour, ReviewMaxInterval: time.Hour}
	assert.Error(t, p.Validate())
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres"}
	assert.Error(t, p.Validate())

	p.DSN = "postgres://localhost/lexipoint?sslmode=disable"
	assert.NoError(t, p.Validate())
}
