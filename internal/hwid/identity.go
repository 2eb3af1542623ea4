// Package hwid derives a stable, privacy-preserving identifier for the
// physical machine. Raw serials never leave this package; only the SHA-256
// digest of serial, MAC address and model does.
package hwid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
)

// Placeholders substituted for hardware facts that cannot be read. The
// identifier stays stable in a degraded environment, it is only less
// discriminating.
const (
	UnknownSerial = "UNKNOWN_SERIAL"
	UnknownMAC    = "00:00:00:00:00:00"
	UnknownModel  = "Unknown_Model"
)

// Source reads the raw machine facts.
type Source interface {
	Serial(ctx context.Context) (string, error)
	MAC() (string, error)
	Model(ctx context.Context) (string, error)
	Name(ctx context.Context) (string, error)
}

// Compute returns the hex SHA-256 digest of "serial-mac-model".
func Compute(serial, mac, model string) string {
	sum := sha256.Sum256([]byte(serial + "-" + mac + "-" + model))
	return hex.EncodeToString(sum[:])
}

// Identity memoizes the hardware identifier for the process lifetime.
type Identity struct {
	src    Source
	logger *slog.Logger

	idOnce sync.Once
	id     string
	model  string

	nameOnce sync.Once
	name     string
}

// New creates an Identity backed by src.
func New(src Source, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{src: src, logger: logger.With("component", "hwid")}
}

// Generate returns the machine's hardware identifier. The first call probes
// the Source; later calls return the cached value.
func (i *Identity) Generate(ctx context.Context) string {
	i.idOnce.Do(func() {
		serial := i.fact("serial", UnknownSerial, func() (string, error) { return i.src.Serial(ctx) })
		mac := i.fact("mac", UnknownMAC, i.src.MAC)
		i.model = i.fact("model", UnknownModel, func() (string, error) { return i.src.Model(ctx) })
		i.id = Compute(serial, mac, i.model)
		i.logger.Debug("hardware id generated", "id_prefix", i.id[:12])
	})
	return i.id
}

// MachineName returns a human-readable label for display. It falls back to
// the model identifier and is never used for identity.
func (i *Identity) MachineName(ctx context.Context) string {
	i.nameOnce.Do(func() {
		name, err := i.src.Name(ctx)
		name = strings.TrimSpace(name)
		if err == nil && name != "" {
			i.name = name
			return
		}
		i.Generate(ctx)
		i.name = i.model
	})
	return i.name
}

func (i *Identity) fact(label, placeholder string, read func() (string, error)) string {
	v, err := read()
	v = strings.TrimSpace(v)
	if err != nil || v == "" {
		i.logger.Warn("hardware fact unavailable, using placeholder",
			"fact", label, "placeholder", placeholder, "error", err)
		return placeholder
	}
	return v
}
