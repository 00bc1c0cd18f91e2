package config

import (
	"log/slog"
	"sync/atomic"
)

// Holder is the live configuration of a long-running command. The file
// path is fixed at construction; the *Config behind it is replaced whole on
// reload, so readers never see a half-applied file.
type Holder struct {
	path string
	cur  atomic.Pointer[Config]
}

func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not mutate it.
func (h *Holder) Config() *Config { return h.cur.Load() }

func (h *Holder) Path() string { return h.path }

// Update installs cfg and returns the snapshot it replaced.
func (h *Holder) Update(cfg *Config) *Config { return h.cur.Swap(cfg) }

// Reload re-reads the file at Path and installs it. On error the current
// snapshot stays in place and prev is nil.
func (h *Holder) Reload(logger *slog.Logger) (prev, next *Config, err error) {
	next, err = LoadOrDefault(h.path, logger)
	if err != nil {
		return nil, nil, err
	}

	return h.Update(next), next, nil
}
