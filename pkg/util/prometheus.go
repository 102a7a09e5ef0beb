package util

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterOrGet registers the collector c with the provided registerer.
// If the registerer is nil, the collector is returned without registration.
// If an equal collector is already registered, the existing one is returned
// so that several symbolizers can share a registry.
func RegisterOrGet[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(T)
		}
		panic(err)
	}
	return c
}

const (
	StatusSuccess     = "success"
	StatusErrorPrefix = "error:"
)

// ErrorStatus builds a metric status label for a failure of the given kind.
func ErrorStatus(kind string) string {
	return StatusErrorPrefix + kind
}
