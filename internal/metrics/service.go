// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	configReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_config_reload_total",
		Help: "Configuration reloads by result",
	}, []string{"result"}) // result=ok|failed

	tunersConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvrd_tuners_configured",
		Help: "Tuners in the current inventory",
	})

	guideImportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_guide_import_total",
		Help: "Program guide imports by result",
	}, []string{"result"}) // result=ok|failed

	guideProgramsImported = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvrd_guide_programs_imported",
		Help: "Programs written by the last successful guide import",
	})
)

func IncConfigReload(result string) {
	configReloadTotal.WithLabelValues(result).Inc()
}

func SetTunersConfigured(n int) {
	tunersConfigured.Set(float64(n))
}

func RecordGuideImport(programs int, err error) {
	if err != nil {
		guideImportTotal.WithLabelValues("failed").Inc()
		return
	}
	guideImportTotal.WithLabelValues("ok").Inc()
	guideProgramsImported.Set(float64(programs))
}
