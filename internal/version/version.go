// Package version хранит сведения о сборке, которые подставляются через -ldflags:
//
//	-X github.com/vladislavdragonenkov/muzbazar/internal/version.version=v1.2.0
package version

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает текущую сборку сервиса.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о сборке, подставленные линковщиком.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// ShortCommit обрезает хэш до семи символов.
func (b Build) ShortCommit() string {
	if len(b.Commit) > 7 {
		return b.Commit[:7]
	}
	return b.Commit
}

// Fields возвращает поля для стартовой записи лога.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"version":    b.Version,
		"commit":     b.ShortCommit(),
		"build_date": b.Date,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("muzbazar-ledger %s (%s, %s)", b.Version, b.ShortCommit(), b.Date)
}

// NewCollector возвращает gauge muzbazar_build_info со значением 1.
func (b Build) NewCollector() prometheus.Collector {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "muzbazar_build_info",
		Help: "Build information of the ledger service",
	}, []string{"version", "commit", "date"})
	gauge.WithLabelValues(b.Version, b.ShortCommit(), b.Date).Set(1)
	return gauge
}

// Register публикует build info в реестре; повторная регистрация не считается ошибкой.
func (b Build) Register(registerer prometheus.Registerer) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := registerer.Register(b.NewCollector()); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return fmt.Errorf("register build info: %w", err)
	}
	return nil
}
