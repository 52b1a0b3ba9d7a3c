package cli

import (
	"io"

	"github.com/hab-telemetry/ukhasx/extractor"
	"github.com/hab-telemetry/ukhasx/filter"
	"github.com/hab-telemetry/ukhasx/host"
	"github.com/hab-telemetry/ukhasx/sensor"
	"github.com/hab-telemetry/ukhasx/stats"
	"github.com/hab-telemetry/ukhasx/ukhas"
)

// RunProtocol speaks the spec's host protocol over r/w until EOF. If
// observeInto is non-nil, every completed sentence is also recorded
// into it for a monitor dashboard to read.
func RunProtocol(r io.Reader, w io.Writer, observeInto *stats.Callsigns) error {
	m := extractor.New(ukhas.NewParser(sensor.NewRegistry(), filter.NewRegistry()))

	var observer host.Observer
	if observeInto != nil {
		observer = host.RecordingObserver(observeInto)
	}

	return host.Run(r, w, m, observer)
}
