package commands

import (
	"fmt"

	"github.com/leapstack-labs/pgboot/internal/bootstrap"
	"github.com/leapstack-labs/pgboot/internal/cli/output"
)

// ReportJSON is the machine-readable capability report.
type ReportJSON struct {
	Connected    bool             `json:"connected"`
	Capabilities []CapabilityJSON `json:"capabilities"`
	Failed       int              `json:"failed"`
}

// CapabilityJSON is one capability in ReportJSON.
type CapabilityJSON struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func newReportJSON(report bootstrap.Report) ReportJSON {
	out := ReportJSON{
		Connected:    true,
		Capabilities: make([]CapabilityJSON, 0, len(report.Results)),
		Failed:       len(report.Failed()),
	}
	for _, res := range report.Results {
		c := CapabilityJSON{Name: res.Name, Outcome: string(res.Outcome)}
		if res.Err != nil {
			c.Error = res.Err.Error()
		}
		out.Capabilities = append(out.Capabilities, c)
	}
	return out
}

func renderReport(r *output.Renderer, report bootstrap.Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(newReportJSON(report))
	}

	if len(report.Results) == 0 {
		r.Muted("No capabilities requested")
		return nil
	}

	r.Header(2, "Capabilities")
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		rows = append(rows, []string{res.Name, output.Label(string(res.Outcome)), detail})
	}
	r.Table([]string{"Capability", "Status", "Detail"}, rows)

	if failed := report.Failed(); len(failed) > 0 {
		r.Warning(fmt.Sprintf("%d of %d capabilities unavailable (may need manual installation)", len(failed), len(report.Results)))
	}
	return nil
}

func renderInstalled(r *output.Renderer, installed []bootstrap.InstalledCapability) error {
	if r.EffectiveMode() == output.ModeJSON {
		if installed == nil {
			installed = []bootstrap.InstalledCapability{}
		}
		return r.JSON(installed)
	}

	if len(installed) == 0 {
		r.Muted("No extensions installed")
		return nil
	}

	r.Header(2, "Installed extensions")
	rows := make([][]string, 0, len(installed))
	for _, c := range installed {
		rows = append(rows, []string{c.Name, c.Version})
	}
	r.Table([]string{"Extension", "Version"}, rows)
	return nil
}
