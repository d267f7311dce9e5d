package merge

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"repoaudit/internal/types"
)

const toolURI = "https://github.com/repoaudit/repoaudit"

// ToSARIF converts a report into a SARIF 2.1.0 log with one rule per issue type.
func ToSARIF(r types.ScanReport) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("create sarif report: %w", err)
	}
	run := sarif.NewRunWithInformationURI("repoaudit", toolURI)
	for _, f := range Ordered(r.Issues) {
		ruleID := "repoaudit/" + string(f.Type)
		run.AddRule(ruleID).
			WithDescription(typeTitles[f.Type] + " issues")

		msg := f.Title
		if f.Description != "" {
			msg += ": " + f.Description
		}
		result := sarif.NewRuleResult(ruleID).
			WithMessage(sarif.NewTextMessage(msg)).
			WithLevel(sarifLevel(f.Severity))
		if f.File != "" {
			region := sarif.NewRegion()
			if f.Line > 0 {
				region = region.WithStartLine(f.Line)
			}
			result = result.WithLocations([]*sarif.Location{
				sarif.NewLocation().WithPhysicalLocation(
					sarif.NewPhysicalLocation().
						WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.File)).
						WithRegion(region),
				),
			})
		}
		run.AddResult(result)
	}
	report.AddRun(run)
	return report, nil
}

// WriteSARIF writes the indented SARIF log for r.
func WriteSARIF(w io.Writer, r types.ScanReport) error {
	report, err := ToSARIF(r)
	if err != nil {
		return err
	}
	return report.PrettyWrite(w)
}

func sarifLevel(s types.Severity) string {
	switch s {
	case types.SeverityCritical, types.SeverityHigh:
		return "error"
	case types.SeverityMedium:
		return "warning"
	case types.SeverityLow:
		return "note"
	default:
		return "none"
	}
}
