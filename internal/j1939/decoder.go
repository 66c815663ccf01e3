// Package j1939 decodes Wialon DTC strings into structured fault records and
// holds the static SPN/FMI lookup tables used to resolve them.
package j1939

import (
	"strconv"
	"strings"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

// DecodedFault is one resolved (SPN, FMI) pair, ready to become a DTCEvent.
type DecodedFault struct {
	SPN              int
	FMI              int
	Code             string
	Severity         types.DTCSeverity
	Category         string
	DescriptionEs    string
	SPNExplanationEs string
	FMIExplanationEs string
	HasDetailedInfo  bool
	OEM              string
	ActionRequired   string
}

// fmiUnknown is substituted when a token carries an SPN with no FMI.
const fmiUnknown = 31

// Decode parses a comma-separated "<spn>.<fmi>" token string into a
// deduplicated, resolved fault list. Malformed tokens are skipped silently;
// the call never fails and never panics.
func Decode(store *Store, dtcString string) []DecodedFault {
	if strings.TrimSpace(dtcString) == "" {
		return nil
	}

	seen := make(map[[2]int]bool)
	var results []DecodedFault

	for _, raw := range strings.Split(dtcString, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		spn, fmi, ok := parseToken(token)
		if !ok {
			continue // log-skip at the caller; decode itself stays pure
		}

		if isNoFaultSentinel(token, spn, fmi) {
			continue
		}

		key := [2]int{spn, fmi}
		if seen[key] {
			continue
		}
		seen[key] = true

		results = append(results, resolve(store, spn, fmi))
	}

	return results
}

// parseToken splits "<spn>.<fmi>" or a bare "<spn>" into integers.
func parseToken(token string) (spn, fmi int, ok bool) {
	parts := strings.SplitN(token, ".", 2)

	spn, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}

	if len(parts) == 1 {
		return spn, fmiUnknown, true
	}

	fmi, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}

	return spn, fmi, true
}

// isNoFaultSentinel rejects the "0", "1", "0.0", "1.0" no-fault tokens.
func isNoFaultSentinel(token string, spn, fmi int) bool {
	switch token {
	case "0", "1", "0.0", "1.0":
		return true
	}
	return (spn == 0 || spn == 1) && fmi == fmiUnknown && !strings.Contains(token, ".")
}

// resolve looks up (spn, fmi) through DETAILED -> COMPLETE -> synthesized.
func resolve(store *Store, spn, fmi int) DecodedFault {
	code := formatCode(spn, fmi)

	if rec, ok := store.LookupDetailed(spn, fmi); ok {
		return DecodedFault{
			SPN:              spn,
			FMI:              fmi,
			Code:             code,
			Severity:         rec.Severity, // DETAILED severity always wins over FMI-derived
			Category:         rec.Category,
			DescriptionEs:    rec.DescriptionEs,
			SPNExplanationEs: rec.SPNExplanationEs,
			FMIExplanationEs: rec.FMIExplanationEs,
			HasDetailedInfo:  true,
			OEM:              rec.OEM,
			ActionRequired:   rec.Action,
		}
	}

	if rec, ok := store.LookupComplete(spn, fmi); ok {
		severity := severityFromFMI(fmi)
		return DecodedFault{
			SPN:              spn,
			FMI:              fmi,
			Code:             code,
			Severity:         severity,
			Category:         rec.Category,
			DescriptionEs:    rec.DescriptionEs,
			FMIExplanationEs: rec.FMIExplanationEs,
			HasDetailedInfo:  false,
			OEM:              rec.OEM,
			ActionRequired:   actionTemplate(severity),
		}
	}

	severity := types.SeverityInfo
	return DecodedFault{
		SPN:             spn,
		FMI:             fmi,
		Code:            code,
		Severity:        severity,
		Category:        "UNKNOWN",
		DescriptionEs:   "SPN/FMI desconocido",
		HasDetailedInfo: false,
		OEM:             "Unknown",
		ActionRequired:  actionTemplate(severity),
	}
}

func formatCode(spn, fmi int) string {
	return strconv.Itoa(spn) + "-" + strconv.Itoa(fmi)
}

// severityFromFMI buckets FMI codes into the documented severity tiers.
func severityFromFMI(fmi int) types.DTCSeverity {
	switch fmi {
	case 0, 1, 2, 12, 14:
		return types.SeverityCritical
	case 3, 4, 5, 6, 19, 20:
		return types.SeverityHigh
	case 7, 8, 9, 10, 11, 13, 15, 16, 21:
		return types.SeverityModerate
	case 17, 18:
		return types.SeverityLow
	default:
		return types.SeverityInfo
	}
}

// actionTemplate produces a generic action-required string per severity when
// no curated DETAILED action exists.
func actionTemplate(severity types.DTCSeverity) string {
	switch severity {
	case types.SeverityCritical:
		return "Detener el vehiculo y contactar a mantenimiento de inmediato"
	case types.SeverityHigh:
		return "Programar inspeccion dentro de las proximas 24 horas"
	case types.SeverityModerate:
		return "Revisar en el proximo mantenimiento programado"
	case types.SeverityLow:
		return "Monitorear; no requiere accion inmediata"
	default:
		return "Informativo; sin accion requerida"
	}
}
