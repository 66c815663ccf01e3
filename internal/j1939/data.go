package j1939

import "github.com/fleetpulse/telemetry-core/internal/types"

// SeedStore returns the curated DETAILED table plus a small generic COMPLETE
// table. In production the files named in configuration (§6) are loaded over
// this seed via LoadFromFile; tests and cmd/simulate can use SeedStore()
// directly without a data file on disk.
func SeedStore() *Store {
	detailed := map[key]Record{
		{100, 1}: {
			Name:             "Engine Oil Pressure",
			DescriptionEs:    "Presion de aceite del motor por debajo del rango normal",
			SPNExplanationEs: "El sensor de presion de aceite reporta un valor inferior al minimo seguro para el motor",
			FMIExplanationEs: "Dato valido pero por debajo del rango normal de operacion",
			Severity:         types.SeverityCritical,
			Category:         "Engine",
			Action:           "Detener el vehiculo de inmediato y verificar nivel de aceite antes de continuar",
			OEM:              "All OEMs",
		},
		{110, 0}: {
			Name:             "Engine Coolant Temperature",
			DescriptionEs:    "Temperatura del refrigerante del motor por encima del rango normal",
			SPNExplanationEs: "El sensor de temperatura de refrigerante reporta sobrecalentamiento",
			FMIExplanationEs: "Dato valido pero por encima del rango normal de operacion",
			Severity:         types.SeverityCritical,
			Category:         "Engine",
			Action:           "Detener el vehiculo y permitir que el motor se enfrie antes de inspeccionar",
			OEM:              "All OEMs",
		},
		{190, 2}: {
			Name:             "Engine Speed",
			DescriptionEs:    "Senal de velocidad del motor erratica o intermitente",
			SPNExplanationEs: "El sensor de RPM del ciguenal presenta lecturas inconsistentes",
			FMIExplanationEs: "Dato erratico, intermitente o incorrecto",
			Severity:         types.SeverityHigh,
			Category:         "Engine",
			Action:           "Programar inspeccion del sensor de velocidad del motor",
			OEM:              "All OEMs",
		},
		{168, 1}: {
			Name:             "Battery Voltage",
			DescriptionEs:    "Voltaje de bateria del sistema por debajo del rango normal",
			SPNExplanationEs: "El sistema electrico reporta bajo voltaje de bateria",
			FMIExplanationEs: "Dato valido pero por debajo del rango normal de operacion",
			Severity:         types.SeverityModerate,
			Category:         "Electrical",
			Action:           "Verificar alternador y conexiones de bateria en el proximo mantenimiento",
			OEM:              "All OEMs",
		},
		{94, 18}: {
			Name:             "Fuel Delivery Pressure",
			DescriptionEs:    "Presion de suministro de combustible por debajo de lo esperado",
			SPNExplanationEs: "El sistema de combustible reporta presion de entrega baja",
			FMIExplanationEs: "Dato valido pero moderadamente bajo",
			Severity:         types.SeverityLow,
			Category:         "Fuel System",
			Action:           "Monitorear; revisar filtro de combustible en proximo servicio",
			OEM:              "All OEMs",
		},
	}

	complete := map[key]Record{
		{157, 3}: {
			DescriptionEs: "Presion de riel de inyeccion de combustible - voltaje por encima de lo normal",
			Category:      "Fuel System",
			OEM:           "Generic J1939",
		},
		{1569, 31}: {
			DescriptionEs: "Condicion de reduccion de torque activa",
			Category:      "Engine",
			OEM:           "Generic J1939",
		},
	}

	return NewStore(detailed, complete)
}
