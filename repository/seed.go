package repository

import "github.com/ahmadzakiakmal/carbon-ledger/repository/models"

func strPtr(s string) *string { return &s }

func carrier(name, share, wtw, ttw string) models.EnergyCarrier {
	return models.EnergyCarrier{EnergyCarrier: name, RelativeShare: share, EmissionFactorWTW: wtw, EmissionFactorTTW: ttw}
}

// seedHubs are the hub operation categories loaded into an empty store
var seedHubs = []models.HubRecord{
	{
		HocID:            "100",
		PasshubType:      "Charging Hub",
		EnergyCarriers:   models.EnergyCarriers{carrier("Electricity", "1.0", "25", "0")},
		Co2eIntensityWTW: "25",
		Co2eIntensityTTW: "0",
		HubActivityUnit:  "kWh delivered",
	},
	{
		HocID:       "101",
		PasshubType: "Refuelling Hub",
		EnergyCarriers: models.EnergyCarriers{
			carrier("Hydrogen", "0.8", "70", "0"),
			carrier("Diesel", "0.2", "95", "73"),
		},
		Co2eIntensityWTW: "70",
		Co2eIntensityTTW: "0",
		HubActivityUnit:  "kg dispensed",
	},
	{
		HocID:       "102",
		PasshubType: "Logistics Hub",
		EnergyCarriers: models.EnergyCarriers{
			carrier("Electricity", "0.3", "25", "0"),
			carrier("Diesel", "0.7", "95", "73"),
		},
		Co2eIntensityWTW: "95",
		Co2eIntensityTTW: "73",
		HubActivityUnit:  "number of vehicles serviced",
	},
	{
		HocID:       "103",
		PasshubType: "Multi-modal Energy Hub",
		EnergyCarriers: models.EnergyCarriers{
			carrier("Electricity", "0.4", "25", "0"),
			carrier("HVO100", "0.35", "20", "15"),
			carrier("CNG", "0.25", "55", "50"),
		},
		Co2eIntensityWTW: "30",
		Co2eIntensityTTW: "20",
		HubActivityUnit:  "energy delivered (MJ)",
	},
}

// seedTransports are the transport operation categories loaded into an empty store
var seedTransports = []models.TransportRecord{
	{
		TocID:                 "200",
		Certifications:        models.StringList{"ISO14083:2023", "GLECv3"},
		Description:           "Standard Diesel Truck - Long Haul",
		Mode:                  "road",
		LoadFactor:            "0.80",
		EmptyDistanceFactor:   "0.10",
		TemperatureControl:    strPtr("Ambient"),
		TruckLoadingSequence:  strPtr("LIFO"),
		EnergyCarriers:        models.EnergyCarriers{carrier("Diesel", "1.0", "85", "75")},
		Co2eIntensityWTW:      "85",
		Co2eIntensityTTW:      "75",
		TransportActivityUnit: "tkm",
	},
	{
		TocID:                 "201",
		Certifications:        models.StringList{"GLECv3.1"},
		Description:           "Electric Van - Urban Delivery",
		Mode:                  "road",
		LoadFactor:            "0.65",
		EmptyDistanceFactor:   "0.05",
		TemperatureControl:    strPtr("None"),
		TruckLoadingSequence:  strPtr("Optimized Route"),
		EnergyCarriers:        models.EnergyCarriers{carrier("Electricity", "1.0", "30", "0")},
		Co2eIntensityWTW:      "30",
		Co2eIntensityTTW:      "0",
		TransportActivityUnit: "vkm",
	},
	{
		TocID:                 "202",
		Certifications:        models.StringList{"ISO14083:2023", "GLECv2"},
		Description:           "Air Freight - International Cargo",
		Mode:                  "air",
		LoadFactor:            "0.70",
		EmptyDistanceFactor:   "0.02",
		TemperatureControl:    strPtr("Refrigerated +2C to +8C"),
		TruckLoadingSequence:  strPtr("None"),
		AirShippingOption:     strPtr("Dedicated Cargo Aircraft"),
		FlightLength:          strPtr("Long Haul (>4000km)"),
		EnergyCarriers:        models.EnergyCarriers{carrier("Jet Fuel (Kerosene)", "1.0", "700", "650")},
		Co2eIntensityWTW:      "700",
		Co2eIntensityTTW:      "650",
		TransportActivityUnit: "tkm",
	},
	{
		TocID:                 "203",
		Certifications:        models.StringList{"GLECv3", "ISO14083:2023"},
		Description:           "Electric Rail Freight - National",
		Mode:                  "rail",
		LoadFactor:            "0.90",
		EmptyDistanceFactor:   "0.03",
		TemperatureControl:    strPtr("Ambient"),
		TruckLoadingSequence:  strPtr("None"),
		EnergyCarriers:        models.EnergyCarriers{carrier("Electricity", "1.0", "15", "0")},
		Co2eIntensityWTW:      "15",
		Co2eIntensityTTW:      "0",
		TransportActivityUnit: "tkm",
	},
	{
		TocID:                "204",
		Certifications:       models.StringList{"GLECv3.1"},
		Description:          "Container Ship - Transoceanic",
		Mode:                 "sea",
		LoadFactor:           "0.85",
		EmptyDistanceFactor:  "0.08",
		TemperatureControl:   strPtr("Controlled Atmosphere (Fruits)"),
		TruckLoadingSequence: strPtr("None"),
		EnergyCarriers: models.EnergyCarriers{
			carrier("Heavy Fuel Oil (HFO)", "0.8", "12", "11"),
			carrier("Marine Gas Oil (MGO)", "0.2", "8", "7"),
		},
		Co2eIntensityWTW:      "10",
		Co2eIntensityTTW:      "9",
		TransportActivityUnit: "tkm",
	},
}
