package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// EnergyCarrier describes one energy source of an operation category
type EnergyCarrier struct {
	EnergyCarrier     string `json:"energyCarrier"`
	RelativeShare     string `json:"relativeShare"`
	EmissionFactorWTW string `json:"emissionFactorWTW"`
	EmissionFactorTTW string `json:"emissionFactorTTW"`
}

// EnergyCarriers is stored as a JSON text column
type EnergyCarriers []EnergyCarrier

// Value implements driver.Valuer
func (e EnergyCarriers) Value() (driver.Value, error) {
	return jsonValue(e)
}

// Scan implements sql.Scanner
func (e *EnergyCarriers) Scan(src any) error {
	return jsonScan(src, e)
}

// StringList is stored as a JSON text column
type StringList []string

// Value implements driver.Valuer
func (s StringList) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements sql.Scanner
func (s *StringList) Scan(src any) error {
	return jsonScan(src, s)
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(v), dst)
	case []byte:
		return json.Unmarshal(v, dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}

// HubRecord is the reference data of a hub operation category (HOC)
type HubRecord struct {
	HocID            string         `gorm:"column:hoc_id;primaryKey;type:varchar(50)" json:"hocId"`
	PasshubType      string         `gorm:"column:passhub_type;type:varchar(100);not null" json:"passhubType"`
	EnergyCarriers   EnergyCarriers `gorm:"column:energy_carriers;type:text" json:"energyCarriers"`
	Co2eIntensityWTW string         `gorm:"column:co2e_intensity_wtw;type:varchar(20)" json:"co2eIntensityWTW"`
	Co2eIntensityTTW string         `gorm:"column:co2e_intensity_ttw;type:varchar(20)" json:"co2eIntensityTTW"`
	HubActivityUnit  string         `gorm:"column:hub_activity_unit;type:varchar(100)" json:"hubActivityUnit"`
}

// TableName overrides the gorm default
func (HubRecord) TableName() string { return "hoc_data" }

// TransportRecord is the reference data of a transport operation category (TOC)
type TransportRecord struct {
	TocID                 string         `gorm:"column:toc_id;primaryKey;type:varchar(50)" json:"tocId"`
	Certifications        StringList     `gorm:"column:certifications;type:text" json:"certifications"`
	Description           string         `gorm:"column:description;type:varchar(255)" json:"description"`
	Mode                  string         `gorm:"column:mode;type:varchar(20)" json:"mode"`
	LoadFactor            string         `gorm:"column:load_factor;type:varchar(20)" json:"loadFactor"`
	EmptyDistanceFactor   string         `gorm:"column:empty_distance_factor;type:varchar(20)" json:"emptyDistanceFactor"`
	TemperatureControl    *string        `gorm:"column:temperature_control;type:varchar(100)" json:"temperatureControl"`
	TruckLoadingSequence  *string        `gorm:"column:truck_loading_sequence;type:varchar(100)" json:"truckLoadingSequence"`
	AirShippingOption     *string        `gorm:"column:air_shipping_option;type:varchar(100)" json:"airShippingOption"`
	FlightLength          *string        `gorm:"column:flight_length;type:varchar(100)" json:"flightLength"`
	EnergyCarriers        EnergyCarriers `gorm:"column:energy_carriers;type:text" json:"energyCarriers"`
	Co2eIntensityWTW      string         `gorm:"column:co2e_intensity_wtw;type:varchar(20)" json:"co2eIntensityWTW"`
	Co2eIntensityTTW      string         `gorm:"column:co2e_intensity_ttw;type:varchar(20)" json:"co2eIntensityTTW"`
	TransportActivityUnit string         `gorm:"column:transport_activity_unit;type:varchar(50)" json:"transportActivityUnit"`
}

// TableName overrides the gorm default
func (TransportRecord) TableName() string { return "toc_data" }
