package footprint

import (
	"strconv"

	"github.com/ahmadzakiakmal/carbon-ledger/canonical"
)

// ActivityBag describes a chain link as the attribute bag that gets signed.
// Numeric values are rendered as fixed-precision strings; operator ids that
// do not apply, and an empty ancestry, are left out of the canonical form.
func ActivityBag(link TCE) *canonical.Bag {
	bag := canonical.NewBag().
		Set("tceId", link.TceID).
		Set("shipmentId", link.ShipmentID).
		Set("mass", fixed(link.Mass, 2)).
		Set("tocId", optional(link.TocID)).
		Set("hocId", optional(link.HocID))

	if len(link.PrevTceIDs) > 0 {
		bag.Set("prevTceIds", append([]string(nil), link.PrevTceIDs...))
	}

	if link.Distance != nil && link.Distance.Actual != nil {
		bag.Set("distance", map[string]string{
			"value":      fixed(*link.Distance.Actual, 2),
			"unit":       "km",
			"dataSource": "Sensor",
		})
	}

	if link.TransportActivity != nil {
		tkm := *link.TransportActivity
		bag.Set("transportActivity", fixed(tkm, 3))
		if link.Co2eTTW != nil && tkm > 0 {
			bag.Set("co2_factor_ttw_per_tkm", fixed(*link.Co2eTTW/tkm, 3))
		}
	}
	if link.Co2eTTW != nil {
		bag.Set("co2eTTW", fixed(*link.Co2eTTW, 3))
		if link.Co2eWTW != nil && *link.Co2eTTW > 0 {
			bag.Set("wtw_multiplier", fixed(*link.Co2eWTW / *link.Co2eTTW, 3))
		}
	}
	if link.Co2eWTW != nil {
		bag.Set("co2eWTW", fixed(*link.Co2eWTW, 3))
	}

	bag.Set("noxTTW", fixedPtr(link.NoxTTW, 4))
	bag.Set("soxTTW", fixedPtr(link.SoxTTW, 5))
	bag.Set("ch4TTW", fixedPtr(link.Ch4TTW, 5))
	bag.Set("pmTTW", fixedPtr(link.PmTTW, 5))
	return bag
}

func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func fixedPtr(v *float64, prec int) *string {
	if v == nil {
		return nil
	}
	s := fixed(*v, prec)
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
