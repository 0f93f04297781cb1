package forms

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ISO 3166-1 alpha-2 codes.
const iso3166 = `AD AE AF AG AI AL AM AO AQ AR AS AT AU AW AX AZ BA BB BD BE BF BG BH BI BJ BL
BM BN BO BQ BR BS BT BV BW BY BZ CA CC CD CF CG CH CI CK CL CM CN CO CR CU CV CW CX CY CZ DE DJ
DK DM DO DZ EC EE EG EH ER ES ET FI FJ FK FM FO FR GA GB GD GE GF GG GH GI GL GM GN GP GQ GR GS
GT GU GW GY HK HM HN HR HT HU ID IE IL IM IN IO IQ IR IS IT JE JM JO JP KE KG KH KI KM KN KP KR
KW KY KZ LA LB LC LI LK LR LS LT LU LV LY MA MC MD ME MF MG MH MK ML MM MN MO MP MQ MR MS MT MU
MV MW MX MY MZ NA NC NE NF NG NI NL NO NP NR NU NZ OM PA PE PF PG PH PK PL PM PN PR PS PT PW PY
QA RE RO RS RU RW SA SB SC SD SE SG SH SI SJ SK SL SM SN SO SR SS ST SV SX SY SZ TC TD TF TG TH
TJ TK TL TM TN TO TR TT TV TW TZ UA UG UM US UY UZ VA VC VE VG VI VN VU WF WS YE YT ZA ZM ZW`

type Country struct {
	Code string
	Name string
}

var (
	countriesOnce sync.Once
	countries     []Country
	countryCodes  map[string]struct{}
)

func loadCountries() {
	namer := display.English.Regions()
	codes := strings.Fields(iso3166)
	countryCodes = make(map[string]struct{}, len(codes))
	countries = make([]Country, 0, len(codes))
	for _, code := range codes {
		countryCodes[code] = struct{}{}
		name := code
		if r, err := language.ParseRegion(code); err == nil {
			if n := namer.Name(r); n != "" {
				name = n
			}
		}
		countries = append(countries, Country{Code: code, Name: name})
	}

	col := collate.New(language.English, collate.Loose)
	sort.SliceStable(countries, func(i, j int) bool {
		return col.CompareString(countries[i].Name, countries[j].Name) < 0
	})
}

// Countries lists countries sorted by English name.
func Countries() []Country {
	countriesOnce.Do(loadCountries)
	return countries
}

// ValidCountry reports whether code is an ISO 3166-1 alpha-2 code (upper case).
func ValidCountry(code string) bool {
	countriesOnce.Do(loadCountries)
	_, ok := countryCodes[code]
	return ok
}

// CountryName is the English name of code, or code itself if unknown.
func CountryName(code string) string {
	code = strings.ToUpper(code)
	if !ValidCountry(code) {
		return code
	}
	r, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if n := display.English.Regions().Name(r); n != "" {
		return n
	}
	return code
}
