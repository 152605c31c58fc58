package geom

import (
	"fmt"
	"strings"
)

// DataRate is the physical data rate in bits per second.
type DataRate int

const (
	DataRateUnknown DataRate = 0
	DataRate250K    DataRate = 250000
	DataRate300K    DataRate = 300000
	DataRate500K    DataRate = 500000
	DataRate1M      DataRate = 1000000
)

// BitcellNs returns the nominal width of one bitstream cell in nanoseconds,
// which is half of a data bit for FM and MFM.
func (dr DataRate) BitcellNs() int {
	switch dr {
	case DataRate250K:
		return 2000
	case DataRate300K:
		return 1667
	case DataRate500K:
		return 1000
	case DataRate1M:
		return 500
	}
	return 0
}

// BitsPerSecond returns the data rate as a plain integer.
func (dr DataRate) BitsPerSecond() int {
	return int(dr)
}

func (dr DataRate) String() string {
	switch dr {
	case DataRate250K:
		return "250Kbps"
	case DataRate300K:
		return "300Kbps"
	case DataRate500K:
		return "500Kbps"
	case DataRate1M:
		return "1Mbps"
	}
	return "Unknown"
}

// ParseDataRate accepts the forms "250", "250k", "250Kbps", "1M" and "1000".
func ParseDataRate(s string) (DataRate, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	str = strings.TrimSuffix(str, "bps")
	switch str {
	case "", "unknown":
		return DataRateUnknown, nil
	case "250", "250k":
		return DataRate250K, nil
	case "300", "300k":
		return DataRate300K, nil
	case "500", "500k":
		return DataRate500K, nil
	case "1", "1m", "1000", "1000k":
		return DataRate1M, nil
	}
	return DataRateUnknown, fmt.Errorf("geom: invalid data rate %q", s)
}

// Encoding is the bit encoding family of a track or sector.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingMFM
	EncodingFM
	EncodingRX02
	EncodingAmiga
	EncodingGCR
	EncodingAce
	EncodingMX
	EncodingAgat
	EncodingApple
	EncodingVictor
	EncodingVista
)

var encodingNames = []string{
	EncodingUnknown: "Unknown",
	EncodingMFM:     "MFM",
	EncodingFM:      "FM",
	EncodingRX02:    "RX02",
	EncodingAmiga:   "Amiga",
	EncodingGCR:     "GCR",
	EncodingAce:     "Ace",
	EncodingMX:      "MX",
	EncodingAgat:    "Agat",
	EncodingApple:   "Apple",
	EncodingVictor:  "Victor",
	EncodingVista:   "Vista",
}

func (e Encoding) String() string {
	if e < 0 || int(e) >= len(encodingNames) {
		return "Unknown"
	}
	return encodingNames[e]
}

// ShortName is the compact form used in track listings.
func (e Encoding) ShortName() string {
	switch e {
	case EncodingMFM:
		return "MFM"
	case EncodingFM:
		return "FM"
	case EncodingRX02:
		return "RX"
	case EncodingAmiga:
		return "Ami"
	case EncodingGCR:
		return "GCR"
	case EncodingAce:
		return "Ace"
	case EncodingMX:
		return "MX"
	case EncodingAgat:
		return "Agt"
	case EncodingApple:
		return "Apl"
	case EncodingVictor:
		return "Vic"
	case EncodingVista:
		return "Vis"
	}
	return "???"
}

// ParseEncoding looks up an encoding by name, ignoring case.
func ParseEncoding(s string) (Encoding, error) {
	str := strings.TrimSpace(s)
	if str == "" {
		return EncodingUnknown, nil
	}
	for i, name := range encodingNames {
		if strings.EqualFold(name, str) {
			return Encoding(i), nil
		}
	}
	if strings.EqualFold(str, "jupiter") {
		return EncodingAce, nil
	}
	return EncodingUnknown, fmt.Errorf("geom: invalid encoding %q", s)
}
