package protocol

import "strconv"

type Version int32

const (
	Version1_7_2  Version = 4
	Version1_8    Version = 47
	Version1_12_2 Version = 340
	Version1_16_5 Version = 754
	Version1_18_2 Version = 758
	Version1_19   Version = 759
	Version1_19_3 Version = 761
	Version1_20_2 Version = 764
	Version1_20_4 Version = 765
	Version1_21   Version = 767

	// VersionUnknown is what clients send when they only ping and do not
	// intend to log in. Most servers answer it with their own version.
	VersionUnknown Version = -1
)

func (v Version) Name() string {
	switch v {
	case Version1_7_2:
		return "1.7.2"
	case Version1_8:
		return "1.8"
	case Version1_12_2:
		return "1.12.2"
	case Version1_16_5:
		return "1.16.5"
	case Version1_18_2:
		return "1.18.2"
	case Version1_19:
		return "1.19"
	case Version1_19_3:
		return "1.19.3"
	case Version1_20_2:
		return "1.20.2"
	case Version1_20_4:
		return "1.20.4"
	case Version1_21:
		return "1.21"
	case VersionUnknown:
		return "unknown"
	default:
		return strconv.Itoa(int(v))
	}
}

func (v Version) ProtocolNumber() int32 {
	return int32(v)
}
